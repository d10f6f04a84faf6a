package toolproviders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeSession struct {
	tools      []*mcp.Tool
	callResult *mcp.CallToolResult
	callErr    error
	listErr    error
	listHook   func() // runs at the top of ListTools when set
	closed     bool
	lastCall   *mcp.CallToolParams
}

func (f *fakeSession) ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	if f.listHook != nil {
		f.listHook()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeSession) CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	f.lastCall = params
	return f.callResult, f.callErr
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func echoTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "echo",
		Description: "Echoes input",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
	}
}

func newTestManager(t *testing.T, sessions map[string]*fakeSession, dialErrs map[string]error) *Manager {
	t.Helper()
	configs := make([]ProviderConfig, 0, len(sessions)+len(dialErrs))
	for name := range sessions {
		configs = append(configs, ProviderConfig{Name: name, Endpoint: "https://" + name + ".example.com/mcp"})
	}
	for name := range dialErrs {
		configs = append(configs, ProviderConfig{Name: name, Endpoint: "https://" + name + ".example.com/mcp"})
	}
	m := NewManager(configs)
	m.dial = func(ctx context.Context, endpoint string) (ProviderSession, error) {
		for name, session := range sessions {
			if endpoint == "https://"+name+".example.com/mcp" {
				return session, nil
			}
		}
		for name, err := range dialErrs {
			if endpoint == "https://"+name+".example.com/mcp" {
				return nil, err
			}
		}
		return nil, fmt.Errorf("no fake for %s", endpoint)
	}
	return m
}

func TestConnectAllAndStatus(t *testing.T) {
	good := &fakeSession{tools: []*mcp.Tool{echoTool()}}
	m := newTestManager(t,
		map[string]*fakeSession{"good": good},
		map[string]error{"bad": fmt.Errorf("connection refused")},
	)

	m.ConnectAll(context.Background())

	byName := map[string]bool{}
	for _, s := range m.Status() {
		byName[s.Name] = s.Connected
	}
	if !byName["good"] {
		t.Errorf("expected provider 'good' to be connected")
	}
	if byName["bad"] {
		t.Errorf("expected provider 'bad' to be disconnected")
	}
}

func TestDiscoverToolsAndInvoke(t *testing.T) {
	session := &fakeSession{
		tools: []*mcp.Tool{echoTool()},
		callResult: &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "echo: hi"}},
		},
	}
	m := newTestManager(t, map[string]*fakeSession{"srv": session}, nil)
	m.ConnectAll(context.Background())

	tools := m.DiscoverTools(context.Background())
	tool, ok := tools["echo"]
	if !ok {
		t.Fatalf("expected discovered tool 'echo', got %v", tools)
	}
	if tool.Parameters.Type != "object" {
		t.Errorf("expected object parameters, got %q", tool.Parameters.Type)
	}
	if _, ok := tool.Parameters.Properties["text"]; !ok {
		t.Errorf("expected 'text' property in schema, got %v", tool.Parameters.Properties)
	}
	if len(tool.Parameters.Required) != 1 || tool.Parameters.Required[0] != "text" {
		t.Errorf("expected required [text], got %v", tool.Parameters.Required)
	}

	out, err := tool.Invoke(context.Background(), map[string]interface{}{"text": "hi"})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if out != "echo: hi" {
		t.Errorf("expected 'echo: hi', got %q", out)
	}
	if session.lastCall == nil || session.lastCall.Name != "echo" {
		t.Errorf("expected CallTool with name echo, got %+v", session.lastCall)
	}
}

func namedTool(name, description string) *mcp.Tool {
	return &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: map[string]any{"type": "object"},
	}
}

func TestDiscoverToolsListsConcurrently(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	hook := func() {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	m := newTestManager(t, map[string]*fakeSession{
		"a": {tools: []*mcp.Tool{namedTool("a_tool", "")}, listHook: hook},
		"b": {tools: []*mcp.Tool{namedTool("b_tool", "")}, listHook: hook},
		"c": {tools: []*mcp.Tool{namedTool("c_tool", "")}, listHook: hook},
	}, nil)
	m.ConnectAll(context.Background())

	tools := m.DiscoverTools(context.Background())
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}
	mu.Lock()
	defer mu.Unlock()
	if maxInFlight < 2 {
		t.Errorf("listings should be in flight together, max was %d", maxInFlight)
	}
}

func TestDiscoverToolsMergesInConfigOrder(t *testing.T) {
	// The earlier provider finishes last; its tool must still lose the
	// name collision to the later-configured provider.
	first := &fakeSession{
		tools:    []*mcp.Tool{namedTool("dup", "from first")},
		listHook: func() { time.Sleep(40 * time.Millisecond) },
	}
	second := &fakeSession{tools: []*mcp.Tool{namedTool("dup", "from second")}}

	m := NewManager([]ProviderConfig{
		{Name: "first", Endpoint: "https://first.example.com/mcp"},
		{Name: "second", Endpoint: "https://second.example.com/mcp"},
	})
	m.dial = func(ctx context.Context, endpoint string) (ProviderSession, error) {
		if endpoint == "https://first.example.com/mcp" {
			return first, nil
		}
		return second, nil
	}
	m.ConnectAll(context.Background())

	tools := m.DiscoverTools(context.Background())
	dup, ok := tools["dup"]
	if !ok {
		t.Fatalf("expected the colliding tool to survive the merge")
	}
	if dup.Description != "from second" {
		t.Errorf("later-configured provider must win collisions, got %q", dup.Description)
	}
}

func TestDiscoverToolsProviderFailureIsolated(t *testing.T) {
	working := &fakeSession{tools: []*mcp.Tool{echoTool()}}
	broken := &fakeSession{listErr: fmt.Errorf("session dropped")}
	m := newTestManager(t, map[string]*fakeSession{"working": working, "broken": broken}, nil)
	m.ConnectAll(context.Background())

	tools := m.DiscoverTools(context.Background())
	if _, ok := tools["echo"]; !ok {
		t.Errorf("working provider's tools should survive a sibling failure")
	}

	for _, s := range m.Status() {
		if s.Name == "broken" && s.Connected {
			t.Errorf("provider that failed to list should be marked disconnected")
		}
	}
}

func TestInvokeErrorResult(t *testing.T) {
	session := &fakeSession{
		tools: []*mcp.Tool{echoTool()},
		callResult: &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "bad input"}},
		},
	}
	m := newTestManager(t, map[string]*fakeSession{"srv": session}, nil)
	m.ConnectAll(context.Background())

	tool := m.DiscoverTools(context.Background())["echo"]
	if _, err := tool.Invoke(context.Background(), nil); err == nil {
		t.Errorf("expected error when tool result has IsError set")
	}
}

func TestReconnectReplacesSession(t *testing.T) {
	first := &fakeSession{tools: []*mcp.Tool{echoTool()}}
	m := newTestManager(t, map[string]*fakeSession{"srv": first}, nil)
	m.ConnectAll(context.Background())

	second := &fakeSession{tools: []*mcp.Tool{echoTool()}}
	m.dial = func(ctx context.Context, endpoint string) (ProviderSession, error) {
		return second, nil
	}

	if err := m.Reconnect(context.Background(), "srv"); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if !first.closed {
		t.Errorf("old session should be closed on reconnect")
	}
	if got := m.sessionFor("srv"); got != ProviderSession(second) {
		t.Errorf("expected new session after reconnect")
	}
}

func TestReconnectUnknownProvider(t *testing.T) {
	m := NewManager(nil)
	if err := m.Reconnect(context.Background(), "ghost"); err == nil {
		t.Errorf("expected error for unknown provider")
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	session := &fakeSession{tools: []*mcp.Tool{echoTool()}}
	m := newTestManager(t, map[string]*fakeSession{"srv": session}, nil)
	m.ConnectAll(context.Background())

	m.Shutdown()
	if !session.closed {
		t.Errorf("shutdown should close provider sessions")
	}
	for _, s := range m.Status() {
		if s.Connected {
			t.Errorf("no provider should report connected after shutdown")
		}
	}
}
