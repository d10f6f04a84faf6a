package toolproviders

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/streamline-ai/streamline/models"
)

// ProviderConfig names an external tool provider and how to reach it.
// Endpoint forms:
//
//	stdio://<command and args>   spawn a subprocess speaking stdio
//	sse://<host or url>          SSE transport
//	http:// or https://          streamable HTTP transport
type ProviderConfig struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// ProviderStatus is the externally visible connection state of one provider.
type ProviderStatus struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	Connected bool   `json:"connected"`
}

// ProviderSession is the slice of an MCP client session the manager needs.
// *mcp.ClientSession satisfies it.
type ProviderSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// DialFunc opens a session against an endpoint. Overridable for tests.
type DialFunc func(ctx context.Context, endpoint string) (ProviderSession, error)

type providerState struct {
	config    ProviderConfig
	session   ProviderSession
	connected bool
}

// Manager owns the set of tool provider connections. A provider that fails
// to connect or list tools never blocks the others.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]*providerState
	order     []string
	dial      DialFunc
	logger    *log.Logger
}

func NewManager(configs []ProviderConfig) *Manager {
	m := &Manager{
		providers: make(map[string]*providerState),
		dial:      dialMCP,
		logger:    log.New(os.Stdout, "[TOOLPROVIDERS] ", log.LstdFlags),
	}
	for _, cfg := range configs {
		if cfg.Name == "" {
			continue
		}
		if _, exists := m.providers[cfg.Name]; !exists {
			m.order = append(m.order, cfg.Name)
		}
		m.providers[cfg.Name] = &providerState{config: cfg}
	}
	return m
}

// ConnectAll dials every configured provider concurrently. Failures are
// logged and captured in provider state; the call itself never fails.
func (m *Manager) ConnectAll(ctx context.Context) {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := m.Reconnect(ctx, name); err != nil {
				m.logger.Printf("Provider %s failed to connect: %v", name, err)
			}
		}(name)
	}
	wg.Wait()
}

// Reconnect tears down any existing session for the named provider and dials
// a fresh one.
func (m *Manager) Reconnect(ctx context.Context, name string) error {
	m.mu.Lock()
	state, ok := m.providers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown tool provider %q", name)
	}
	old := state.session
	state.session = nil
	state.connected = false
	endpoint := state.config.Endpoint
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Printf("Closing stale session for %s: %v", name, err)
		}
	}

	session, err := m.dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect provider %s: %w", name, err)
	}

	m.mu.Lock()
	state.session = session
	state.connected = true
	m.mu.Unlock()

	m.logger.Printf("Provider %s connected (%s)", name, endpoint)
	return nil
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, state := range m.providers {
		if state.session != nil {
			if err := state.session.Close(); err != nil {
				m.logger.Printf("Error closing provider %s: %v", name, err)
			}
			state.session = nil
			state.connected = false
		}
	}
}

// Status reports every provider in configuration order.
func (m *Manager) Status() []ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]ProviderStatus, 0, len(m.order))
	for _, name := range m.order {
		state := m.providers[name]
		statuses = append(statuses, ProviderStatus{
			Name:      name,
			Endpoint:  state.config.Endpoint,
			Connected: state.connected,
		})
	}
	return statuses
}

// DiscoverTools lists tools from every connected provider and returns them
// as invocable descriptors. A provider that errors contributes nothing; later
// providers silently overwrite earlier tools with the same name.
func (m *Manager) DiscoverTools(ctx context.Context) map[string]models.ToolDescriptor {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	// One listing per provider in flight at once, so a slow provider does
	// not hold up the others. Merging happens afterwards in configuration
	// order to keep name collisions deterministic.
	listings := make([]map[string]models.ToolDescriptor, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			listings[i] = m.listProviderTools(ctx, name)
		}(i, name)
	}
	wg.Wait()

	discovered := make(map[string]models.ToolDescriptor)
	for _, tools := range listings {
		for name, descriptor := range tools {
			discovered[name] = descriptor
		}
	}
	return discovered
}

// listProviderTools lists one provider's tools as invocable descriptors. A
// listing failure marks the provider disconnected and contributes nothing.
func (m *Manager) listProviderTools(ctx context.Context, name string) map[string]models.ToolDescriptor {
	session := m.sessionFor(name)
	if session == nil {
		return nil
	}
	result, err := session.ListTools(ctx, nil)
	if err != nil {
		m.logger.Printf("Provider %s failed to list tools: %v", name, err)
		m.markDisconnected(name)
		return nil
	}
	tools := make(map[string]models.ToolDescriptor, len(result.Tools))
	for _, tool := range result.Tools {
		descriptor, err := m.toDescriptor(name, tool)
		if err != nil {
			m.logger.Printf("Provider %s tool %s has unusable schema: %v", name, tool.Name, err)
			continue
		}
		tools[descriptor.Name] = descriptor
	}
	return tools
}

func (m *Manager) sessionFor(name string) ProviderSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.providers[name]
	if !ok || !state.connected {
		return nil
	}
	return state.session
}

func (m *Manager) markDisconnected(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.providers[name]; ok {
		state.connected = false
	}
}

// toDescriptor converts an MCP tool into an invocable descriptor. The invoke
// closure resolves the session at call time so a reconnect picks up cleanly.
func (m *Manager) toDescriptor(providerName string, tool *mcp.Tool) (models.ToolDescriptor, error) {
	params, err := schemaToParameters(tool.InputSchema)
	if err != nil {
		return models.ToolDescriptor{}, err
	}
	toolName := tool.Name
	return models.ToolDescriptor{
		Name:        toolName,
		Description: tool.Description,
		Parameters:  params,
		Invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return m.callTool(ctx, providerName, toolName, args)
		},
	}, nil
}

func (m *Manager) callTool(ctx context.Context, providerName, toolName string, args map[string]interface{}) (string, error) {
	session := m.sessionFor(providerName)
	if session == nil {
		return "", fmt.Errorf("tool provider %s is not connected", providerName)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("tool %s call failed: %w", toolName, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s returned an error: %s", toolName, text)
	}
	return text, nil
}

// flattenContent renders MCP result content as a single string. Text blocks
// are concatenated; anything else is kept as its JSON form.
func flattenContent(content []mcp.Content) string {
	var sb strings.Builder
	for _, item := range content {
		switch c := item.(type) {
		case *mcp.TextContent:
			sb.WriteString(c.Text)
		default:
			if raw, err := json.Marshal(item); err == nil {
				sb.Write(raw)
			}
		}
	}
	return sb.String()
}

// schemaToParameters round-trips an MCP input schema through JSON into the
// parameter shape the model drivers expect.
func schemaToParameters(schema any) (models.Parameters, error) {
	params := models.Parameters{Type: "object", Properties: map[string]interface{}{}}
	if schema == nil {
		return params, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return params, fmt.Errorf("failed to marshal input schema: %w", err)
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("failed to unmarshal input schema: %w", err)
	}
	if params.Type == "" {
		params.Type = "object"
	}
	if params.Properties == nil {
		params.Properties = map[string]interface{}{}
	}
	return params, nil
}

// dialMCP opens a real MCP session for an endpoint.
func dialMCP(ctx context.Context, endpoint string) (ProviderSession, error) {
	transport, err := buildTransport(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "streamline", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func buildTransport(ctx context.Context, endpoint string) (mcp.Transport, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("tool provider endpoint is empty")
	}

	lowered := strings.ToLower(endpoint)
	switch {
	case strings.HasPrefix(lowered, "stdio://"):
		cmdSpec := strings.TrimSpace(endpoint[len("stdio://"):])
		parts := strings.Fields(cmdSpec)
		if len(parts) == 0 {
			return nil, fmt.Errorf("stdio endpoint has no command")
		}
		command := exec.CommandContext(ctx, parts[0], parts[1:]...)
		return &mcp.CommandTransport{Command: command}, nil
	case strings.HasPrefix(lowered, "sse://"):
		target := strings.TrimSpace(endpoint[len("sse://"):])
		if !strings.Contains(target, "://") {
			target = "https://" + target
		}
		return &mcp.SSEClientTransport{Endpoint: target}, nil
	case strings.HasPrefix(lowered, "http://"), strings.HasPrefix(lowered, "https://"):
		return &mcp.StreamableClientTransport{Endpoint: endpoint}, nil
	default:
		return nil, fmt.Errorf("unsupported tool provider endpoint %q", endpoint)
	}
}
