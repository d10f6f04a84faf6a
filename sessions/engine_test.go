package sessions

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/stores"
)

type captureWriter struct {
	frames    []models.Frame
	failAfter int // fail writes once this many frames landed; 0 disables
}

func (w *captureWriter) WriteFrame(frame models.Frame) error {
	if w.failAfter > 0 && len(w.frames) >= w.failAfter {
		return fmt.Errorf("client gone")
	}
	w.frames = append(w.frames, frame)
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[TEST] ", log.LstdFlags)
}

func runEvents(t *testing.T, writer FrameWriter, evs ...models.StreamEvent) (EngineResult, error) {
	t.Helper()
	events := make(chan models.StreamEvent, len(evs))
	errs := make(chan error)
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	close(errs)
	return RunEngine(events, errs, writer, testLogger(), "test-model")
}

func textFrames(frames []models.Frame) []string {
	var texts []string
	for _, f := range frames {
		if f.Text != nil {
			texts = append(texts, *f.Text)
		}
	}
	return texts
}

func TestEnginePlainTextStep(t *testing.T) {
	w := &captureWriter{}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.TextDelta{Text: "Hi "},
		models.TextDelta{Text: "there!"},
		models.StepFinish{PromptTokens: 4, ResponseTokens: 2},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	texts := textFrames(w.frames)
	if len(texts) != 1 || texts[0] != "Hi there!" {
		t.Fatalf("expected one text frame 'Hi there!', got %v", texts)
	}
	if result.AssistantText != "Hi there!" {
		t.Errorf("expected assistant text 'Hi there!', got %q", result.AssistantText)
	}
	if len(result.Turns) != 1 || result.Turns[0].Role != stores.RoleAssistant {
		t.Errorf("expected single assistant turn, got %+v", result.Turns)
	}
	if result.Turns[0].ModelID != "test-model" {
		t.Errorf("assistant turn should record the model, got %q", result.Turns[0].ModelID)
	}
	if result.PromptTokens != 4 || result.ResponseTokens != 2 {
		t.Errorf("expected token counts 4/2, got %d/%d", result.PromptTokens, result.ResponseTokens)
	}
}

func TestEngineDiscardsLeakedReasoningBeforeToolCall(t *testing.T) {
	w := &captureWriter{}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.TextDelta{Text: "I should check the time first."},
		models.ToolCallEvent{ID: "c1", Name: "get_time", Args: map[string]interface{}{}},
		models.ToolResultEvent{ID: "c1", Name: "get_time", Result: map[string]interface{}{"time": "12:00"}},
		models.StepFinish{},
		models.StepStart{},
		models.TextDelta{Text: "It is noon."},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	texts := textFrames(w.frames)
	if len(texts) != 1 || texts[0] != "It is noon." {
		t.Fatalf("leaked reasoning must not reach the client, got text frames %v", texts)
	}
	if result.AssistantText != "It is noon." {
		t.Errorf("expected assistant text 'It is noon.', got %q", result.AssistantText)
	}

	roles := make([]string, len(result.Turns))
	for i, turn := range result.Turns {
		roles[i] = turn.Role
	}
	want := []string{stores.RoleToolCall, stores.RoleToolResult, stores.RoleAssistant}
	if len(roles) != len(want) {
		t.Fatalf("expected turns %v, got %v", want, roles)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("turn %d: expected %s, got %s", i, want[i], roles[i])
		}
	}
	if result.Turns[0].ToolCallID != "c1" || result.Turns[1].ToolCallID != "c1" {
		t.Errorf("tool turns should share the call id, got %q and %q", result.Turns[0].ToolCallID, result.Turns[1].ToolCallID)
	}
}

func TestEngineToolFramesForwardedImmediately(t *testing.T) {
	w := &captureWriter{}
	_, err := runEvents(t, w,
		models.StepStart{},
		models.ToolCallEvent{ID: "c1", Name: "search", Args: map[string]interface{}{"q": "cats"}},
		models.ToolResultEvent{ID: "c1", Name: "search", Result: map[string]interface{}{"hits": float64(3)}},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(w.frames))
	}
	if w.frames[0].ToolCall == nil || w.frames[0].ToolCall.ToolName != "search" {
		t.Errorf("expected tool call frame first, got %+v", w.frames[0])
	}
	if w.frames[1].ToolResult == nil || w.frames[1].ToolResult.ToolCallID != "c1" {
		t.Errorf("expected tool result frame second, got %+v", w.frames[1])
	}
}

func TestEngineStripsInlinePayloadFromToolResult(t *testing.T) {
	w := &captureWriter{}
	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'A'
	}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.ToolCallEvent{ID: "c1", Name: "generate_image", Args: map[string]interface{}{}},
		models.ToolResultEvent{ID: "c1", Name: "generate_image", Result: map[string]interface{}{
			"url":  "https://files/img.png",
			"data": string(big),
			"nested": map[string]interface{}{
				"base64": string(big),
			},
		}},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	forwarded := w.frames[1].ToolResult.Result
	if forwarded["data"] != "(stripped)" {
		t.Errorf("inline payload should be stripped from forwarded result, got %v", forwarded["data"])
	}
	nested := forwarded["nested"].(map[string]interface{})
	if nested["base64"] != "(stripped)" {
		t.Errorf("nested payload should be stripped, got %v", nested["base64"])
	}
	if forwarded["url"] != "https://files/img.png" {
		t.Errorf("non-binary fields must survive, got %v", forwarded["url"])
	}

	var persisted map[string]interface{}
	if err := json.Unmarshal([]byte(result.Turns[1].ResultJSON), &persisted); err != nil {
		t.Fatalf("persisted result not valid JSON: %v", err)
	}
	if persisted["data"] != "(stripped)" {
		t.Errorf("inline payload should be stripped from persisted result too")
	}
}

func TestEngineErrorEventDoesNotEndStream(t *testing.T) {
	w := &captureWriter{}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.ErrorEvent{Message: "transient warning"},
		models.TextDelta{Text: "still here"},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawError, sawText bool
	for _, f := range w.frames {
		if f.Error != nil {
			sawError = true
		}
		if f.Text != nil {
			sawText = true
		}
	}
	if !sawError || !sawText {
		t.Errorf("expected both error and text frames, got %+v", w.frames)
	}
	if result.AssistantText != "still here" {
		t.Errorf("text after a transient error must survive, got %q", result.AssistantText)
	}
}

func TestEngineLeakedActionSuffixStripped(t *testing.T) {
	w := &captureWriter{}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.TextDelta{Text: "The answer is 42. "},
		models.TextDelta{Text: `{"action": "finish", "args": {}}`},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AssistantText != "The answer is 42." {
		t.Errorf("expected leaked action suffix removed, got %q", result.AssistantText)
	}
}

func TestEngineImagePlaceholderWhenOnlyMedia(t *testing.T) {
	w := &captureWriter{}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.FileEvent{MimeType: "image/png", URL: "https://files/img.png", Filename: "img.png"},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AssistantText != "(image)" {
		t.Errorf("expected image placeholder text, got %q", result.AssistantText)
	}
	if len(w.frames) != 1 || w.frames[0].Image == nil {
		t.Fatalf("expected one image frame, got %+v", w.frames)
	}

	final := result.Turns[len(result.Turns)-1]
	if final.Role != stores.RoleAssistant || final.PartsJSON == "" {
		t.Errorf("assistant turn should carry the media as parts, got %+v", final)
	}
}

func TestEngineFinalFlushWithoutStepFinish(t *testing.T) {
	w := &captureWriter{}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.TextDelta{Text: "trailing text"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AssistantText != "trailing text" {
		t.Errorf("trailing buffered text must be flushed at stream end, got %q", result.AssistantText)
	}
}

func TestEngineKeepsAccumulatingAfterClientGone(t *testing.T) {
	w := &captureWriter{failAfter: 1}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.TextDelta{Text: "part one. "},
		models.StepFinish{},
		models.StepStart{},
		models.TextDelta{Text: "part two."},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.frames) != 1 {
		t.Errorf("no frames should land after the client write fails, got %d", len(w.frames))
	}
	if result.AssistantText != "part one. part two." {
		t.Errorf("accumulation must continue after the client is gone, got %q", result.AssistantText)
	}
}

func TestEngineStreamErrorStillReturnsAccumulated(t *testing.T) {
	events := make(chan models.StreamEvent, 4)
	errs := make(chan error, 1)
	events <- models.StepStart{}
	events <- models.TextDelta{Text: "partial"}
	events <- models.StepFinish{}
	errs <- fmt.Errorf("connection reset")
	close(events)
	close(errs)

	w := &captureWriter{}
	result, err := RunEngine(events, errs, w, testLogger(), "test-model")
	if err == nil {
		t.Fatalf("expected stream error to be returned")
	}
	if result.AssistantText != "partial" {
		t.Errorf("accumulated text must survive a stream error, got %q", result.AssistantText)
	}
}

func TestEngineForwardsDeltasByteIdentical(t *testing.T) {
	w := &captureWriter{}
	result, err := runEvents(t, w,
		models.StepStart{},
		models.TextDelta{Text: "Hello "},
		models.TextDelta{Text: "world. "},
		models.StepFinish{},
		models.StepStart{},
		models.TextDelta{Text: "More."},
		models.StepFinish{},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	texts := textFrames(w.frames)
	if len(texts) != 2 || texts[0] != "Hello world. " || texts[1] != "More." {
		t.Fatalf("forwarded text must equal the concatenated deltas, got %q", texts)
	}
	if result.AssistantText != "Hello world. More." {
		t.Errorf("cross-step accumulation lost a separator, got %q", result.AssistantText)
	}
}

func TestStripLeakedAction(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain answer", "plain answer"},
		{`answer {"action": "done"}`, "answer"},
		{`answer
{"action": "tool_use", "args": {"x": 1}}`, "answer"},
		{`{"action": "only"}`, ""},
	}
	for _, c := range cases {
		if got := StripLeakedAction(c.in); got != c.want {
			t.Errorf("StripLeakedAction(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
