package sessions

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/stores"
)

// imagePlaceholder stands in for assistant text when a turn produced media
// but no words.
const imagePlaceholder = "(image)"

// leakedActionPattern matches a JSON "action" fragment some models leak at
// the end of otherwise-final answer text.
var leakedActionPattern = regexp.MustCompile(`(?s)\s*\{\s*"action"\s*:.*\}\s*$`)

// strippedKeys are result fields holding inline binary payloads. They are
// removed before a tool result is forwarded or persisted.
var strippedKeys = map[string]bool{
	"data":   true,
	"base64": true,
	"blob":   true,
	"bytes":  true,
}

// EngineResult is everything one streamed turn accumulated: the bookkeeping
// turns to persist, the final assistant text and media, and token usage.
type EngineResult struct {
	Turns          []stores.Turn
	AssistantText  string
	Media          []models.FileEvent
	PromptTokens   int
	ResponseTokens int
}

// engine is the single transformation stage between the model's event
// stream and the client's frame stream. It owns the per-step text buffer
// that separates leaked reasoning from real answer text.
type engine struct {
	writer  FrameWriter
	logger  *log.Logger
	modelID string

	buffer     strings.Builder
	hadCall    bool
	full       strings.Builder
	result     EngineResult
	clientGone bool
}

// RunEngine consumes the event and error channels until both close,
// forwarding filtered frames to the writer. The returned result is valid
// even when an error is also returned, so the caller can persist whatever
// was accumulated before the failure.
func RunEngine(events <-chan models.StreamEvent, errs <-chan error, writer FrameWriter, logger *log.Logger, modelID string) (EngineResult, error) {
	e := &engine{writer: writer, logger: logger, modelID: modelID}

	var streamErr error
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handle(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				streamErr = err
			}
		}
	}

	// Final flush catches trailing text from a stream that ended without
	// a closing step-finish.
	e.flushBuffer()
	e.finishAssistantTurn()

	return e.result, streamErr
}

func (e *engine) handle(ev models.StreamEvent) {
	switch event := ev.(type) {
	case models.StepStart:
		e.buffer.Reset()
		e.hadCall = false

	case models.TextDelta:
		// Provisional until the step closes without a tool call.
		e.buffer.WriteString(event.Text)

	case models.ToolCallEvent:
		e.hadCall = true
		if discarded := e.buffer.Len(); discarded > 0 {
			e.logger.Printf("Discarding %d bytes of leaked reasoning before tool call %s", discarded, event.Name)
		}
		e.forward(models.Frame{ToolCall: &models.ToolCallFrame{
			ToolName:   event.Name,
			ToolCallID: event.ID,
			Args:       event.Args,
		}})
		e.result.Turns = append(e.result.Turns, stores.Turn{
			Role:       stores.RoleToolCall,
			ToolName:   event.Name,
			ToolCallID: event.ID,
			ArgsJSON:   marshalLoose(event.Args),
		})

	case models.ToolResultEvent:
		cleaned := stripResultPayloads(event.Result)
		e.forward(models.Frame{ToolResult: &models.ToolResultFrame{
			ToolName:   event.Name,
			ToolCallID: event.ID,
			Result:     cleaned,
		}})
		e.result.Turns = append(e.result.Turns, stores.Turn{
			Role:       stores.RoleToolResult,
			ToolName:   event.Name,
			ToolCallID: event.ID,
			ResultJSON: marshalLoose(cleaned),
		})

	case models.FileEvent:
		frame := models.Frame{}
		media := &models.MediaFrame{Filename: event.Filename, MimeType: event.MimeType, URL: event.URL}
		if strings.HasPrefix(event.MimeType, "image/") {
			frame.Image = media
		} else {
			frame.File = media
		}
		e.forward(frame)
		e.result.Media = append(e.result.Media, event)

	case models.ErrorEvent:
		// Transient provider warnings do not end the stream.
		e.forward(models.ErrorFrame(event.Message))

	case models.StepFinish:
		if event.PromptTokens > 0 {
			e.result.PromptTokens = event.PromptTokens
		}
		if event.ResponseTokens > 0 {
			e.result.ResponseTokens += event.ResponseTokens
		}
		if e.hadCall {
			e.buffer.Reset()
			return
		}
		e.flushBuffer()
	}
}

// flushBuffer cleans and forwards any buffered step text, then clears the
// buffer. Text from a step that invoked a tool never gets here.
func (e *engine) flushBuffer() {
	if e.hadCall || e.buffer.Len() == 0 {
		e.buffer.Reset()
		return
	}
	cleaned := StripLeakedAction(e.buffer.String())
	e.buffer.Reset()
	if cleaned == "" {
		return
	}
	e.forward(models.TextFrame(cleaned))
	e.full.WriteString(cleaned)
}

func (e *engine) finishAssistantTurn() {
	text := e.full.String()
	if text == "" && len(e.result.Media) == 0 {
		return
	}
	if text == "" {
		text = imagePlaceholder
	}
	e.result.AssistantText = text

	turn := stores.Turn{Role: stores.RoleAssistant, Text: text, ModelID: e.modelID}
	if len(e.result.Media) > 0 {
		parts := []models.ContentPart{{Type: models.PartText, Text: text}}
		for _, m := range e.result.Media {
			partType := models.PartFile
			if strings.HasPrefix(m.MimeType, "image/") {
				partType = models.PartImage
			}
			parts = append(parts, models.ContentPart{
				Type:     partType,
				URL:      m.URL,
				MimeType: m.MimeType,
				Filename: m.Filename,
			})
		}
		turn.PartsJSON = marshalLoose(parts)
	}
	e.result.Turns = append(e.result.Turns, turn)
}

// forward writes one frame to the client. A failed write means the client
// is gone; the engine keeps accumulating so the turn can still be persisted.
func (e *engine) forward(frame models.Frame) {
	if e.clientGone {
		return
	}
	if err := e.writer.WriteFrame(frame); err != nil {
		e.logger.Printf("Client write failed, continuing without forwarding: %v", err)
		e.clientGone = true
	}
}

// StripLeakedAction removes a trailing leaked JSON action fragment from
// answer text. Text without a fragment passes through byte-identical, so
// forwarded step text stays equal to the concatenation of its deltas.
func StripLeakedAction(text string) string {
	return leakedActionPattern.ReplaceAllString(text, "")
}

func stripResultPayloads(result map[string]interface{}) map[string]interface{} {
	cleaned, ok := stripInlinePayloads(result).(map[string]interface{})
	if !ok {
		return result
	}
	return cleaned
}

// stripInlinePayloads removes embedded binary payloads from a tool result
// so neither the client stream nor the transcript carries them.
func stripInlinePayloads(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if strippedKeys[strings.ToLower(k)] {
				if s, ok := inner.(string); ok && len(s) > 256 {
					out[k] = "(stripped)"
					continue
				}
			}
			out[k] = stripInlinePayloads(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = stripInlinePayloads(inner)
		}
		return out
	default:
		return v
	}
}

func marshalLoose(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
