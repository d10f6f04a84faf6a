package sessions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/stores"
)

const maxTitleLength = 80

// Stream runs one full turn: the user turn is appended immediately, the
// model's event stream is filtered through the step engine to the writer,
// and the accumulated turns are committed in a single append once the
// stream settles. The request log entry is flushed no matter how the turn
// ended.
func (s *ChatSession) Stream(ctx context.Context, opts StreamOptions, writer FrameWriter) error {
	start := time.Now()

	userTurn, err := BuildUserTurn(opts.Prompt, opts.Attachments)
	if err != nil {
		writeFrameQuiet(writer, errorThenDone(opts.ConversationID, err.Error())...)
		return err
	}

	// Appended before streaming so a crash mid-stream still preserves
	// what the user asked.
	if err := s.Store.AppendTurn(opts.ConversationID, userTurn); err != nil {
		err = fmt.Errorf("failed to append user turn: %w", err)
		writeFrameQuiet(writer, errorThenDone(opts.ConversationID, err.Error())...)
		return err
	}

	history, err := s.Store.FetchTurns(opts.ConversationID)
	if err != nil {
		err = fmt.Errorf("failed to fetch history: %w", err)
		writeFrameQuiet(writer, errorThenDone(opts.ConversationID, err.Error())...)
		return err
	}
	history = stores.SanitizeTurns(history)
	messages := BuildMessages(history)

	events, errs := s.Model.Stream(ctx, opts.System, messages, opts.Tools)
	result, streamErr := RunEngine(events, errs, writer, s.Logger, s.Model.ID())

	defer s.logRequest(opts, result, start, streamErr)

	if streamErr != nil {
		s.Logger.Printf("Stream ended in error: %v", streamErr)
		writeFrameQuiet(writer, errorFrameOf(streamErr.Error()))
	}

	// Single commit for everything the stream produced.
	if len(result.Turns) > 0 {
		if err := s.Store.AppendTurns(opts.ConversationID, result.Turns); err != nil {
			err = fmt.Errorf("failed to persist turns: %w", err)
			s.Logger.Printf("%v", err)
			writeFrameQuiet(writer, errorThenDone(opts.ConversationID, err.Error())...)
			return err
		}
	}

	if result.AssistantText != "" {
		if err := s.Store.SetTitleIfEmpty(opts.ConversationID, deriveTitle(result.AssistantText)); err != nil {
			s.Logger.Printf("Failed to set conversation title: %v", err)
		}
	}

	writeFrameQuiet(writer, doneFrameOf(opts.ConversationID))
	return streamErr
}

// logRequest flushes the audit entry. Failures are swallowed; logging must
// never fail a request.
func (s *ChatSession) logRequest(opts StreamOptions, result EngineResult, start time.Time, streamErr error) {
	if s.LogStore == nil {
		return
	}
	entry := &stores.RequestLogEntry{
		UserID:         opts.UserID,
		ConversationID: opts.ConversationID,
		ModelID:        s.Model.ID(),
		Prompt:         opts.Prompt,
		Response:       result.AssistantText,
		ElapsedMS:      time.Since(start).Milliseconds(),
		PromptTokens:   result.PromptTokens,
		ResponseTokens: result.ResponseTokens,
	}
	if streamErr != nil {
		entry.ErrorText = streamErr.Error()
	}
	if err := s.LogStore.SaveEntry(entry); err != nil {
		s.Logger.Printf("Failed to save request log entry: %v", err)
	}
}

func errorFrameOf(msg string) models.Frame {
	return models.ErrorFrame(msg)
}

func doneFrameOf(conversationID string) models.Frame {
	return models.DoneFrame(conversationID)
}

func errorThenDone(conversationID, msg string) []models.Frame {
	return []models.Frame{models.ErrorFrame(msg), models.DoneFrame(conversationID)}
}

// writeFrameQuiet writes frames ignoring transport failures; by this point
// the turn's outcome no longer depends on the client still listening.
func writeFrameQuiet(writer FrameWriter, frames ...models.Frame) {
	for _, frame := range frames {
		if err := writer.WriteFrame(frame); err != nil {
			return
		}
	}
}

// deriveTitle takes the first line of assistant text, truncated.
func deriveTitle(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > maxTitleLength {
		text = strings.TrimSpace(text[:maxTitleLength]) + "..."
	}
	return text
}
