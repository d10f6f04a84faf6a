package sessions

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/stores"
)

// GenerationModel is the provider-neutral surface a chat session drives.
// Stream runs a full turn including tool execution and emits flat events;
// Generate is a one-shot text completion with no tools or history.
type GenerationModel interface {
	ID() string
	Stream(ctx context.Context, system string, history []models.ModelMessage, tools map[string]models.ToolDescriptor) (<-chan models.StreamEvent, <-chan error)
	Generate(ctx context.Context, prompt string) (string, error)
}

// SessionError distinguishes failures that end the stream from ones the
// client only needs to be told about.
type SessionError struct {
	Message string
	Fatal   bool
}

func (e *SessionError) Error() string {
	return e.Message
}

// FrameWriter delivers frames to a client over some transport.
type FrameWriter interface {
	WriteFrame(frame models.Frame) error
}

// SSEWriter streams frames as server-sent events over a gin context.
type SSEWriter struct {
	Ctx    *gin.Context
	Logger *log.Logger

	startTime        time.Time
	firstFrameLogged bool
}

func NewSSEWriter(c *gin.Context, logger *log.Logger) *SSEWriter {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	return &SSEWriter{Ctx: c, Logger: logger, startTime: time.Now()}
}

func (w *SSEWriter) WriteFrame(frame models.Frame) error {
	// Gin's Flush swallows write errors, so a gone client only shows up
	// through the request context.
	if err := w.Ctx.Request.Context().Err(); err != nil {
		return fmt.Errorf("client disconnected: %w", err)
	}
	if !w.firstFrameLogged && w.Logger != nil {
		w.Logger.Printf("Time to first frame: %v", time.Since(w.startTime))
		w.firstFrameLogged = true
	}
	w.Ctx.SSEvent("message", frame)
	w.Ctx.Writer.Flush()
	return nil
}

// WebSocketWriter streams frames over a websocket connection. Writes are
// serialized because gorilla connections allow one concurrent writer.
type WebSocketWriter struct {
	Conn   *websocket.Conn
	Logger *log.Logger
	mu     sync.Mutex
}

func (w *WebSocketWriter) WriteFrame(frame models.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Conn.WriteJSON(frame)
}

// StreamOptions carries the per-request inputs for one turn.
type StreamOptions struct {
	ConversationID string
	UserID         string
	Prompt         string
	Attachments    []models.Attachment
	System         string
	Tools          map[string]models.ToolDescriptor
}

// ChatSession ties a model, a store, and a client transport together for
// the duration of one streamed turn.
type ChatSession struct {
	Model    GenerationModel
	Store    stores.ConversationStore
	LogStore stores.RequestLogStore
	Logger   *log.Logger
}
