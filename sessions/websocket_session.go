package sessions

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/streamline-ai/streamline/models"
)

// TurnRunner executes one orchestrated turn for a request, writing frames
// to the writer as they are produced.
type TurnRunner func(ctx context.Context, req models.ChatRequest, userID string, writer FrameWriter) error

// SocketSession serves a long-lived websocket connection. Each JSON chat
// request read from the socket runs one turn; frames stream back over the
// same connection.
type SocketSession struct {
	Conn   *websocket.Conn
	UserID string
	Runner TurnRunner
	Logger *log.Logger
}

func NewSocketSession(conn *websocket.Conn, userID string, runner TurnRunner) *SocketSession {
	logger := log.New(os.Stdout, fmt.Sprintf("[WS %s] ", shortID(userID)), log.LstdFlags)
	return &SocketSession{
		Conn:   conn,
		UserID: userID,
		Runner: runner,
		Logger: logger,
	}
}

// Run reads requests until the client disconnects or the context ends.
func (ss *SocketSession) Run(ctx context.Context) {
	writer := &WebSocketWriter{Conn: ss.Conn, Logger: ss.Logger}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var req models.ChatRequest
		if err := ss.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ss.Logger.Printf("Read error: %v", err)
			}
			return
		}

		if strings.TrimSpace(req.Prompt) == "" {
			if err := writer.WriteFrame(models.ErrorFrame("prompt is required")); err != nil {
				return
			}
			continue
		}

		if err := ss.Runner(ctx, req, ss.UserID, writer); err != nil {
			ss.Logger.Printf("Turn ended in error: %v", err)
		}
	}
}
