package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/streamline-ai/streamline"
	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/sessions"
)

const maxAttachmentSize = 25 << 20

// handleChatStream runs one turn and pushes frames as server-sent events.
func (s *Server) handleChatStream(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}
	userID := c.GetString("userID")

	writer := sessions.NewSSEWriter(c, s.logger)
	err := s.Orchestrator.StreamChat(c.Request.Context(), req, userID, writer)

	var invalid *streamline.ErrInvalidRequest
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		return
	}
	if err != nil {
		// Frames already carried the error; nothing more to send.
		s.logger.Printf("Chat stream ended in error: %v", err)
	}
}

// handleChatWS upgrades to a websocket and serves turns until the client
// disconnects.
func (s *Server) handleChatWS(c *gin.Context) {
	userID := c.GetString("userID")
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	runner := func(ctx context.Context, req models.ChatRequest, userID string, writer sessions.FrameWriter) error {
		return s.Orchestrator.StreamChat(ctx, req, userID, writer)
	}
	session := sessions.NewSocketSession(conn, userID, runner)
	session.Run(c.Request.Context())
}

func (s *Server) handleRemix(c *gin.Context) {
	var req models.RemixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	out, err := s.Orchestrator.Remix(c.Request.Context(), req)
	var invalid *streamline.ErrInvalidRequest
	if errors.As(err, &invalid) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": out})
}

func (s *Server) handleListConversations(c *gin.Context) {
	userID := c.GetString("userID")
	conversations, err := s.Orchestrator.Config.Store.ListConversationsForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	userID := c.GetString("userID")
	convoID := c.Param("id")
	if err := s.Orchestrator.Config.Store.SoftDelete(convoID, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": convoID})
}

func (s *Server) handleHistory(c *gin.Context) {
	userID := c.GetString("userID")
	convoID := c.Param("id")

	convo, err := s.Orchestrator.Config.Store.GetConversation(convoID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if convo.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "conversation belongs to another user"})
		return
	}

	turns, err := s.Orchestrator.Config.Store.FetchTurns(convoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	view := make([]gin.H, 0, len(turns))
	for _, t := range turns {
		entry := gin.H{
			"sequence": t.Sequence,
			"role":     t.Role,
			"text":     t.Text,
		}
		if t.PartsJSON != "" {
			entry["parts"] = t.PartsJSON
		}
		if t.ToolName != "" {
			entry["toolName"] = t.ToolName
			entry["toolCallId"] = t.ToolCallID
		}
		if t.ArgsJSON != "" {
			entry["args"] = t.ArgsJSON
		}
		if t.ResultJSON != "" {
			entry["result"] = t.ResultJSON
		}
		if t.ModelID != "" {
			entry["modelId"] = t.ModelID
		}
		view = append(view, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"conversationId": convoID,
		"title":          convo.Title,
		"turns":          view,
	})
}

func (s *Server) handleUploadAttachment(c *gin.Context) {
	attachments := s.Orchestrator.Config.Attachments
	if attachments == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "attachment storage is not configured"})
		return
	}
	userID := c.GetString("userID")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field: " + err.Error()})
		return
	}
	if fileHeader.Size > maxAttachmentSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	record, err := attachments.Save(userID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":      record.Key,
		"url":      record.URL,
		"filename": record.Filename,
		"mimeType": record.MimeType,
		"size":     record.Size,
	})
}

func (s *Server) handleProviderStatus(c *gin.Context) {
	providers := s.Orchestrator.Config.Providers
	if providers == nil {
		c.JSON(http.StatusOK, gin.H{"providers": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers.Status()})
}

func (s *Server) handleProviderReconnect(c *gin.Context) {
	providers := s.Orchestrator.Config.Providers
	if providers == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tool providers configured"})
		return
	}
	name := c.Param("name")

	err := providers.Reconnect(c.Request.Context(), name)
	connected := err == nil
	if err != nil {
		s.logger.Printf("Reconnect %s failed: %v", name, err)
	}

	for _, status := range providers.Status() {
		if status.Name == name {
			c.JSON(http.StatusOK, gin.H{"name": status.Name, "connected": status.Connected})
			return
		}
	}
	if !connected {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "connected": connected})
}
