package server

import (
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/streamline-ai/streamline"
)

const userIDHeader = "X-User-ID"

// Server exposes the orchestrator over HTTP: an SSE chat stream, a websocket
// session, and the conversation/attachment/admin surface around them.
type Server struct {
	Orchestrator *streamline.Orchestrator
	engine       *gin.Engine
	upgrader     websocket.Upgrader
	logger       *log.Logger
}

func New(orchestrator *streamline.Orchestrator) *Server {
	s := &Server{
		Orchestrator: orchestrator,
		engine:       gin.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log.New(os.Stdout, "[SERVER] ", log.LstdFlags),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	if attachments := s.Orchestrator.Config.Attachments; attachments != nil {
		s.engine.Static("/files", attachments.Dir())
	}

	api := s.engine.Group("/api/v1", s.requireUser())
	{
		api.POST("/chat/stream", s.handleChatStream)
		api.GET("/chat/ws", s.handleChatWS)
		api.GET("/chat/history/:id", s.handleHistory)
		api.POST("/remix", s.handleRemix)
		api.GET("/conversations", s.handleListConversations)
		api.DELETE("/conversations/:id", s.handleDeleteConversation)
		api.POST("/attachments", s.handleUploadAttachment)

		admin := api.Group("/tools", s.requireAdmin())
		{
			admin.GET("/providers", s.handleProviderStatus)
			admin.POST("/providers/:name/reconnect", s.handleProviderReconnect)
		}
	}
}

// requireUser enforces the caller identity header.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + userIDHeader + " header"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if !s.Orchestrator.Config.IsAdmin(userID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the HTTP server and blocks.
func (s *Server) Run(addr string) error {
	s.logger.Printf("Listening on %s", addr)
	return s.engine.Run(addr)
}
