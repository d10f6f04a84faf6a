package sessions

import (
	"fmt"
	"log"
	"os"

	"github.com/streamline-ai/streamline/stores"
)

// NewChatSession creates a session for one streamed turn with a logger
// prefixed by the conversation it serves.
func NewChatSession(conversationID string, model GenerationModel, store stores.ConversationStore, logStore stores.RequestLogStore) *ChatSession {
	logger := log.New(os.Stdout, fmt.Sprintf("[CHAT %s] ", shortID(conversationID)), log.LstdFlags)
	return &ChatSession{
		Model:    model,
		Store:    store,
		LogStore: logStore,
		Logger:   logger,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
