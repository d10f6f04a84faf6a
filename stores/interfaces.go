package stores

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrConversationNotFound reports a conversation id with no live record.
// Soft-deleted conversations also read as not found; their id stays taken.
var ErrConversationNotFound = errors.New("conversation not found")

// Turn roles.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleSystem     = "system"
	RoleToolCall   = "tool-call"
	RoleToolResult = "tool-result"
)

// Turn is one message-like unit inside a conversation: a user prompt, an
// assistant reply, or tool-call/tool-result bookkeeping. Order is append-only
// and carried by Sequence; it always reflects generation order.
type Turn struct {
	gorm.Model
	ConversationID string `gorm:"index;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"not null"`
	// Text is the primary text content. For tool turns it stays empty.
	Text string `gorm:"type:text"`
	// PartsJSON holds the JSON-marshaled []models.ContentPart for multi-modal
	// user/assistant turns; empty for plain-text turns.
	PartsJSON string `gorm:"type:text"`
	// Tool bookkeeping. A tool-call turn's ToolCallID, if matched, is echoed
	// by exactly one later tool-result turn.
	ToolName   string `gorm:"index"`
	ToolCallID string `gorm:"index"`
	ArgsJSON   string `gorm:"type:text"`
	ResultJSON string `gorm:"type:text"`
	// ModelID records which model produced an assistant turn.
	ModelID string
}

// Conversation holds metadata for one chat conversation. Deletion is soft:
// gorm's DeletedAt excludes flagged rows from normal reads.
type Conversation struct {
	gorm.Model
	ConversationID string `gorm:"uniqueIndex;not null"`
	UserID         string `gorm:"index;not null"`
	Title          string `gorm:"type:text"`
	TurnCount      int    `gorm:"default:0"`
	Turns          []Turn `gorm:"foreignKey:ConversationID;references:ConversationID"`
}

// ConversationInfo is the listing view of a conversation.
type ConversationInfo struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Title          string    `json:"title"`
	TurnCount      int       `json:"turnCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ConversationStore abstracts conversation persistence.
type ConversationStore interface {
	// CreateConversation creates an empty conversation owned by userID.
	CreateConversation(convoID, userID string) error
	// AppendTurn appends a single turn, assigning the next sequence number.
	AppendTurn(convoID string, turn Turn) error
	// AppendTurns appends several turns in one transaction, preserving slice
	// order. Either all land or none do.
	AppendTurns(convoID string, turns []Turn) error
	// FetchTurns returns a conversation's turns in sequence order.
	FetchTurns(convoID string) ([]Turn, error)
	// GetConversation returns the conversation metadata, or an error if it
	// does not exist or is soft-deleted.
	GetConversation(convoID string) (*Conversation, error)
	// SetTitleIfEmpty sets the title only when none has been set yet.
	SetTitleIfEmpty(convoID, title string) error
	// ListConversationsForUser lists a user's live conversations, most
	// recently updated first.
	ListConversationsForUser(userID string) ([]ConversationInfo, error)
	// SoftDelete flags the conversation deleted; it keeps rows but excludes
	// them from reads. Only the owner may delete.
	SoftDelete(convoID, userID string) error

	Connect() error
	Close() error
	Ping() error
}

// StoreConfig selects and configures a backing database.
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite" or "postgres"
	Connection string            `json:"connection"` // file path or DSN
	Options    map[string]string `json:"options"`
}

// NewStoreConfig creates a new store configuration.
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration.
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
