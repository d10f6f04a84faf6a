package stores

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements ConversationStore for SQLite databases.
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(config *StoreConfig) (*SQLiteStore, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}

	store := &SQLiteStore{
		path: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreSimple creates a new SQLite store with just a file path.
func NewSQLiteStoreSimple(dbPath string) (*SQLiteStore, error) {
	config := NewStoreConfig("sqlite", dbPath)
	return NewSQLiteStore(config)
}

// Connect establishes a connection to the SQLite database.
func (s *SQLiteStore) Connect() error {
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	s.db = db

	if err := s.db.AutoMigrate(&Conversation{}, &Turn{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// DB exposes the underlying gorm handle so sibling stores can share it.
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive.
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// CreateConversation creates a new conversation record.
func (s *SQLiteStore) CreateConversation(convoID, userID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	conv := Conversation{
		ConversationID: convoID,
		UserID:         userID,
		TurnCount:      0,
	}

	return s.db.Create(&conv).Error
}

// AppendTurn appends a single turn with the next sequence number.
func (s *SQLiteStore) AppendTurn(convoID string, turn Turn) error {
	return s.AppendTurns(convoID, []Turn{turn})
}

// AppendTurns appends turns in one transaction, preserving slice order.
func (s *SQLiteStore) AppendTurns(convoID string, turns []Turn) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if len(turns) == 0 {
		return nil
	}
	return appendTurns(s.db, convoID, turns)
}

// FetchTurns retrieves a conversation's turns in sequence order.
func (s *SQLiteStore) FetchTurns(convoID string) ([]Turn, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return fetchTurns(s.db, convoID)
}

// GetConversation returns conversation metadata for a live conversation.
func (s *SQLiteStore) GetConversation(convoID string) (*Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return getConversation(s.db, convoID)
}

// SetTitleIfEmpty sets the conversation title only when it is still unset.
func (s *SQLiteStore) SetTitleIfEmpty(convoID, title string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return setTitleIfEmpty(s.db, convoID, title)
}

// ListConversationsForUser returns a user's live conversations, most recently
// updated first.
func (s *SQLiteStore) ListConversationsForUser(userID string) ([]ConversationInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return listConversationsForUser(s.db, userID)
}

// SoftDelete flags a conversation deleted without erasing its rows.
func (s *SQLiteStore) SoftDelete(convoID, userID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return softDelete(s.db, convoID, userID)
}
