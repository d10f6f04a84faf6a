package stores

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresStore implements ConversationStore for PostgreSQL databases.
type PostgresStore struct {
	db  *gorm.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(config *StoreConfig) (*PostgresStore, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for PostgreSQL store: %s", config.Type)
	}

	store := &PostgresStore{
		dsn: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	return store, nil
}

// NewPostgresStoreSimple creates a new PostgreSQL store with just a DSN.
func NewPostgresStoreSimple(dsn string) (*PostgresStore, error) {
	config := NewStoreConfig("postgres", dsn)
	return NewPostgresStore(config)
}

// Connect establishes a connection to the PostgreSQL database.
func (s *PostgresStore) Connect() error {
	db, err := gorm.Open(postgres.Open(s.dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	s.db = db

	if err := s.db.AutoMigrate(&Conversation{}, &Turn{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// DB exposes the underlying gorm handle so sibling stores can share it.
func (s *PostgresStore) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
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
func (s *PostgresStore) Ping() error {
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
func (s *PostgresStore) CreateConversation(convoID, userID string) error {
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
func (s *PostgresStore) AppendTurn(convoID string, turn Turn) error {
	return s.AppendTurns(convoID, []Turn{turn})
}

// AppendTurns appends turns in one transaction, preserving slice order.
func (s *PostgresStore) AppendTurns(convoID string, turns []Turn) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if len(turns) == 0 {
		return nil
	}
	return appendTurns(s.db, convoID, turns)
}

// FetchTurns retrieves a conversation's turns in sequence order.
func (s *PostgresStore) FetchTurns(convoID string) ([]Turn, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return fetchTurns(s.db, convoID)
}

// GetConversation returns conversation metadata for a live conversation.
func (s *PostgresStore) GetConversation(convoID string) (*Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return getConversation(s.db, convoID)
}

// SetTitleIfEmpty sets the conversation title only when it is still unset.
func (s *PostgresStore) SetTitleIfEmpty(convoID, title string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return setTitleIfEmpty(s.db, convoID, title)
}

// ListConversationsForUser returns a user's live conversations, most recently
// updated first.
func (s *PostgresStore) ListConversationsForUser(userID string) ([]ConversationInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return listConversationsForUser(s.db, userID)
}

// SoftDelete flags a conversation deleted without erasing its rows.
func (s *PostgresStore) SoftDelete(convoID, userID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return softDelete(s.db, convoID, userID)
}
