package stores

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// maxLoggedText caps the prompt/response text stored per entry.
const maxLoggedText = 2000

// RequestLogEntry is one append-only audit record for a model call. Entries
// are never mutated after creation. UserID is empty for system-level calls.
type RequestLogEntry struct {
	ID             uint      `gorm:"primarykey" json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UserID         string    `gorm:"index" json:"userId,omitempty"`
	ConversationID string    `gorm:"index" json:"conversationId,omitempty"`
	ModelID        string    `gorm:"not null" json:"modelId"`
	Prompt         string    `gorm:"type:text" json:"prompt"`
	Response       string    `gorm:"type:text" json:"response"`
	ElapsedMS      int64     `json:"elapsedMs"`
	PromptTokens   int       `json:"promptTokens"`
	ResponseTokens int       `json:"responseTokens"`
	ErrorText      string    `gorm:"type:text" json:"errorText,omitempty"`
}

// RequestLogStore records per-call metadata out of band. Implementations are
// best-effort by contract: callers log failures and move on.
type RequestLogStore interface {
	SaveEntry(entry *RequestLogEntry) error
	ListByUser(userID string, limit int) ([]*RequestLogEntry, error)
	PruneOlderThan(age time.Duration) (int64, error)
}

// GORMRequestLogStore implements RequestLogStore on an existing gorm
// connection, so it can share the conversation store's database.
type GORMRequestLogStore struct {
	db *gorm.DB
}

// NewGORMRequestLogStore creates a request log store from an existing GORM
// database connection.
func NewGORMRequestLogStore(db *gorm.DB) (*GORMRequestLogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	if err := db.AutoMigrate(&RequestLogEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate request_log_entries table: %w", err)
	}

	return &GORMRequestLogStore{db: db}, nil
}

// SaveEntry appends a single log entry, truncating oversized text fields.
func (s *GORMRequestLogStore) SaveEntry(entry *RequestLogEntry) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	entry.Prompt = truncate(entry.Prompt, maxLoggedText)
	entry.Response = truncate(entry.Response, maxLoggedText)
	return s.db.Create(entry).Error
}

// ListByUser retrieves a user's most recent entries, newest first.
func (s *GORMRequestLogStore) ListByUser(userID string, limit int) ([]*RequestLogEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var entries []*RequestLogEntry
	query := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}

// PruneOlderThan deletes entries older than age and reports how many went.
func (s *GORMRequestLogStore) PruneOlderThan(age time.Duration) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	cutoff := time.Now().Add(-age)
	res := s.db.Where("created_at < ?", cutoff).Delete(&RequestLogEntry{})
	return res.RowsAffected, res.Error
}

// StartRetentionSweep schedules a periodic prune of entries older than
// retention. The returned cron is already started; stop it on shutdown.
func StartRetentionSweep(store RequestLogStore, retention time.Duration, schedule string) (*cron.Cron, error) {
	if schedule == "" {
		schedule = "0 30 3 * * *" // daily, off-peak
	}

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(schedule, func() {
		pruned, err := store.PruneOlderThan(retention)
		if err != nil {
			log.Printf("Request log retention sweep failed: %v", err)
			return
		}
		if pruned > 0 {
			log.Printf("Request log retention sweep pruned %d entries", pruned)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	c.Start()
	return c, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
