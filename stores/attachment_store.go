package stores

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttachmentRecord is the metadata row for one uploaded file. The Key is
// content-addressed (sha256 of the bytes), so re-uploading identical bytes
// yields the same key. Deletion is soft: the row is flagged but the backing
// bytes stay on disk until swept separately.
type AttachmentRecord struct {
	gorm.Model
	Key      string `gorm:"index;not null" json:"key"`
	UserID   string `gorm:"index" json:"userId"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// AttachmentStore persists uploaded bytes under a served directory and their
// metadata in the database.
type AttachmentStore struct {
	db      *gorm.DB
	dir     string
	baseURL string
}

// NewAttachmentStore creates an attachment store writing files under dir and
// returning URLs rooted at baseURL.
func NewAttachmentStore(db *gorm.DB, dir, baseURL string) (*AttachmentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if err := db.AutoMigrate(&AttachmentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate attachment_records table: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachments directory: %w", err)
	}

	return &AttachmentStore{
		db:      db,
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Save writes the bytes to disk and records metadata, returning the durable
// record with its URL and content key.
func (s *AttachmentStore) Save(userID, filename, mimeType string, data []byte) (*AttachmentRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("attachment is empty")
	}

	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])

	// Disk name carries a random component so two users uploading the same
	// bytes under different filenames don't fight over one path.
	diskName := uuid.New().String()[:8] + "_" + sanitizeFilename(filename)
	path := filepath.Join(s.dir, diskName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write attachment to disk: %w", err)
	}

	rec := &AttachmentRecord{
		Key:      key,
		UserID:   userID,
		Filename: filename,
		MimeType: mimeType,
		Size:     int64(len(data)),
		URL:      s.baseURL + "/" + diskName,
	}

	if err := s.db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("failed to save attachment record: %w", err)
	}

	return rec, nil
}

// Get returns the live record for a content key.
func (s *AttachmentStore) Get(key string) (*AttachmentRecord, error) {
	var rec AttachmentRecord
	if err := s.db.Where("key = ?", key).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch attachment %s: %w", key, err)
	}
	return &rec, nil
}

// Delete flags the record deleted. Backing bytes are not erased here.
func (s *AttachmentStore) Delete(key, userID string) error {
	res := s.db.Where("key = ? AND user_id = ?", key, userID).Delete(&AttachmentRecord{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete attachment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("attachment %s not found for user", key)
	}
	return nil
}

// Dir returns the directory attachments are written under, for static
// serving.
func (s *AttachmentStore) Dir() string {
	return s.dir
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
