package stores

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

// Shared gorm operations backing both the SQLite and PostgreSQL stores.

func appendTurns(db *gorm.DB, convoID string, turns []Turn) error {
	return db.Transaction(func(tx *gorm.DB) error {
		// Ensure the conversation row exists; a turn appended before the
		// caller created the conversation still needs a parent record.
		var count int64
		if err := tx.Model(&Conversation{}).Where("conversation_id = ?", convoID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check for conversation: %w", err)
		}
		if count == 0 {
			log.Printf("Warning: appending turns to nonexistent conversation %s; creating record without owner", convoID)
			if err := tx.Create(&Conversation{ConversationID: convoID}).Error; err != nil {
				return fmt.Errorf("failed to create conversation record: %w", err)
			}
		}

		var seq int64
		if err := tx.Model(&Turn{}).Where("conversation_id = ?", convoID).Count(&seq).Error; err != nil {
			return fmt.Errorf("failed to count existing turns: %w", err)
		}

		for i := range turns {
			turns[i].ConversationID = convoID
			turns[i].Sequence = int(seq) + i + 1
			if err := tx.Create(&turns[i]).Error; err != nil {
				return fmt.Errorf("failed to create turn record: %w", err)
			}
		}

		newCount := int(seq) + len(turns)
		if err := tx.Model(&Conversation{}).Where("conversation_id = ?", convoID).Update("turn_count", newCount).Error; err != nil {
			return fmt.Errorf("failed to update conversation turn count: %w", err)
		}
		return nil
	})
}

func fetchTurns(db *gorm.DB, convoID string) ([]Turn, error) {
	var turns []Turn
	if err := db.Where("conversation_id = ?", convoID).Order("sequence ASC").Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch turns: %w", err)
	}
	return turns, nil
}

func getConversation(db *gorm.DB, convoID string) (*Conversation, error) {
	var conv Conversation
	if err := db.Where("conversation_id = ?", convoID).First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", convoID, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to fetch conversation %s: %w", convoID, err)
	}
	return &conv, nil
}

func setTitleIfEmpty(db *gorm.DB, convoID, title string) error {
	return db.Model(&Conversation{}).
		Where("conversation_id = ? AND (title = '' OR title IS NULL)", convoID).
		Update("title", title).Error
}

func listConversationsForUser(db *gorm.DB, userID string) ([]ConversationInfo, error) {
	var convs []Conversation
	if err := db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	result := make([]ConversationInfo, len(convs))
	for i, c := range convs {
		result[i] = ConversationInfo{
			ConversationID: c.ConversationID,
			UserID:         c.UserID,
			Title:          c.Title,
			TurnCount:      c.TurnCount,
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
		}
	}
	return result, nil
}

func softDelete(db *gorm.DB, convoID, userID string) error {
	res := db.Where("conversation_id = ? AND user_id = ?", convoID, userID).Delete(&Conversation{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("conversation %s not found for user", convoID)
	}
	return nil
}
