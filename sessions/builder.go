package sessions

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/stores"
)

// BuildUserTurn wraps a prompt and its attachments into the turn to append.
// The prompt becomes a text part and each attachment one image or file part,
// in the attachment list's order. A parts array is only stored when the turn
// actually has more than one part.
func BuildUserTurn(prompt string, attachments []models.Attachment) (stores.Turn, error) {
	turn := stores.Turn{Role: stores.RoleUser, Text: prompt}

	parts := []models.ContentPart{{Type: models.PartText, Text: prompt}}
	for _, att := range attachments {
		partType := models.PartFile
		if att.Type == models.PartImage {
			partType = models.PartImage
		}
		parts = append(parts, models.ContentPart{
			Type:     partType,
			URL:      att.URL,
			MimeType: att.MimeType,
			Filename: att.Filename,
		})
	}

	if len(parts) > 1 {
		raw, err := json.Marshal(parts)
		if err != nil {
			return stores.Turn{}, fmt.Errorf("failed to marshal content parts: %w", err)
		}
		turn.PartsJSON = string(raw)
	}

	return turn, nil
}

// BuildMessages converts a conversation's turns into the message list a
// generation model consumes. Tool-call and tool-result turns are bookkeeping
// and never re-enter the context. User turns with a parts array expand into
// multi-part messages preserving part order. Deterministic for a given input.
func BuildMessages(turns []stores.Turn) []models.ModelMessage {
	messages := make([]models.ModelMessage, 0, len(turns))

	for _, t := range turns {
		switch t.Role {
		case stores.RoleToolCall, stores.RoleToolResult:
			continue
		case stores.RoleUser:
			if t.PartsJSON != "" {
				var parts []models.ContentPart
				if err := json.Unmarshal([]byte(t.PartsJSON), &parts); err != nil {
					log.Printf("Warning: failed to unmarshal parts for turn %d, using plain text: %v", t.ID, err)
					messages = append(messages, models.ModelMessage{Role: t.Role, Text: t.Text})
					continue
				}
				messages = append(messages, models.ModelMessage{Role: t.Role, Parts: parts})
				continue
			}
			messages = append(messages, models.ModelMessage{Role: t.Role, Text: t.Text})
		default:
			if t.Text == "" {
				continue
			}
			messages = append(messages, models.ModelMessage{Role: t.Role, Text: t.Text})
		}
	}

	return messages
}
