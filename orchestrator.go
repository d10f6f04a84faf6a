package streamline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/sessions"
	"github.com/streamline-ai/streamline/stores"
)

const remixInstruction = "Rewrite the following text with better flow and clarity. Keep the meaning and approximate length. Reply with only the rewritten text.\n\n"

// Orchestrator is the entry point for chat turns and one-shot generations.
type Orchestrator struct {
	Config *Config
	logger *log.Logger
}

func NewOrchestrator(cfg *Config) *Orchestrator {
	return &Orchestrator{
		Config: cfg,
		logger: log.New(os.Stdout, "[ORCHESTRATOR] ", log.LstdFlags),
	}
}

// ErrInvalidRequest marks validation failures rejected before streaming.
type ErrInvalidRequest struct {
	Reason string
}

func (e *ErrInvalidRequest) Error() string {
	return e.Reason
}

// StreamChat runs one full conversational turn for a request, pushing frames
// to the writer. The conversation is created lazily when the request carries
// no id. With no resolvable model the canned demonstration response is
// emitted and nothing is persisted.
func (o *Orchestrator) StreamChat(ctx context.Context, req models.ChatRequest, userID string, writer sessions.FrameWriter) error {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return &ErrInvalidRequest{Reason: "prompt is required"}
	}

	model := o.Config.ResolveModel(req.APIKey)
	if model == nil {
		if err := writer.WriteFrame(models.TextFrame(o.Config.DemoResponse)); err != nil {
			return err
		}
		return writer.WriteFrame(models.DoneFrame(req.ConversationID))
	}

	// Tool discovery runs one round trip per provider; overlap it with
	// conversation setup.
	toolsCh := make(chan map[string]models.ToolDescriptor, 1)
	go func() {
		toolsCh <- o.Config.AggregateTools(ctx, model, nil)
	}()

	convoID, err := o.ensureConversation(req.ConversationID, userID)
	if err != nil {
		return err
	}

	tools := <-toolsCh

	system := o.Config.SystemPrompt
	if req.System != "" {
		system = req.System
	}

	session := sessions.NewChatSession(convoID, model, o.Config.Store, o.Config.LogStore)
	return session.Stream(ctx, sessions.StreamOptions{
		ConversationID: convoID,
		UserID:         userID,
		Prompt:         prompt,
		Attachments:    req.Attachments,
		System:         system,
		Tools:          tools,
	}, writer)
}

// Remix rewrites free text through the same model resolution policy.
func (o *Orchestrator) Remix(ctx context.Context, req models.RemixRequest) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", &ErrInvalidRequest{Reason: "text is required"}
	}

	model := o.Config.ResolveModel(req.APIKey)
	if model == nil {
		return o.Config.DemoResponse, nil
	}

	out, err := model.Generate(ctx, remixInstruction+text)
	if err != nil {
		return "", fmt.Errorf("remix generation failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ensureConversation creates the conversation lazily and enforces ownership
// on existing ones.
func (o *Orchestrator) ensureConversation(convoID, userID string) (string, error) {
	if convoID == "" {
		convoID = uuid.New().String()
		if err := o.Config.Store.CreateConversation(convoID, userID); err != nil {
			return "", fmt.Errorf("failed to create conversation: %w", err)
		}
		o.logger.Printf("Created conversation %s for user %s", convoID, userID)
		return convoID, nil
	}

	convo, err := o.Config.Store.GetConversation(convoID)
	if err != nil {
		if !errors.Is(err, stores.ErrConversationNotFound) {
			return "", fmt.Errorf("failed to load conversation: %w", err)
		}
		// Unknown id: adopt it so clients may pre-generate ids. A create
		// failure here means a deleted conversation still holds the id.
		if createErr := o.Config.Store.CreateConversation(convoID, userID); createErr != nil {
			return "", &ErrInvalidRequest{Reason: "conversation no longer exists"}
		}
		return convoID, nil
	}
	if convo.UserID != userID {
		return "", &ErrInvalidRequest{Reason: "conversation belongs to another user"}
	}
	return convoID, nil
}
