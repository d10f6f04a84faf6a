package models

// ChatRequest is the body of a streaming chat call.
type ChatRequest struct {
	Prompt         string       `json:"prompt"`
	ConversationID string       `json:"conversationId,omitempty"`
	System         string       `json:"system,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	// APIKey optionally supplies a caller-scoped credential; when present and
	// a model factory is configured it takes priority over the default model.
	APIKey string `json:"apiKey,omitempty"`
}

// RemixRequest is the body of the non-streaming rewrite call.
type RemixRequest struct {
	Text   string `json:"text"`
	APIKey string `json:"apiKey,omitempty"`
}
