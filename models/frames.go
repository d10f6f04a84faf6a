package models

// Frame is one JSON-encoded frame pushed to the caller. Exactly one field is
// set per frame, except the terminal frame which sets Done (and HistoryID
// when a conversation exists).
type Frame struct {
	Text       *string          `json:"text,omitempty"`
	ToolCall   *ToolCallFrame   `json:"toolCall,omitempty"`
	ToolResult *ToolResultFrame `json:"toolResult,omitempty"`
	Image      *MediaFrame      `json:"image,omitempty"`
	File       *MediaFrame      `json:"file,omitempty"`
	Error      *string          `json:"error,omitempty"`
	Done       bool             `json:"done,omitempty"`
	HistoryID  string           `json:"historyId,omitempty"`
}

type ToolCallFrame struct {
	ToolName   string                 `json:"toolName"`
	ToolCallID string                 `json:"toolCallId"`
	Args       map[string]interface{} `json:"args"`
}

type ToolResultFrame struct {
	ToolName   string                 `json:"toolName"`
	ToolCallID string                 `json:"toolCallId"`
	Result     map[string]interface{} `json:"result"`
}

type MediaFrame struct {
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mimeType"`
	URL      string `json:"url"`
}

// TextFrame wraps s as a text frame.
func TextFrame(s string) Frame {
	return Frame{Text: &s}
}

// ErrorFrame wraps msg as an error frame.
func ErrorFrame(msg string) Frame {
	return Frame{Error: &msg}
}

// DoneFrame builds the terminal frame. historyID may be empty when no
// conversation was ever created.
func DoneFrame(historyID string) Frame {
	return Frame{Done: true, HistoryID: historyID}
}
