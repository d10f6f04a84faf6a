package models

// StreamEvent is one event on the flat stream a generation model emits while
// producing a response. The set of implementations is closed: consumers
// dispatch with a type switch so a new event kind shows up as a missing case
// instead of silently falling through a string comparison.
type StreamEvent interface {
	isStreamEvent()
}

// StepStart marks the beginning of one generation step. A step ends in either
// plain text or one or more tool calls.
type StepStart struct{}

// StepFinish marks the end of a generation step. Token counts are carried
// here because the provider reports usage per round, not per delta.
type StepFinish struct {
	PromptTokens   int
	ResponseTokens int
}

// TextDelta is a fragment of answer text. Deltas are provisional until the
// step finishes: a step that ends in a tool call discards its buffered text.
type TextDelta struct {
	Text string
}

// ToolCallEvent is the model requesting a tool invocation.
type ToolCallEvent struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ToolResultEvent carries the output of a completed tool invocation, matched
// to its ToolCallEvent by ID.
type ToolResultEvent struct {
	ID     string
	Name   string
	Result map[string]interface{}
}

// FileEvent is generated media (an image or other file) produced mid-stream.
type FileEvent struct {
	MimeType string
	URL      string
	Filename string
}

// ErrorEvent is a provider-side error or warning. It does not by itself end
// the stream; the provider may emit several before recovering or closing.
type ErrorEvent struct {
	Message string
}

func (StepStart) isStreamEvent()       {}
func (StepFinish) isStreamEvent()      {}
func (TextDelta) isStreamEvent()       {}
func (ToolCallEvent) isStreamEvent()   {}
func (ToolResultEvent) isStreamEvent() {}
func (FileEvent) isStreamEvent()       {}
func (ErrorEvent) isStreamEvent()      {}
