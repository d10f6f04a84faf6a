package models

import "context"

// ToolFunc executes a tool invocation and returns the result as a JSON
// string. Implementations must not panic on malformed args; return an error
// instead so the caller can wrap it for the model.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// ToolDescriptor is one callable capability exposed to the model for a single
// request. Descriptors are assembled fresh per request from the static set,
// the request's own tools, and discovery against connected tool providers;
// they are never persisted.
type ToolDescriptor struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
	Invoke      ToolFunc   `json:"-"`
}

// Parameters is the JSON Schema for a tool's arguments.
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}
