package models

// Part type tags for ContentPart.
const (
	PartText  = "text"
	PartImage = "image"
	PartFile  = "file"
)

// ContentPart is one piece of multi-modal content attached to a turn. Exactly
// one shape applies depending on Type: text parts carry Text, image and file
// parts carry URL + MimeType (file parts may also carry Filename).
// A text part duplicates the turn's own text field; it exists only to keep
// ordering relative to the other parts.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Attachment describes one uploaded file referenced by a chat request.
type Attachment struct {
	Type     string `json:"type"` // "image" or "file"
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename,omitempty"`
}

// ModelMessage is one message in the normalized list handed to a generation
// model. Tool bookkeeping turns never appear here; user turns with multiple
// content parts keep Parts populated in original order, everything else is
// plain Text.
type ModelMessage struct {
	Role  string
	Text  string
	Parts []ContentPart
}
