package gemini

import (
	"sort"

	"github.com/streamline-ai/streamline/models"
)

// Wire types for the generativelanguage v1beta REST API.

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type content struct {
	Parts []responsePart `json:"parts"`
	Role  string         `json:"role"`
}

type responsePart struct {
	Text         *string       `json:"text,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
	InlineData   *inlineData   `json:"inlineData,omitempty"`
}

type functionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type functionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type requestBody struct {
	Contents          []requestContent   `json:"contents"`
	Tools             []toolsBlock       `json:"tools,omitempty"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type requestContent struct {
	Role  string        `json:"role"`
	Parts []requestPart `json:"parts"`
}

type requestPart struct {
	Text             string            `json:"text,omitempty"`
	FileData         *fileData         `json:"fileData,omitempty"`
	InlineData       *inlineData       `json:"inlineData,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type toolsBlock struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  models.Parameters `json:"parameters"`
}

type systemInstruction struct {
	Parts []systemPart `json:"parts"`
}

type systemPart struct {
	Text string `json:"text"`
}

// buildDeclarations converts tool descriptors into the declaration block the
// API expects. The API rejects null properties, so those are normalized.
func buildDeclarations(tools map[string]models.ToolDescriptor) []toolsBlock {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	decls := make([]functionDeclaration, 0, len(tools))
	for _, name := range names {
		tool := tools[name]
		params := tool.Parameters
		if params.Type == "" {
			params.Type = "object"
		}
		if params.Properties == nil {
			params.Properties = map[string]interface{}{}
		}
		decls = append(decls, functionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return []toolsBlock{{FunctionDeclarations: decls}}
}
