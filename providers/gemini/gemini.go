package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/streamline-ai/streamline/models"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModelID = "gemini-2.0-flash"

	// maxSteps bounds the generate / execute-tools loop for one turn.
	maxSteps = 8

	// inlineLimit is the largest attachment fetched and embedded as base64.
	// Larger files are passed by URI and the API fetches them itself.
	inlineLimit = 2 * 1024 * 1024
)

// MediaSink persists binary output the model produces (generated images and
// the like) and returns a URL the client can fetch it from. When no sink is
// configured the bytes are embedded as a data URL.
type MediaSink interface {
	SaveMedia(filename string, mimeType string, data []byte) (string, error)
}

// Model is a streaming client for the Gemini generateContent API. It drives
// the full tool loop for a turn: generate, execute any requested tools, feed
// the results back, repeat until the model answers in plain text.
type Model struct {
	ModelID string
	APIKey  string
	BaseURL string
	Media   MediaSink
	Client  *http.Client
	logger  *log.Logger
}

func New(modelID, apiKey string) *Model {
	if modelID == "" {
		modelID = defaultModelID
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return &Model{
		ModelID: modelID,
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  log.New(os.Stdout, "[GEMINI] ", log.LstdFlags),
	}
}

func (m *Model) ID() string {
	return m.ModelID
}

// Stream runs the generation loop for one turn, emitting flat events on the
// returned channel. Tool invocation failures are reported as ErrorEvents and
// the loop continues; transport and decode failures go to the error channel
// and end the stream.
func (m *Model) Stream(ctx context.Context, system string, history []models.ModelMessage, tools map[string]models.ToolDescriptor) (<-chan models.StreamEvent, <-chan error) {
	events := make(chan models.StreamEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		contents, err := buildContents(history)
		if err != nil {
			errs <- fmt.Errorf("failed to build request contents: %w", err)
			return
		}
		if len(contents) == 0 {
			errs <- fmt.Errorf("cannot generate from empty history")
			return
		}

		declarations := buildDeclarations(tools)

		for step := 0; step < maxSteps; step++ {
			if !m.emit(ctx, events, models.StepStart{}) {
				return
			}

			body := requestBody{Contents: contents, Tools: declarations}
			if system != "" {
				body.SystemInstruction = &systemInstruction{Parts: []systemPart{{Text: system}}}
			}

			result, err := m.streamStep(ctx, body, events)
			if err != nil {
				errs <- err
				return
			}

			if !m.emit(ctx, events, models.StepFinish{
				PromptTokens:   result.promptTokens,
				ResponseTokens: result.responseTokens,
			}) {
				return
			}

			if len(result.calls) == 0 {
				return
			}

			// Feed the model's function calls and our results back in
			// before the next step.
			modelParts := make([]requestPart, 0, len(result.calls))
			resultParts := make([]requestPart, 0, len(result.calls))

			for _, call := range result.calls {
				callID := uuid.New().String()
				if !m.emit(ctx, events, models.ToolCallEvent{ID: callID, Name: call.Name, Args: call.Args}) {
					return
				}
				modelParts = append(modelParts, requestPart{FunctionCall: &functionCall{Name: call.Name, Args: call.Args}})

				output, invokeErr := m.invokeTool(ctx, tools, call)
				if invokeErr != nil {
					m.logger.Printf("Tool %s failed: %v", call.Name, invokeErr)
					if !m.emit(ctx, events, models.ErrorEvent{Message: fmt.Sprintf("tool %s failed: %v", call.Name, invokeErr)}) {
						return
					}
					output = map[string]interface{}{"error": invokeErr.Error()}
				}
				if !m.emit(ctx, events, models.ToolResultEvent{ID: callID, Name: call.Name, Result: output}) {
					return
				}
				resultParts = append(resultParts, requestPart{FunctionResponse: &functionResponse{Name: call.Name, Response: output}})
			}

			contents = append(contents,
				requestContent{Role: "model", Parts: modelParts},
				requestContent{Role: "user", Parts: resultParts},
			)
		}

		errs <- fmt.Errorf("tool loop did not settle within %d steps", maxSteps)
	}()

	return events, errs
}

// stepResult accumulates what one streamed generateContent call produced.
type stepResult struct {
	calls          []functionCall
	promptTokens   int
	responseTokens int
}

// streamStep performs one streamed generateContent call, forwarding text
// chunks as TextDelta events and collecting function calls for the caller.
func (m *Model) streamStep(ctx context.Context, body requestBody, events chan<- models.StreamEvent) (stepResult, error) {
	result := stepResult{}

	payload, err := json.Marshal(body)
	if err != nil {
		return result, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s", m.BaseURL, m.ModelID, m.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return result, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return result, fmt.Errorf("error making POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return result, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// The endpoint streams a JSON array of response objects. Decode it
	// incrementally so text reaches the client as it arrives.
	decoder := json.NewDecoder(resp.Body)

	t, err := decoder.Token()
	if err != nil {
		return result, fmt.Errorf("error reading stream opening: %w", err)
	}
	if delim, ok := t.(json.Delim); !ok || delim != '[' {
		return result, fmt.Errorf("expected '[' at start of stream, got %v", t)
	}

	for decoder.More() {
		var chunk generateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return result, fmt.Errorf("error decoding stream chunk: %w", err)
		}

		if chunk.UsageMetadata.PromptTokenCount > 0 {
			result.promptTokens = chunk.UsageMetadata.PromptTokenCount
		}
		if chunk.UsageMetadata.CandidatesTokenCount > 0 {
			result.responseTokens = chunk.UsageMetadata.CandidatesTokenCount
		}

		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				switch {
				case part.Text != nil && *part.Text != "":
					if !m.emit(ctx, events, models.TextDelta{Text: *part.Text}) {
						return result, ctx.Err()
					}
				case part.FunctionCall != nil:
					result.calls = append(result.calls, *part.FunctionCall)
				case part.InlineData != nil:
					event, err := m.materializeMedia(part.InlineData)
					if err != nil {
						m.logger.Printf("Failed to persist generated media: %v", err)
						continue
					}
					if !m.emit(ctx, events, event) {
						return result, ctx.Err()
					}
				}
			}
		}
	}

	if t, err = decoder.Token(); err != nil && err != io.EOF {
		return result, fmt.Errorf("error reading stream closing: %w", err)
	} else if err != io.EOF {
		if delim, ok := t.(json.Delim); !ok || delim != ']' {
			return result, fmt.Errorf("expected ']' at end of stream, got %v", t)
		}
	}

	return result, nil
}

// Generate performs a single non-streamed text completion with no tools and
// no history. Used for one-shot transformations like remixing.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	body := requestBody{
		Contents: []requestContent{{Role: "user", Parts: []requestPart{{Text: prompt}}}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", m.BaseURL, m.ModelID, m.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	var sb strings.Builder
	for _, cand := range response.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != nil {
				sb.WriteString(*part.Text)
			}
		}
	}
	return sb.String(), nil
}

func (m *Model) invokeTool(ctx context.Context, tools map[string]models.ToolDescriptor, call functionCall) (map[string]interface{}, error) {
	tool, ok := tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}
	output, err := tool.Invoke(ctx, call.Args)
	if err != nil {
		return nil, err
	}

	var respMap map[string]interface{}
	if err := json.Unmarshal([]byte(output), &respMap); err != nil {
		// Non-JSON tool output gets wrapped so the API sees an object.
		respMap = map[string]interface{}{"output": output}
	}
	return respMap, nil
}

func (m *Model) materializeMedia(data *inlineData) (models.FileEvent, error) {
	filename := fmt.Sprintf("generated_%s%s", uuid.New().String()[:8], extensionFor(data.MimeType))

	if m.Media == nil {
		return models.FileEvent{
			MimeType: data.MimeType,
			Filename: filename,
			URL:      fmt.Sprintf("data:%s;base64,%s", data.MimeType, data.Data),
		}, nil
	}

	raw, err := base64.StdEncoding.DecodeString(data.Data)
	if err != nil {
		return models.FileEvent{}, fmt.Errorf("failed to decode inline media: %w", err)
	}
	url, err := m.Media.SaveMedia(filename, data.MimeType, raw)
	if err != nil {
		return models.FileEvent{}, err
	}
	return models.FileEvent{MimeType: data.MimeType, Filename: filename, URL: url}, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

// emit sends an event, giving up if the context is cancelled.
func (m *Model) emit(ctx context.Context, events chan<- models.StreamEvent, event models.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildContents converts provider-neutral messages into API contents.
// Attachment parts small enough to inline are fetched and embedded; larger
// ones are referenced by URI.
func buildContents(history []models.ModelMessage) ([]requestContent, error) {
	contents := make([]requestContent, 0, len(history))

	for _, msg := range history {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		var parts []requestPart
		if len(msg.Parts) > 0 {
			for _, p := range msg.Parts {
				part, err := convertPart(p)
				if err != nil {
					log.Printf("Skipping unconvertible part (%s): %v", p.Type, err)
					continue
				}
				parts = append(parts, part)
			}
		} else if msg.Text != "" {
			parts = []requestPart{{Text: msg.Text}}
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, requestContent{Role: role, Parts: parts})
	}

	return contents, nil
}

func convertPart(p models.ContentPart) (requestPart, error) {
	switch p.Type {
	case models.PartText:
		return requestPart{Text: p.Text}, nil
	case models.PartImage, models.PartFile:
		if strings.HasPrefix(p.URL, "data:") {
			mime, data, err := parseDataURL(p.URL)
			if err != nil {
				return requestPart{}, err
			}
			if mime == "" {
				mime = p.MimeType
			}
			return requestPart{InlineData: &inlineData{MimeType: mime, Data: data}}, nil
		}
		if encoded := fetchInline(p.URL); encoded != "" {
			return requestPart{InlineData: &inlineData{MimeType: p.MimeType, Data: encoded}}, nil
		}
		return requestPart{FileData: &fileData{MimeType: p.MimeType, FileURI: p.URL}}, nil
	default:
		return requestPart{}, fmt.Errorf("unsupported part type %q", p.Type)
	}
}

func parseDataURL(url string) (mimeType string, data string, err error) {
	rest := strings.TrimPrefix(url, "data:")
	idx := strings.Index(rest, ",")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed data URL")
	}
	meta, payload := rest[:idx], rest[idx+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return "", "", fmt.Errorf("data URL is not base64 encoded")
	}
	return strings.TrimSuffix(meta, ";base64"), payload, nil
}

// fetchInline downloads a small file and returns it base64 encoded. Returns
// empty string when the file is too large or the fetch fails, letting the
// caller fall back to a URI reference.
func fetchInline(url string) string {
	head, err := http.Head(url)
	if err != nil {
		return ""
	}
	head.Body.Close()
	if head.ContentLength <= 0 || head.ContentLength > inlineLimit {
		return ""
	}

	resp, err := http.Get(url)
	if err != nil {
		log.Printf("Error fetching file for inline data from %s: %v", url, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Error fetching file for inline data from %s: status %s", url, resp.Status)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, inlineLimit+1))
	if err != nil || int64(len(body)) > inlineLimit {
		return ""
	}
	return base64.StdEncoding.EncodeToString(body)
}
