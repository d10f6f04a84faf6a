package commontools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genai"
)

const imageModel = "gemini-2.5-flash-image"

// GenerateImage generates an image from a prompt, saves it under the images
// directory and returns a JSON payload with the served URL.
func GenerateImage(ctx context.Context, args map[string]interface{}) (string, error) {
	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}

	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create image client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, imageModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate image: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("no image generated in response")
	}

	for _, part := range result.Candidates[0].Content.Parts {
		if part.InlineData == nil {
			continue
		}

		imageBytes := part.InlineData.Data
		mimeType := part.InlineData.MIMEType

		extension := "png"
		if strings.Contains(mimeType, "jpeg") || strings.Contains(mimeType, "jpg") {
			extension = "jpg"
		} else if strings.Contains(mimeType, "webp") {
			extension = "webp"
		}

		timestamp := time.Now().Format("20060102_150405")
		filename := fmt.Sprintf("generated_image_%s.%s", timestamp, extension)

		imagesDir := "images"
		if err := os.MkdirAll(imagesDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create images directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(imagesDir, filename), imageBytes, 0644); err != nil {
			return "", fmt.Errorf("failed to save image: %w", err)
		}

		serverHost := os.Getenv("SERVER_HOST")
		if serverHost == "" {
			serverHost = "http://localhost:8080"
		}

		out, err := json.Marshal(map[string]string{
			"url":      fmt.Sprintf("%s/images/%s", serverHost, filename),
			"mimeType": mimeType,
			"filename": filename,
			"prompt":   prompt,
		})
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	return "", fmt.Errorf("no image data found in response")
}
