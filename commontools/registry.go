package commontools

import (
	"github.com/streamline-ai/streamline/models"
)

// GetTimeTool returns the descriptor for the current-time tool.
func GetTimeTool() models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:        "get_time",
		Description: "Get the current date and time, optionally in a specific IANA timezone.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"timezone": map[string]interface{}{
					"type":        "string",
					"description": "IANA timezone name, e.g. 'America/New_York'. Defaults to server time.",
				},
			},
		},
		Invoke: GetTime,
	}
}

// GenerateImageTool returns the descriptor for the image generation tool.
func GenerateImageTool() models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:        "generate_image",
		Description: "Generate an image from a text prompt. Returns a URL to the generated image.",
		Parameters: models.Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "Description of the image to generate",
				},
			},
			Required: []string{"prompt"},
		},
		Invoke: GenerateImage,
	}
}

// DefaultTools returns the built-in tool set.
func DefaultTools() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		GetTimeTool(),
		GenerateImageTool(),
	}
}
