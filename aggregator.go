package streamline

import (
	"context"
	"strings"

	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/sessions"
)

// Model identifiers ending in this suffix name lightweight variants that do
// not accept tool declarations at all.
const toolIncapableSuffix = "-lite"

// ModelSupportsTools reports whether a model may receive a tool set.
func ModelSupportsTools(modelID string) bool {
	return !strings.HasSuffix(modelID, toolIncapableSuffix)
}

// AggregateTools merges the three tool sources into one name-keyed map:
// statically configured tools first, per-request tools second, tools
// discovered from connected providers last. Later sources silently overwrite
// earlier ones on a name collision. Returns nil for tool-incapable models.
// Provider discovery failures are absorbed inside the manager; a broken
// provider contributes nothing and never fails the request.
func (c *Config) AggregateTools(ctx context.Context, model sessions.GenerationModel, requestTools map[string]models.ToolDescriptor) map[string]models.ToolDescriptor {
	if model == nil || !ModelSupportsTools(model.ID()) {
		return nil
	}

	merged := make(map[string]models.ToolDescriptor, len(c.StaticTools)+len(requestTools))
	for name, tool := range c.StaticTools {
		merged[name] = tool
	}
	for name, tool := range requestTools {
		merged[name] = tool
	}
	if c.Providers != nil {
		for name, tool := range c.Providers.DiscoverTools(ctx) {
			merged[name] = tool
		}
	}

	if len(merged) == 0 {
		return nil
	}
	return merged
}
