package streamline

import "github.com/streamline-ai/streamline/sessions"

// ResolveModel picks the generation capability for one request. A caller
// API key wins when a factory is configured and produces a fresh
// request-scoped model; otherwise the configured default applies. A nil
// return means no model is available and the orchestrator short-circuits
// to the demonstration response.
func (c *Config) ResolveModel(apiKey string) sessions.GenerationModel {
	if apiKey != "" && c.ModelFactory != nil {
		return c.ModelFactory(apiKey)
	}
	return c.DefaultModel
}
