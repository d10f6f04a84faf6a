package streamline

import (
	"github.com/streamline-ai/streamline/models"
	"github.com/streamline-ai/streamline/sessions"
	"github.com/streamline-ai/streamline/stores"
	"github.com/streamline-ai/streamline/toolproviders"
)

const defaultDemoResponse = "This is a demonstration response. Configure a model or supply an API key to chat with a live model."

// ModelFactory builds a request-scoped generation model from a caller API key.
type ModelFactory func(apiKey string) sessions.GenerationModel

// Config wires the orchestrator's collaborators together.
type Config struct {
	DefaultModel sessions.GenerationModel
	ModelFactory ModelFactory
	Store        stores.ConversationStore
	LogStore     stores.RequestLogStore
	Attachments  *stores.AttachmentStore
	Providers    *toolproviders.Manager
	StaticTools  map[string]models.ToolDescriptor
	SystemPrompt string
	DemoResponse string
	AdminUserIDs []string
}

// NewConfig creates a configuration with a default SQLite store.
func NewConfig() *Config {
	defaultStore, err := stores.NewSQLiteStoreDefault()
	if err != nil {
		panic("Failed to create default SQLite store: " + err.Error())
	}
	return &Config{
		Store:        defaultStore,
		StaticTools:  make(map[string]models.ToolDescriptor),
		DemoResponse: defaultDemoResponse,
	}
}

// WithDefaultModel sets the model used when a request carries no API key.
func (c *Config) WithDefaultModel(model sessions.GenerationModel) *Config {
	c.DefaultModel = model
	return c
}

// WithModelFactory sets the factory for caller-keyed request-scoped models.
func (c *Config) WithModelFactory(factory ModelFactory) *Config {
	c.ModelFactory = factory
	return c
}

// WithStore sets the conversation store.
func (c *Config) WithStore(store stores.ConversationStore) *Config {
	c.Store = store
	return c
}

// WithSQLiteStore sets a SQLite store at the given path.
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	store, err := stores.NewSQLiteStoreSimple(dbPath)
	if err != nil {
		panic("Failed to create SQLite store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithPostgresStore sets a PostgreSQL store.
func (c *Config) WithPostgresStore(host, user, password, dbname string, port int) *Config {
	store, err := stores.NewPostgresStoreDefault(host, user, password, dbname, port)
	if err != nil {
		panic("Failed to create PostgreSQL store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithLogStore sets the request log store.
func (c *Config) WithLogStore(logStore stores.RequestLogStore) *Config {
	c.LogStore = logStore
	return c
}

// WithAttachments sets the attachment store.
func (c *Config) WithAttachments(attachments *stores.AttachmentStore) *Config {
	c.Attachments = attachments
	return c
}

// WithProviders sets the tool provider connection manager.
func (c *Config) WithProviders(providers *toolproviders.Manager) *Config {
	c.Providers = providers
	return c
}

// WithTool registers a statically configured tool.
func (c *Config) WithTool(tool models.ToolDescriptor) *Config {
	c.StaticTools[tool.Name] = tool
	return c
}

// WithSystemPrompt sets the default system prompt.
func (c *Config) WithSystemPrompt(prompt string) *Config {
	c.SystemPrompt = prompt
	return c
}

// WithDemoResponse overrides the canned response used when no model resolves.
func (c *Config) WithDemoResponse(text string) *Config {
	c.DemoResponse = text
	return c
}

// WithAdminUsers sets the user ids allowed on admin operations.
func (c *Config) WithAdminUsers(userIDs ...string) *Config {
	c.AdminUserIDs = append(c.AdminUserIDs, userIDs...)
	return c
}

// IsAdmin reports whether a user may call admin operations.
func (c *Config) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
