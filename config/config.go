// Package config loads the reviewmesh YAML configuration.
//
// Environment variables referenced as ${VAR} are expanded before parsing, so
// API keys can live in the environment or a .env file rather than in the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/prompt"
	"github.com/hupe1980/reviewmesh/registry"
)

// Environment variables overriding file settings.
const (
	EnvDefaultModel = "REVIEWMESH_DEFAULT_MODEL"
	EnvToolModel    = "REVIEWMESH_TOOL_MODEL"
)

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
)

// Config is the top-level configuration.
type Config struct {
	Providers    []ProviderConfig `yaml:"providers"`
	Models       []ModelConfig    `yaml:"models"`
	DefaultModel string           `yaml:"default_model"`
	ToolModel    string           `yaml:"tool_model"`
	// Timeout bounds a single provider request, as a duration string.
	Timeout string `yaml:"timeout"`

	Analysis prompt.AnalysisPrompts `yaml:"analysis"`
	Review   ReviewConfig           `yaml:"review"`
	Storage  StorageConfig          `yaml:"storage"`
	Tools    ToolsConfig            `yaml:"tools"`
	Discord  DiscordConfig          `yaml:"discord"`
	Server   ServerConfig           `yaml:"server"`
	Logging  LoggingConfig          `yaml:"logging"`
}

// ProviderConfig describes an upstream chat-completion service.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
}

// ModelConfig describes a model of a provider.
type ModelConfig struct {
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens *int64   `yaml:"max_output_tokens"`
}

// ReviewConfig holds commit review settings.
type ReviewConfig struct {
	// Dir holds templates, queue markers and results.
	Dir          string `yaml:"dir"`
	Repository   string `yaml:"repository"`
	ContextLines int    `yaml:"context_lines"`
	Model        string `yaml:"model"`
	// PollInterval is how often the worker rescans the queue when watching.
	PollInterval string `yaml:"poll_interval"`
}

// StorageConfig selects the ticket and document store.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	// Seed is a YAML file with tickets and documents loaded at start.
	Seed string `yaml:"seed"`
}

// ToolsConfig tunes the tool-calling step.
type ToolsConfig struct {
	MaxParallel int `yaml:"max_parallel"`
	TicketCap   int `yaml:"ticket_cap"`
}

// DiscordConfig configures review notifications.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	// AuthorMapping maps author email addresses to Discord user ids.
	AuthorMapping map[string]string `yaml:"author_mapping"`
	// AuthorMappingJSON is the same mapping as a JSON object, typically ${AUTHOR_MAPPING}.
	AuthorMappingJSON string `yaml:"author_mapping_json"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxInFlight limits concurrently served model-backed requests; 0 is unlimited.
	MaxInFlight int `yaml:"max_in_flight"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Timeout == "" {
		c.Timeout = "120s"
	}
	if c.Review.Dir == "" {
		c.Review.Dir = "code_review"
	}
	if c.Review.Repository == "" {
		c.Review.Repository = "."
	}
	if c.Review.ContextLines == 0 {
		c.Review.ContextLines = 10
	}
	if c.Review.PollInterval == "" {
		c.Review.PollInterval = "1m"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.Path == "" {
		c.Storage.Path = "reviewmesh.db"
	}
	if c.Tools.MaxParallel == 0 {
		c.Tools.MaxParallel = 1
	}
	if c.Tools.TicketCap == 0 {
		c.Tools.TicketCap = 50
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Load reads a YAML file, expands ${VAR} references, applies environment
// overrides and defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return Config{}, core.NewConfigError("load config: %v", err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes configuration data. lookup resolves the override variables.
func Parse(data []byte, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, core.NewConfigError("parse config: %v", err)
	}
	cfg.applyEnv(lookup)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	if v, ok := lookup(EnvDefaultModel); ok && v != "" {
		c.DefaultModel = v
	}
	if v, ok := lookup(EnvToolModel); ok && v != "" {
		c.ToolModel = v
	}
}

// LoadDotEnv loads environment variables from path. A missing file is ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}
	for _, id := range []string{c.DefaultModel, c.ToolModel, c.Review.Model} {
		if id == "" {
			continue
		}
		if _, err := reg.Resolve(id); err != nil {
			return err
		}
	}

	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	if _, err := c.Review.Interval(); err != nil {
		return err
	}
	if c.Review.ContextLines < 0 {
		return core.NewConfigError("review: context_lines must be >= 0")
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	default:
		return core.NewConfigError("storage: unknown driver %q", c.Storage.Driver)
	}
	if c.Server.MaxInFlight < 0 {
		return core.NewConfigError("server: max_in_flight must be >= 0")
	}
	if c.Tools.MaxParallel < 0 || c.Tools.TicketCap < 0 {
		return core.NewConfigError("tools: max_parallel and ticket_cap must be >= 0")
	}
	if _, err := c.Discord.AuthorIDs(); err != nil {
		return err
	}
	return nil
}

// Registry builds the provider and model registry.
func (c Config) Registry() (*registry.Registry, error) {
	providers := make([]registry.ProviderEntry, 0, len(c.Providers))
	for _, p := range c.Providers {
		providers = append(providers, registry.ProviderEntry{
			Name:    p.Name,
			Kind:    registry.ProviderKind(p.Kind),
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
		})
	}
	models := make([]registry.ModelEntry, 0, len(c.Models))
	for _, m := range c.Models {
		models = append(models, registry.ModelEntry{
			Provider:        m.Provider,
			Model:           m.Model,
			Temperature:     m.Temperature,
			MaxOutputTokens: m.MaxOutputTokens,
		})
	}
	return registry.New(providers, models, func(o *registry.Options) {
		o.DefaultModel = c.DefaultModel
		o.ToolModel = c.ToolModel
	})
}

// RequestTimeout parses Timeout.
func (c Config) RequestTimeout() (time.Duration, error) {
	return parseDuration("timeout", c.Timeout)
}

// Interval parses PollInterval.
func (r ReviewConfig) Interval() (time.Duration, error) {
	return parseDuration("review.poll_interval", r.PollInterval)
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, core.NewConfigError("%s: %v", field, err)
	}
	if d <= 0 {
		return 0, core.NewConfigError("%s must be positive", field)
	}
	return d, nil
}

// AuthorIDs merges AuthorMappingJSON and AuthorMapping; the map wins on conflicts.
func (d DiscordConfig) AuthorIDs() (map[string]string, error) {
	ids := map[string]string{}
	if d.AuthorMappingJSON != "" {
		if err := json.Unmarshal([]byte(d.AuthorMappingJSON), &ids); err != nil {
			return nil, core.NewConfigError("discord: author_mapping_json: %v", err)
		}
	}
	for email, id := range d.AuthorMapping {
		ids[email] = id
	}
	return ids, nil
}

// Seed is the content of a ticket and document import file.
type Seed struct {
	Tickets   []core.Ticket   `yaml:"tickets"`
	Documents []core.Document `yaml:"documents"`
}

// LoadSeed reads an import file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return Seed{}, fmt.Errorf("load seed: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	return s, nil
}
