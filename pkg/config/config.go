// Package config loads and validates the engine configuration: model
// selection, budget caps, retrieval settings, feature gates, domain trust
// lists, and the preloaded experiment registry. YAML with {{.VAR}} env
// expansion, built-in defaults merged under user values, then a fail-fast
// validation pass.
package config

import (
	"time"

	"github.com/newslens/newslens/pkg/experiment"
	"github.com/newslens/newslens/pkg/schema"
)

// Config is the resolved, validated configuration the process runs with.
type Config struct {
	configDir string

	Models      ModelsConfig
	Budget      BudgetConfig
	Retrieval   RetrievalConfig
	Features    FeaturesConfig
	Domains     DomainsConfig
	Memory      MemoryConfig
	Server      ServerConfig
	Experiments []*experiment.Experiment

	// MockRouter forces the deterministic mock provider regardless of
	// configured credentials (PHASE3_MODEL_ROUTER_MODE=mock).
	MockRouter bool
}

// ModelsConfig selects the fallback chain and per-call limits.
type ModelsConfig struct {
	Primary         string        `yaml:"primary"`
	Fallbacks       []string      `yaml:"fallbacks"`
	CallTimeout     time.Duration `yaml:"-"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Temperature     float64       `yaml:"temperature"`
}

// BudgetConfig is the per-request resource envelope.
type BudgetConfig struct {
	MaxTokens      int     `yaml:"max_tokens"`
	MaxCents       float64 `yaml:"max_cents"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// RetrievalConfig points at the external retrieval service and its defaults.
type RetrievalConfig struct {
	BaseURL      string        `yaml:"base_url"`
	EnableRerank bool          `yaml:"-"`
	KFinal       int           `yaml:"k_final"`
	Window       string        `yaml:"window"`
	CacheURL     string        `yaml:"cache_url"`
	CacheTTL     time.Duration `yaml:"-"`
}

// FeaturesConfig gates commands and analyze modes.
type FeaturesConfig struct {
	EnableAnalyzeKeywords  bool
	EnableAnalyzeSentiment bool
	EnableAnalyzeTopics    bool
	DisabledCommands       []string
}

// CommandEnabled reports whether a command may execute.
func (f FeaturesConfig) CommandEnabled(cmd schema.Command) bool {
	for _, disabled := range f.DisabledCommands {
		if string(cmd) == disabled {
			return false
		}
	}
	return true
}

// AnalyzeModes returns the enabled analyze fan-out modes in a fixed order.
func (f FeaturesConfig) AnalyzeModes() []string {
	var modes []string
	if f.EnableAnalyzeKeywords {
		modes = append(modes, "keywords")
	}
	if f.EnableAnalyzeSentiment {
		modes = append(modes, "sentiment")
	}
	if f.EnableAnalyzeTopics {
		modes = append(modes, "topics")
	}
	return modes
}

// DomainsConfig carries the trust lists as domain suffixes.
type DomainsConfig struct {
	Blacklist []string `yaml:"blacklist"`
	Whitelist []string `yaml:"whitelist"`
}

// MemoryConfig configures the long-term memory store.
type MemoryConfig struct {
	Path           string `yaml:"path"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Fallbacks   int
	Experiments int
	Blacklisted int
	Whitelisted int
}

// Stats returns counts for startup logging.
func (c *Config) Stats() Stats {
	return Stats{
		Fallbacks:   len(c.Models.Fallbacks),
		Experiments: len(c.Experiments),
		Blacklisted: len(c.Domains.Blacklist),
		Whitelisted: len(c.Domains.Whitelist),
	}
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }
