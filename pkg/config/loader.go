package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/newslens/newslens/pkg/experiment"
)

// newslensYAML mirrors the newslens.yaml file structure. Booleans the user
// may legitimately set to false are pointers so an absent key and an explicit
// false stay distinguishable; durations arrive as strings.
type newslensYAML struct {
	Models      *modelsYAML              `yaml:"models"`
	Budget      *BudgetConfig            `yaml:"budget"`
	Retrieval   *retrievalYAML           `yaml:"retrieval"`
	Features    *featuresYAML            `yaml:"features"`
	Domains     *DomainsConfig           `yaml:"domains"`
	Memory      *MemoryConfig            `yaml:"memory"`
	Server      *ServerConfig            `yaml:"server"`
	Experiments []*experiment.Experiment `yaml:"experiments"`
}

type modelsYAML struct {
	Primary         string   `yaml:"primary"`
	Fallbacks       []string `yaml:"fallbacks"`
	CallTimeout     string   `yaml:"call_timeout"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	Temperature     *float64 `yaml:"temperature"`
}

type retrievalYAML struct {
	BaseURL      string `yaml:"base_url"`
	EnableRerank *bool  `yaml:"enable_rerank"`
	KFinal       int    `yaml:"k_final"`
	Window       string `yaml:"window"`
	CacheURL     string `yaml:"cache_url"`
	CacheTTL     string `yaml:"cache_ttl"`
}

type featuresYAML struct {
	EnableAnalyzeKeywords  *bool    `yaml:"enable_analyze_keywords"`
	EnableAnalyzeSentiment *bool    `yaml:"enable_analyze_sentiment"`
	EnableAnalyzeTopics    *bool    `yaml:"enable_analyze_topics"`
	DisabledCommands       []string `yaml:"disabled_commands"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read newslens.yaml from configDir
//  2. Expand environment variables ({{.VAR}} syntax)
//  3. Parse YAML into structs
//  4. Apply built-in defaults for unset values
//  5. Read the router-mode override from the environment
//  6. Validate everything, fail-fast
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"primary_model", cfg.Models.Primary,
		"fallbacks", stats.Fallbacks,
		"experiments", stats.Experiments,
		"blacklisted_domains", stats.Blacklisted,
		"mock_router", cfg.MockRouter)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	var raw newslensYAML
	if err := loadYAML(configDir, "newslens.yaml", &raw); err != nil {
		return nil, NewLoadError("newslens.yaml", err)
	}

	cfg := &Config{
		configDir:   configDir,
		Models:      resolveModels(raw.Models),
		Budget:      resolveBudget(raw.Budget),
		Retrieval:   resolveRetrieval(raw.Retrieval),
		Features:    resolveFeatures(raw.Features),
		Memory:      resolveMemory(raw.Memory),
		Server:      resolveServer(raw.Server),
		Experiments: raw.Experiments,
		MockRouter:  os.Getenv("PHASE3_MODEL_ROUTER_MODE") == "mock",
	}
	if raw.Domains != nil {
		cfg.Domains = *raw.Domains
	}
	return cfg, nil
}

func loadYAML(configDir, filename string, target any) error {
	path := filepath.Join(configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse/execution errors,
	// letting the YAML parser surface the clearer message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func resolveModels(m *modelsYAML) ModelsConfig {
	cfg := ModelsConfig{
		Primary:         DefaultPrimaryModel,
		Fallbacks:       DefaultFallbacks(),
		CallTimeout:     DefaultCallTimeout,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Temperature:     DefaultTemperature,
	}
	if m == nil {
		return cfg
	}
	if m.Primary != "" {
		cfg.Primary = m.Primary
	}
	if m.Fallbacks != nil {
		cfg.Fallbacks = m.Fallbacks
	}
	if m.CallTimeout != "" {
		if d, err := time.ParseDuration(m.CallTimeout); err == nil {
			cfg.CallTimeout = d
		} else {
			slog.Warn("Invalid call_timeout in models config, using default",
				"value", m.CallTimeout, "default", cfg.CallTimeout, "error", err)
		}
	}
	if m.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = m.MaxOutputTokens
	}
	if m.Temperature != nil {
		cfg.Temperature = *m.Temperature
	}
	return cfg
}

// resolveBudget merges user-provided caps over the built-in defaults
// (non-zero values override).
func resolveBudget(b *BudgetConfig) BudgetConfig {
	cfg := BudgetConfig{
		MaxTokens:      DefaultMaxTokens,
		MaxCents:       DefaultMaxCents,
		TimeoutSeconds: DefaultTimeoutSeconds,
	}
	if b != nil {
		if err := mergo.Merge(&cfg, *b, mergo.WithOverride); err != nil {
			slog.Warn("Failed to merge budget config, using defaults", "error", err)
		}
	}
	return cfg
}

func resolveRetrieval(r *retrievalYAML) RetrievalConfig {
	cfg := RetrievalConfig{
		EnableRerank: true,
		KFinal:       DefaultKFinal,
		Window:       DefaultWindow,
		CacheTTL:     DefaultCacheTTL,
	}
	if r == nil {
		return cfg
	}
	cfg.BaseURL = r.BaseURL
	cfg.CacheURL = r.CacheURL
	if r.EnableRerank != nil {
		cfg.EnableRerank = *r.EnableRerank
	}
	if r.KFinal > 0 {
		cfg.KFinal = r.KFinal
	}
	if r.Window != "" {
		cfg.Window = r.Window
	}
	if r.CacheTTL != "" {
		if d, err := time.ParseDuration(r.CacheTTL); err == nil {
			cfg.CacheTTL = d
		} else {
			slog.Warn("Invalid cache_ttl in retrieval config, using default",
				"value", r.CacheTTL, "default", cfg.CacheTTL, "error", err)
		}
	}
	return cfg
}

func resolveFeatures(f *featuresYAML) FeaturesConfig {
	cfg := FeaturesConfig{
		EnableAnalyzeKeywords:  true,
		EnableAnalyzeSentiment: true,
		EnableAnalyzeTopics:    true,
	}
	if f == nil {
		return cfg
	}
	if f.EnableAnalyzeKeywords != nil {
		cfg.EnableAnalyzeKeywords = *f.EnableAnalyzeKeywords
	}
	if f.EnableAnalyzeSentiment != nil {
		cfg.EnableAnalyzeSentiment = *f.EnableAnalyzeSentiment
	}
	if f.EnableAnalyzeTopics != nil {
		cfg.EnableAnalyzeTopics = *f.EnableAnalyzeTopics
	}
	cfg.DisabledCommands = f.DisabledCommands
	return cfg
}

func resolveMemory(m *MemoryConfig) MemoryConfig {
	cfg := MemoryConfig{
		Path:           DefaultMemoryPath,
		EmbeddingModel: DefaultEmbeddingModel,
	}
	if m != nil {
		if err := mergo.Merge(&cfg, *m, mergo.WithOverride); err != nil {
			slog.Warn("Failed to merge memory config, using defaults", "error", err)
		}
	}
	return cfg
}

func resolveServer(s *ServerConfig) ServerConfig {
	cfg := ServerConfig{Port: DefaultHTTPPort}
	if s != nil && s.Port != "" {
		cfg.Port = s.Port
	}
	return cfg
}
