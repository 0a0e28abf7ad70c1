package config

import "time"

// Built-in defaults applied wherever the YAML leaves a value unset.
const (
	DefaultPrimaryModel    = "gpt-4o-mini"
	DefaultCallTimeout     = 20 * time.Second
	DefaultMaxOutputTokens = 1024
	DefaultTemperature     = 0.2

	DefaultMaxTokens      = 8000
	DefaultMaxCents       = 50.0
	DefaultTimeoutSeconds = 30.0

	DefaultKFinal   = 10
	DefaultWindow   = "30d"
	DefaultCacheTTL = 5 * time.Minute

	DefaultMemoryPath     = "./data/memory"
	DefaultEmbeddingModel = "text-embedding-3-small"

	DefaultHTTPPort = "8080"
)

// DefaultFallbacks is the built-in fallback chain behind the primary model.
func DefaultFallbacks() []string {
	return []string{"claude-3-5-haiku-latest", "gemini-2.0-flash"}
}
