package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "newslens.yaml"), []byte(content), 0o600))
	return dir
}

func TestInitializeDefaults(t *testing.T) {
	dir := writeConfig(t, "")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultPrimaryModel, cfg.Models.Primary)
	assert.Equal(t, DefaultFallbacks(), cfg.Models.Fallbacks)
	assert.Equal(t, DefaultCallTimeout, cfg.Models.CallTimeout)
	assert.Equal(t, DefaultMaxTokens, cfg.Budget.MaxTokens)
	assert.Equal(t, DefaultMaxCents, cfg.Budget.MaxCents)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Budget.TimeoutSeconds)
	assert.True(t, cfg.Retrieval.EnableRerank)
	assert.Equal(t, DefaultKFinal, cfg.Retrieval.KFinal)
	assert.Equal(t, DefaultWindow, cfg.Retrieval.Window)
	assert.True(t, cfg.Features.EnableAnalyzeKeywords)
	assert.Equal(t, []string{"keywords", "sentiment", "topics"}, cfg.Features.AnalyzeModes())
	assert.Equal(t, DefaultHTTPPort, cfg.Server.Port)
	assert.False(t, cfg.MockRouter)
	assert.Empty(t, cfg.Experiments)
}

func TestInitializeFullConfig(t *testing.T) {
	t.Setenv("NL_TEST_REDIS", "redis://cache:6379/0")

	dir := writeConfig(t, `
models:
  primary: gpt-4o
  fallbacks: [claude-sonnet-4-5]
  call_timeout: 45s
  max_output_tokens: 2048
  temperature: 0.7
budget:
  max_tokens: 16000
  max_cents: 120
  timeout_seconds: 60
retrieval:
  base_url: http://retrieval:8090
  enable_rerank: false
  k_final: 20
  window: 7d
  cache_url: "{{.NL_TEST_REDIS}}"
  cache_ttl: 90s
features:
  enable_analyze_sentiment: false
  disabled_commands: ["/dashboard"]
domains:
  blacklist: [spam.example]
  whitelist: [trusted.example]
memory:
  path: /var/lib/newslens/memory
server:
  port: "9090"
experiments:
  - id: exp-depth
    status: active
    target_commands: ["/ask"]
    arms:
      - {id: control, name: Control, weight: 0.5, enabled: true}
      - {id: deep, name: Deep, weight: 0.5, enabled: true, config: {depth: 3}}
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Models.Primary)
	assert.Equal(t, []string{"claude-sonnet-4-5"}, cfg.Models.Fallbacks)
	assert.Equal(t, 45*time.Second, cfg.Models.CallTimeout)
	assert.Equal(t, 2048, cfg.Models.MaxOutputTokens)
	assert.Equal(t, 0.7, cfg.Models.Temperature)
	assert.Equal(t, 16000, cfg.Budget.MaxTokens)
	assert.Equal(t, 120.0, cfg.Budget.MaxCents)
	assert.False(t, cfg.Retrieval.EnableRerank)
	assert.Equal(t, 20, cfg.Retrieval.KFinal)
	assert.Equal(t, "redis://cache:6379/0", cfg.Retrieval.CacheURL, "env var must expand")
	assert.Equal(t, 90*time.Second, cfg.Retrieval.CacheTTL)
	assert.Equal(t, []string{"keywords", "topics"}, cfg.Features.AnalyzeModes())
	assert.False(t, cfg.Features.CommandEnabled("/dashboard"))
	assert.True(t, cfg.Features.CommandEnabled("/ask"))
	assert.Equal(t, []string{"spam.example"}, cfg.Domains.Blacklist)
	assert.Equal(t, "/var/lib/newslens/memory", cfg.Memory.Path)
	assert.Equal(t, DefaultEmbeddingModel, cfg.Memory.EmbeddingModel, "unset fields keep defaults")
	assert.Equal(t, "9090", cfg.Server.Port)

	require.Len(t, cfg.Experiments, 1)
	assert.Equal(t, "exp-depth", cfg.Experiments[0].ID)
	require.Len(t, cfg.Experiments[0].Arms, 2)
	assert.Equal(t, map[string]any{"depth": 3}, cfg.Experiments[0].Arms[1].Config)
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "models: [not: a: mapping")
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestMockRouterModeFromEnv(t *testing.T) {
	t.Setenv("PHASE3_MODEL_ROUTER_MODE", "mock")
	cfg, err := Initialize(context.Background(), writeConfig(t, ""))
	require.NoError(t, err)
	assert.True(t, cfg.MockRouter)
}

func TestInvalidCallTimeoutKeepsDefault(t *testing.T) {
	dir := writeConfig(t, "models:\n  call_timeout: soon\n")
	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultCallTimeout, cfg.Models.CallTimeout)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("NL_TEST_KEY", "secret-value")
	t.Setenv("NL_TEST_PAIR", "a=b=c")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "key: {{.NL_TEST_KEY}}", "key: secret-value"},
		{"missing variable", "key: {{.NL_TEST_ABSENT}}", "key: "},
		{"value containing equals", "key: {{.NL_TEST_PAIR}}", "key: a=b=c"},
		{"literal dollar preserved", `pattern: "^secret.*$"`, `pattern: "^secret.*$"`},
		{"malformed template passthrough", "key: {{.broken", "key: {{.broken"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, string(ExpandEnv([]byte(tc.in))))
		})
	}
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown model family", "models:\n  primary: llama-70b\n"},
		{"zero budget tokens", "budget:\n  max_tokens: -5\n"},
		{"bad experiment weights", `
experiments:
  - id: broken
    target_commands: ["/ask"]
    arms:
      - {id: a, weight: 0.4, enabled: true}
      - {id: b, weight: 0.4, enabled: true}
`},
		{"target without slash", `
experiments:
  - id: broken
    target_commands: ["ask"]
    arms:
      - {id: a, weight: 1.0, enabled: true}
`},
		{"disabled command without slash", "features:\n  disabled_commands: [dashboard]\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Initialize(context.Background(), writeConfig(t, tc.content))
			require.Error(t, err)

			var vErr *ValidationError
			assert.True(t, errors.As(err, &vErr), "want ValidationError, got %v", err)
		})
	}
}
