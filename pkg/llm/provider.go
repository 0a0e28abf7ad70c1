// Package llm contains the model router: provider adapters for the supported
// LLM families, the fallback chain, per-call cost accounting, and the
// deterministic document-context assembly.
package llm

import (
	"context"
	"errors"
	"strings"
)

// Provider families. Selection is by model-label prefix (see FamilyForModel).
const (
	FamilyOpenAI    = "openai"
	FamilyAnthropic = "anthropic"
	FamilyGemini    = "gemini"
	FamilyMock      = "mock"
)

// ErrNoProvider indicates no configured provider serves a model label.
var ErrNoProvider = errors.New("no provider configured for model")

// Request is a single completion request to a provider.
type Request struct {
	Prompt          string
	MaxOutputTokens int
	Temperature     float64
}

// Reply is a provider's completion. Providers that report token counts fill
// both fields; the router falls back to a 70/30 estimate otherwise.
type Reply struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is a single LLM family client. Implementations must be safe for
// concurrent use.
type Provider interface {
	Family() string
	Call(ctx context.Context, model string, req Request) (*Reply, error)
}

// FamilyForModel maps a model label to its provider family by prefix.
// Unknown labels return "".
func FamilyForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return FamilyOpenAI
	case strings.HasPrefix(model, "claude-"):
		return FamilyAnthropic
	case strings.HasPrefix(model, "gemini-"):
		return FamilyGemini
	case strings.HasPrefix(model, "mock"):
		return FamilyMock
	default:
		return ""
	}
}

// EstimateTokens approximates the token count of a text (≈4 chars/token).
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 && len(text) > 0 {
		n = 1
	}
	return n
}

// SplitTokens divides a total token count into the 70/30 input/output split
// used when a provider does not report separate counts.
func SplitTokens(total int) (input, output int) {
	input = total * 70 / 100
	output = total - input
	return
}
