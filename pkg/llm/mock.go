package llm

import (
	"context"
	"strings"

	"github.com/newslens/newslens/pkg/schema"
)

// MockProvider is the deterministic stand-in used when no real provider is
// configured, or when the router mode override forces it. The reply is
// derived from the first line of the prompt so pipelines stay exercisable
// end to end without credentials; cost is always zero.
type MockProvider struct{}

// NewMockProvider returns the deterministic mock.
func NewMockProvider() *MockProvider { return &MockProvider{} }

func (*MockProvider) Family() string { return FamilyMock }

func (*MockProvider) Call(ctx context.Context, model string, req Request) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	firstLine, _, _ := strings.Cut(strings.TrimSpace(req.Prompt), "\n")
	return &Reply{
		Text:         "[mock:" + model + "] " + schema.Truncate(firstLine, 160),
		InputTokens:  EstimateTokens(req.Prompt),
		OutputTokens: 32,
	}, nil
}
