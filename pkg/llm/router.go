package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/newslens/newslens/pkg/metrics"
	"github.com/newslens/newslens/pkg/retrieval"
)

// UnavailableError reports an exhausted fallback chain. It carries every
// attempted model label and the last underlying error.
type UnavailableError struct {
	Attempted []string
	LastErr   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("all models unavailable (attempted: %s): %v",
		strings.Join(e.Attempted, ", "), e.LastErr)
}

func (e *UnavailableError) Unwrap() error { return e.LastErr }

// CallInput parameterizes one routed model call.
type CallInput struct {
	Prompt          string
	Docs            []retrieval.Document
	Primary         string
	Fallbacks       []string
	Timeout         time.Duration
	MaxOutputTokens int
	Temperature     float64
}

// Usage is the accounting metadata of one successful call.
type Usage struct {
	TokensUsed   int
	CostCents    float64
	LatencyMS    int64
	FallbackUsed bool
}

// Result is the content side of one successful call.
type Result struct {
	Content string
	Model   string
}

// Router tries models in fallback order, applying a per-attempt timeout and
// cost accounting. A single Router is safe for concurrent use; provider
// clients are themselves concurrency-safe.
type Router struct {
	providers map[string]Provider
	mock      Provider
	costs     CostTable
	metrics   *metrics.Metrics
	forceMock bool
}

// Option configures a Router.
type Option func(*Router)

// WithCostTable overrides the built-in price list.
func WithCostTable(t CostTable) Option { return func(r *Router) { r.costs = t } }

// WithMetrics attaches router instruments.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Router) { r.metrics = m } }

// WithMockMode forces every call onto the deterministic mock provider,
// regardless of configured clients (PHASE3_MODEL_ROUTER_MODE=mock).
func WithMockMode(force bool) Option { return func(r *Router) { r.forceMock = force } }

// NewRouter builds a router over the given providers. With no providers
// configured, the deterministic mock transparently serves every family.
func NewRouter(providers []Provider, opts ...Option) *Router {
	r := &Router{
		providers: make(map[string]Provider, len(providers)),
		mock:      NewMockProvider(),
		costs:     DefaultCostTable(),
		metrics:   metrics.NewNop(),
	}
	for _, p := range providers {
		r.providers[p.Family()] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.providers) == 0 && !r.forceMock {
		slog.Warn("No LLM providers configured, substituting deterministic mock provider")
	}
	return r
}

// providerFor resolves the provider for a model label, or nil when the
// label's family has no configured client.
func (r *Router) providerFor(model string) Provider {
	if r.forceMock || len(r.providers) == 0 {
		return r.mock
	}
	family := FamilyForModel(model)
	if family == "" {
		return nil
	}
	if family == FamilyMock {
		return r.mock
	}
	return r.providers[family]
}

// CallWithFallback tries [primary, fallbacks...] in order. Each attempt is
// bounded by in.Timeout; any provider error (including timeout) advances the
// chain. On success it returns content plus usage metadata; on exhaustion it
// returns an UnavailableError.
func (r *Router) CallWithFallback(ctx context.Context, in CallInput) (*Result, *Usage, error) {
	prompt := in.Prompt
	if contextBlock := BuildContext(in.Docs); contextBlock != "" {
		prompt = prompt + "\n\nContext documents:\n" + contextBlock
	}

	chain := append([]string{in.Primary}, in.Fallbacks...)
	attempted := make([]string, 0, len(chain))
	var lastErr error

	for i, model := range chain {
		attempted = append(attempted, model)

		provider := r.providerFor(model)
		if provider == nil {
			lastErr = fmt.Errorf("%w: %s", ErrNoProvider, model)
			slog.Warn("No provider for model, advancing fallback chain", "model", model)
			continue
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if in.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, in.Timeout)
		}

		start := time.Now()
		reply, err := provider.Call(attemptCtx, model, Request{
			Prompt:          prompt,
			MaxOutputTokens: in.MaxOutputTokens,
			Temperature:     in.Temperature,
		})
		cancel()
		latencyMS := time.Since(start).Milliseconds()

		if err != nil {
			lastErr = err
			slog.Warn("Model call failed, advancing fallback chain",
				"model", model, "attempt", i+1, "latency_ms", latencyMS, "error", err)
			if ctx.Err() != nil {
				// The request itself is done; stop burning the chain.
				break
			}
			continue
		}

		inTok, outTok := reply.InputTokens, reply.OutputTokens
		if inTok == 0 && outTok == 0 {
			inTok, outTok = SplitTokens(EstimateTokens(prompt) + EstimateTokens(reply.Text))
		}
		cost := 0.0
		if provider.Family() != FamilyMock {
			cost = r.costs.Cost(model, inTok, outTok)
		}

		usage := &Usage{
			TokensUsed:   inTok + outTok,
			CostCents:    cost,
			LatencyMS:    latencyMS,
			FallbackUsed: i > 0,
		}
		r.metrics.RecordRouterCall(ctx, model, usage.FallbackUsed, float64(latencyMS), cost)
		return &Result{Content: reply.Text, Model: model}, usage, nil
	}

	return nil, nil, &UnavailableError{Attempted: attempted, LastErr: lastErr}
}
