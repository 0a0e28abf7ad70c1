package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newslens/newslens/pkg/retrieval"
)

// fakeProvider scripts per-model behavior for router tests.
type fakeProvider struct {
	family string
	fail   map[string]error  // models that return this error
	block  map[string]bool   // models that block until ctx is done
	reply  map[string]*Reply // canned replies per model
	calls  []string          // models called, in order
}

func (f *fakeProvider) Family() string { return f.family }

func (f *fakeProvider) Call(ctx context.Context, model string, _ Request) (*Reply, error) {
	f.calls = append(f.calls, model)
	if f.block[model] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.fail[model]; err != nil {
		return nil, err
	}
	if r := f.reply[model]; r != nil {
		return r, nil
	}
	return &Reply{Text: "ok from " + model, InputTokens: 100, OutputTokens: 50}, nil
}

func TestCallWithFallbackPrimarySucceeds(t *testing.T) {
	p := &fakeProvider{family: FamilyOpenAI}
	r := NewRouter([]Provider{p})

	res, usage, err := r.CallWithFallback(context.Background(), CallInput{
		Prompt:  "q",
		Primary: "gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.False(t, usage.FallbackUsed)
	assert.Equal(t, 150, usage.TokensUsed)
	assert.Greater(t, usage.CostCents, 0.0)
}

func TestCallWithFallbackAdvancesOnFailure(t *testing.T) {
	p := &fakeProvider{
		family: FamilyOpenAI,
		fail:   map[string]error{"gpt-4o": errors.New("quota exceeded")},
	}
	r := NewRouter([]Provider{p})

	res, usage, err := r.CallWithFallback(context.Background(), CallInput{
		Prompt:    "q",
		Primary:   "gpt-4o",
		Fallbacks: []string{"gpt-4o-mini"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.True(t, usage.FallbackUsed)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, p.calls)
}

func TestCallWithFallbackCrossFamily(t *testing.T) {
	oa := &fakeProvider{family: FamilyOpenAI, fail: map[string]error{"gpt-4o": errors.New("500")}}
	an := &fakeProvider{family: FamilyAnthropic}
	r := NewRouter([]Provider{oa, an})

	res, _, err := r.CallWithFallback(context.Background(), CallInput{
		Prompt:    "q",
		Primary:   "gpt-4o",
		Fallbacks: []string{"claude-haiku-3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-3", res.Model)
}

func TestCallWithFallbackTimeoutAdvances(t *testing.T) {
	p := &fakeProvider{
		family: FamilyOpenAI,
		block:  map[string]bool{"gpt-4o": true},
	}
	r := NewRouter([]Provider{p})

	res, usage, err := r.CallWithFallback(context.Background(), CallInput{
		Prompt:    "q",
		Primary:   "gpt-4o",
		Fallbacks: []string{"gpt-4o-mini"},
		Timeout:   20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Model)
	assert.True(t, usage.FallbackUsed)
}

func TestCallWithFallbackExhausted(t *testing.T) {
	p := &fakeProvider{
		family: FamilyOpenAI,
		fail: map[string]error{
			"gpt-4o":      errors.New("auth failed"),
			"gpt-4o-mini": errors.New("server error"),
		},
	}
	r := NewRouter([]Provider{p})

	_, _, err := r.CallWithFallback(context.Background(), CallInput{
		Prompt:    "q",
		Primary:   "gpt-4o",
		Fallbacks: []string{"gpt-4o-mini"},
	})
	require.Error(t, err)

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, unavailable.Attempted)
	assert.Contains(t, unavailable.Error(), "server error")
}

func TestCallWithFallbackUnknownFamilySkipped(t *testing.T) {
	p := &fakeProvider{family: FamilyOpenAI}
	r := NewRouter([]Provider{p})

	res, _, err := r.CallWithFallback(context.Background(), CallInput{
		Prompt:    "q",
		Primary:   "llama-unknown",
		Fallbacks: []string{"gpt-4o-mini"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Model)
}

func TestNoProvidersSubstitutesMock(t *testing.T) {
	r := NewRouter(nil)

	res, usage, err := r.CallWithFallback(context.Background(), CallInput{
		Prompt:  "What moved the market today?\nmore detail",
		Primary: "gpt-4o",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "What moved the market today?")
	assert.Zero(t, usage.CostCents)
	assert.Greater(t, usage.TokensUsed, 0)
}

func TestMockModeOverride(t *testing.T) {
	p := &fakeProvider{family: FamilyOpenAI}
	r := NewRouter([]Provider{p}, WithMockMode(true))

	res, _, err := r.CallWithFallback(context.Background(), CallInput{Prompt: "hi", Primary: "gpt-4o"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "[mock:")
	assert.Empty(t, p.calls, "real provider must not be touched in mock mode")
}

func TestMockDeterminism(t *testing.T) {
	m := NewMockProvider()
	a, err := m.Call(context.Background(), "gpt-4o", Request{Prompt: "line one\nline two"})
	require.NoError(t, err)
	b, err := m.Call(context.Background(), "gpt-4o", Request{Prompt: "line one\nline two"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuildContextDeterministicAndCapped(t *testing.T) {
	docs := make([]retrieval.Document, 0, 12)
	for i := 0; i < 12; i++ {
		docs = append(docs, retrieval.Document{
			Title:   "Title",
			Date:    "2026-08-01",
			URL:     "https://example.com/a",
			Snippet: strings.Repeat("s", 300),
		})
	}

	out := BuildContext(docs)
	assert.Equal(t, out, BuildContext(docs))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 10, "at most 10 docs in context")
	assert.True(t, strings.HasPrefix(lines[0], "[1] "))
	for _, line := range lines {
		assert.LessOrEqual(t, len(line), 260, "snippets truncated at 200 chars")
	}
}

func TestCostTableLongestPrefixWins(t *testing.T) {
	table := DefaultCostTable()
	mini := table.Lookup("gpt-4o-mini-2026")
	full := table.Lookup("gpt-4o-2026")
	assert.Less(t, mini.InputPer1K, full.InputPer1K)
}

func TestCostEstimateSplits70_30(t *testing.T) {
	in, out := SplitTokens(1000)
	assert.Equal(t, 700, in)
	assert.Equal(t, 300, out)

	table := DefaultCostTable()
	est := table.EstimateCost("gpt-4o", 1000)
	want := 0.7*0.25 + 0.3*1.0
	assert.InDelta(t, want, est, 1e-9)
}
