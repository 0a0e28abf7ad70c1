package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResponse() *Response {
	ref := EvidenceRef{ArticleID: "d1", URL: "https://news.example.com/a", Date: "2026-08-01"}
	return NewBuilder("corr-123", "gpt-4o-mini", "1.4.0").
		Header("AI adoption accelerates across enterprise software").
		TLDR("Enterprises report faster AI rollout, with procurement cycles shortening quarter over quarter.").
		Insight(InsightFact, "Procurement cycles for AI tooling shortened in Q2.", ref).
		Insight(InsightHypothesis, "Adoption is driven by cost pressure rather than capability gains.", ref).
		Evidence(Evidence{Title: "Enterprise AI survey", ArticleID: "d1", URL: "https://news.example.com/a", Date: "2026-08-01", Snippet: "Survey of 400 firms shows faster rollout."}).
		Result(&QAResult{
			Steps:  []QAStep{{Iteration: 1, Query: "How is AI adoption progressing?", NDocs: 3, Reason: "initial retrieval"}},
			Answer: "Adoption is accelerating, led by cost-sensitive sectors.",
		}).
		Confidence(0.82).
		Iterations(1).
		Build()
}

func TestResponseJSONRoundTrip(t *testing.T) {
	orig := sampleResponse()

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, *orig, decoded)
	qa, ok := decoded.Result.V.(*QAResult)
	require.True(t, ok, "decoded result should be a QAResult")
	assert.Equal(t, 1, qa.Steps[0].Iteration)
}

func TestResultEnvelopeRoundTrip_AllFamilies(t *testing.T) {
	ref := EvidenceRef{Date: "2026-01-15"}
	variants := []Result{
		&QAResult{Answer: "a"},
		&EventsResult{Events: []Event{{ID: "e1", Title: "Launch", StartDate: "2026-01-01", EndDate: "2026-01-02"}}},
		&GraphResult{Nodes: []GraphNode{{ID: "n1", Label: "ai", Type: NodeTopic}}, Answer: "x"},
		&MemoryResult{Operation: MemoryRecall},
		&SynthesisResult{Summary: "s", Actions: []Action{{Recommendation: "r", Impact: ImpactLow, EvidenceRefs: []EvidenceRef{ref}}}},
		&ForecastResult{Items: []ForecastItem{{Topic: "ai", Direction: DirectionUp, ConfidenceInterval: ConfidenceInterval{Lower: 0.2, Upper: 0.8}, Drivers: []Driver{{Text: "d", Evidence: []EvidenceRef{ref}}}, Horizon: "30d"}}},
		&CompetitorsResult{Positioning: []PositioningEntry{{Domain: "example.com", Stance: StanceLeader}}, TopDomains: []string{"example.com"}},
	}

	for _, v := range variants {
		t.Run(string(v.Family()), func(t *testing.T) {
			env := NewResult(v)
			data, err := json.Marshal(env)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"type":"`+string(v.Family())+`"`)

			var decoded ResultEnvelope
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, v, decoded.V)
		})
	}
}

func TestResultEnvelopeUnknownFamily(t *testing.T) {
	var env ResultEnvelope
	err := json.Unmarshal([]byte(`{"type":"bogus","data":{}}`), &env)
	assert.Error(t, err)
}

func TestBuilderTruncatesAtCaps(t *testing.T) {
	long := strings.Repeat("x", 500)
	resp := NewBuilder("c", "m", "v").
		Header(long).
		TLDR(long).
		Insight(InsightFact, long, EvidenceRef{Date: "2026-01-01"}).
		Build()

	assert.Len(t, resp.Header, MaxHeaderLen)
	assert.Len(t, resp.TLDR, MaxTLDRLen)
	assert.Len(t, resp.Insights[0].Text, MaxInsightTextLen)
}

func TestBuilderDropsExcessInsights(t *testing.T) {
	b := NewBuilder("c", "m", "v")
	for i := 0; i < MaxInsights+3; i++ {
		b.Insight(InsightFact, "t", EvidenceRef{Date: "2026-01-01"})
	}
	assert.Len(t, b.Build().Insights, MaxInsights)
}

func TestBuilderClampsConfidence(t *testing.T) {
	assert.Equal(t, 1.0, NewBuilder("c", "m", "v").Confidence(3).Build().Meta.Confidence)
	assert.Equal(t, 0.0, NewBuilder("c", "m", "v").Confidence(-1).Build().Meta.Confidence)
}

func TestTruncateRuneSafe(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "ok", Truncate("ok", 10))
}

func TestErrorCodeRetryable(t *testing.T) {
	assert.False(t, ErrValidationFailed.Retryable())
	assert.False(t, ErrBudgetExceeded.Retryable())
	assert.True(t, ErrNoData.Retryable())
	assert.True(t, ErrModelUnavailable.Retryable())
	assert.True(t, ErrInternal.Retryable())
}

func TestNewErrorCarriesRetryability(t *testing.T) {
	e := NewError(ErrNoData, "No matching articles.", "retrieval returned 0 docs", Meta{CorrelationID: "c"})
	assert.True(t, e.Retryable)
	assert.Equal(t, ErrNoData, e.Code)
}
