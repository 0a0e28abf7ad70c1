package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newslens/newslens/pkg/config"
	"github.com/newslens/newslens/pkg/experiment"
	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/orchestrator"
	"github.com/newslens/newslens/pkg/policy"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

func apiDocs() []retrieval.Document {
	return []retrieval.Document{
		{ArticleID: "d1", Title: "AI adoption report", URL: "https://trusted.example/1", Date: "2026-08-01", Snippet: "Adoption grows in finance.", Score: 0.9},
		{ArticleID: "d2", Title: "Enterprise AI survey", URL: "https://trusted.example/2", Date: "2026-08-03", Snippet: "Retail follows finance.", Score: 0.7},
	}
}

func newTestServer(docs []retrieval.Document) *Server {
	cfg := &config.Config{
		Models: config.ModelsConfig{
			Primary:         "gpt-4o-mini",
			CallTimeout:     5 * time.Second,
			MaxOutputTokens: 1024,
			Temperature:     0.2,
		},
		Budget:    config.BudgetConfig{MaxTokens: 8000, MaxCents: 50, TimeoutSeconds: 30},
		Retrieval: config.RetrievalConfig{KFinal: 10, Window: "30d", EnableRerank: true},
		Features: config.FeaturesConfig{
			EnableAnalyzeKeywords:  true,
			EnableAnalyzeSentiment: true,
			EnableAnalyzeTopics:    true,
		},
	}
	domains := policy.NewDomainPolicy(nil, nil)
	experiments := experiment.NewRouter()
	orch := orchestrator.New(cfg, orchestrator.Deps{
		Router: llm.NewRouter(nil), // deterministic mock
		Retrieval: retrieval.Func(func(context.Context, retrieval.Query) ([]retrieval.Document, error) {
			return docs, nil
		}),
		Experiments: experiments,
		Validator:   policy.NewValidator(domains),
		Sanitizer:   policy.NewSanitizer(domains),
	}, "test")
	return NewServer(cfg, orch, experiments, "test")
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestExecuteEndpoint(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/execute",
		`{"command": "/ask", "query": "How is AI adoption progressing?", "depth": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp schema.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	qa, ok := resp.Result.V.(*schema.QAResult)
	require.True(t, ok)
	assert.NotEmpty(t, qa.Answer)
	assert.NotEmpty(t, resp.Evidence)
	assert.Equal(t, w.Header().Get("X-Correlation-ID"), resp.Meta.CorrelationID)
}

func TestExecuteEndpointNoData(t *testing.T) {
	h := newTestServer(nil).Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/execute",
		`{"command": "/events", "query": "nothing matches"}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	var errResp schema.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, schema.ErrNoData, errResp.Code)
	assert.True(t, errResp.Retryable)
}

func TestExecuteEndpointRejectsBadRequests(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"command": `},
		{"missing command", `{"query": "no command"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/api/v1/execute", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestExperimentLifecycle(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/experiments", `{
		"id": "exp-api",
		"target_commands": ["/ask"],
		"arms": [
			{"id": "control", "name": "Control", "weight": 0.5, "enabled": true},
			{"id": "deep", "name": "Deep", "weight": 0.5, "enabled": true, "config": {"depth": 3}}
		]
	}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created experiment.Experiment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, experiment.StatusDraft, created.Status, "unspecified status defaults to draft")

	w = doJSON(t, h, http.MethodPost, "/api/v1/experiments/exp-api/activate", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/experiments/exp-api", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fetched experiment.Experiment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, experiment.StatusActive, fetched.Status)

	w = doJSON(t, h, http.MethodGet, "/api/v1/experiments/exp-api/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"arms"`)

	w = doJSON(t, h, http.MethodPost, "/api/v1/experiments/exp-api/deactivate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(experiment.StatusPaused))
}

func TestExperimentNotFound(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	w := doJSON(t, h, http.MethodGet, "/api/v1/experiments/missing/summary", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/v1/experiments/missing/activate", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArmMetricsRequiresStore(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	w := doJSON(t, h, http.MethodGet, "/api/v1/experiments/exp-api/arms/control/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")
}

func TestExperimentRegistrationRejectsBadWeights(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/experiments", `{
		"id": "broken",
		"target_commands": ["/ask"],
		"arms": [{"id": "a", "weight": 0.4, "enabled": true}]
	}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "weights")
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	w := doJSON(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(apiDocs())
	s.SetMetricsRegistry(prometheus.NewRegistry())
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCorrelationIDHeaderEcho(t *testing.T) {
	h := newTestServer(apiDocs()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", strings.NewReader(""))
	req.Header.Set("X-Correlation-ID", "client-supplied")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "client-supplied", w.Header().Get("X-Correlation-ID"))
}
