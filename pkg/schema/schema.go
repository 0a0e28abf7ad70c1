// Package schema defines the response envelope returned by every command,
// the error envelope, and the per-command result variants. Validation rules
// that depend only on the types themselves (length caps, enum membership)
// live here as constants; the policy package enforces them.
package schema

// Command identifies a command family exposed by the engine.
type Command string

const (
	CommandAsk         Command = "/ask"
	CommandEvents      Command = "/events"
	CommandGraph       Command = "/graph"
	CommandMemory      Command = "/memory"
	CommandSynthesize  Command = "/synthesize"
	CommandTrends      Command = "/trends"
	CommandAnalyze     Command = "/analyze"
	CommandPredict     Command = "/predict"
	CommandCompetitors Command = "/competitors"
	CommandDashboard   Command = "/dashboard"
	CommandReports     Command = "/reports"
)

// Length caps enforced on every successful response.
const (
	MaxHeaderLen      = 100
	MaxTLDRLen        = 220
	MaxInsightTextLen = 180
	MaxEvidenceTitle  = 200
	MaxSnippetLen     = 240
	MaxAnswerLen      = 600
	MaxSummaryLen     = 400
	MaxInsights       = 5
	MinInsights       = 1
)

// InsightKind tags an insight with its epistemic status.
type InsightKind string

const (
	InsightFact           InsightKind = "fact"
	InsightHypothesis     InsightKind = "hypothesis"
	InsightRecommendation InsightKind = "recommendation"
	InsightConflict       InsightKind = "conflict"
)

// EvidenceRef points an insight (or action, or causal link) at a source document.
// Date is mandatory and must be an ISO calendar date (YYYY-MM-DD).
type EvidenceRef struct {
	ArticleID string `json:"article_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Date      string `json:"date"`
}

// Insight is one of the 1–5 findings carried by a successful response.
type Insight struct {
	Kind InsightKind   `json:"kind"`
	Text string        `json:"text"`
	Refs []EvidenceRef `json:"evidence_refs"`
}

// Evidence is a full supporting document entry in the response evidence list.
type Evidence struct {
	Title     string `json:"title"`
	ArticleID string `json:"article_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Date      string `json:"date"`
	Snippet   string `json:"snippet"`
}

// Meta carries response provenance: which model answered, under which
// experiment arm, and how confident the pipeline is in the result.
type Meta struct {
	Confidence    float64 `json:"confidence"`
	Model         string  `json:"model"`
	Version       string  `json:"version"`
	CorrelationID string  `json:"correlation_id"`
	Experiment    string  `json:"experiment,omitempty"`
	Arm           string  `json:"arm,omitempty"`
	Iterations    int     `json:"iterations,omitempty"`
}

// Response is the success envelope. It is built once per request, mutated
// only by the builder and the evidence sanitizer, and immutable after
// validation.
type Response struct {
	Header   string         `json:"header"`
	TLDR     string         `json:"tldr"`
	Insights []Insight      `json:"insights"`
	Evidence []Evidence     `json:"evidence"`
	Result   ResultEnvelope `json:"result"`
	Meta     Meta           `json:"meta"`
	Warnings []string       `json:"warnings"`
}
