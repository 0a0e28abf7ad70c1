// Package agent implements the per-command analysis agents. Each agent
// consumes retrieved documents, optionally calls the model router, and
// produces a command-specific result plus the envelope ingredients (insights,
// summary, confidence). Agents recover locally where they can; hard failures
// surface as errors for the orchestrator to classify.
package agent

import (
	"context"
	"regexp"
	"time"

	"github.com/newslens/newslens/pkg/budget"
	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// Input is the shared agent contract: documents, the per-request budget
// ledger, language, and the post-degradation parameter set.
type Input struct {
	Query  string
	Docs   []retrieval.Document
	Budget *budget.Manager
	Lang   string
	Window string
	UserID string
	Params budget.Params

	// Model selection for every router call made by the agent.
	Primary         string
	Fallbacks       []string
	CallTimeout     time.Duration
	MaxOutputTokens int
	Temperature     float64

	// AgentOutputs feeds the synthesis agent; other agents ignore it.
	AgentOutputs []string
}

// Output carries the agent's result and the envelope ingredients derived
// from it.
type Output struct {
	Result     schema.Result
	Insights   []schema.Insight
	Summary    string
	Confidence float64
	Model      string
	Iterations int
	Warnings   []string
}

// Agent is implemented by every command agent.
type Agent interface {
	Run(ctx context.Context, in Input) (*Output, error)
}

// caller mediates router calls for an agent: it records usage into the
// budget ledger at the call site and remembers the last serving model.
type caller struct {
	router *llm.Router
	in     *Input
	model  string
}

func newCaller(router *llm.Router, in *Input) *caller {
	return &caller{router: router, in: in, model: in.Primary}
}

func (c *caller) call(ctx context.Context, prompt string, docs []retrieval.Document) (string, error) {
	start := time.Now()
	res, usage, err := c.router.CallWithFallback(ctx, llm.CallInput{
		Prompt:          prompt,
		Docs:            docs,
		Primary:         c.in.Primary,
		Fallbacks:       c.in.Fallbacks,
		Timeout:         c.in.CallTimeout,
		MaxOutputTokens: c.in.MaxOutputTokens,
		Temperature:     c.in.Temperature,
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.in.Budget.RecordUsage(0, 0, elapsed)
		return "", err
	}
	c.in.Budget.RecordUsage(usage.TokensUsed, usage.CostCents, elapsed)
	c.model = res.Model
	return res.Content, nil
}

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// refDate returns a valid ISO date for an evidence ref, falling back to the
// current date when the document carries none.
func refDate(docDate string) string {
	if isoDateRe.MatchString(docDate) {
		return docDate
	}
	return time.Now().UTC().Format("2006-01-02")
}

// refFor builds an evidence ref pointing at a document.
func refFor(doc retrieval.Document) schema.EvidenceRef {
	return schema.EvidenceRef{
		ArticleID: doc.ArticleID,
		URL:       doc.URL,
		Date:      refDate(doc.Date),
	}
}

// refsFor builds refs for up to max documents.
func refsFor(docs []retrieval.Document, max int) []schema.EvidenceRef {
	if len(docs) > max {
		docs = docs[:max]
	}
	refs := make([]schema.EvidenceRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, refFor(doc))
	}
	return refs
}

// EvidenceFromDocs converts documents into envelope evidence entries with
// the length caps applied. The orchestrator attaches these to the response.
func EvidenceFromDocs(docs []retrieval.Document, max int) []schema.Evidence {
	if len(docs) > max {
		docs = docs[:max]
	}
	out := make([]schema.Evidence, 0, len(docs))
	for _, doc := range docs {
		out = append(out, schema.Evidence{
			Title:     schema.Truncate(doc.Title, schema.MaxEvidenceTitle),
			ArticleID: doc.ArticleID,
			URL:       doc.URL,
			Date:      refDate(doc.Date),
			Snippet:   schema.Truncate(doc.Snippet, schema.MaxSnippetLen),
		})
	}
	return out
}

// capDocs bounds a document slice without copying.
func capDocs(docs []retrieval.Document, max int) []retrieval.Document {
	if len(docs) > max {
		return docs[:max]
	}
	return docs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
