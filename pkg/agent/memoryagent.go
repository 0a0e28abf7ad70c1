package agent

import (
	"context"
	"fmt"

	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// Recall defaults for the memory agent.
const (
	recallLimit         = 5
	recallMinSimilarity = 0.3
	suggestMax          = 5
	defaultTTLDays      = 90
)

// MemoryService is the slice of the memory store the agent needs; the
// concrete implementation lives in pkg/memory.
type MemoryService interface {
	Store(ctx context.Context, content, typ string, importance float64, ttlDays int, refs []string, userID string) (string, error)
	Recall(ctx context.Context, query, userID string, limit int, minSimilarity float64) ([]schema.MemoryRecord, error)
	Suggest(docs []retrieval.Document, max int) []schema.MemorySuggestion
}

// MemoryAgent serves /memory: suggest candidates from the documents, store
// the query as a note, or recall similar past entries. Degradation can force
// the operation to recall.
type MemoryAgent struct {
	store MemoryService
}

// NewMemoryAgent builds the /memory agent.
func NewMemoryAgent(store MemoryService) *MemoryAgent {
	return &MemoryAgent{store: store}
}

func (a *MemoryAgent) Run(ctx context.Context, in Input) (*Output, error) {
	// A drained ledger forces the operation to recall.
	in.Params = in.Budget.Degrade(schema.CommandMemory, in.Params)

	op := in.Params.MemoryOperation
	if op == "" {
		op = schema.MemorySuggest
	}

	result := &schema.MemoryResult{Operation: op}
	var summary string

	switch op {
	case schema.MemorySuggest:
		result.Suggestions = a.store.Suggest(in.Docs, suggestMax)
		summary = fmt.Sprintf("%d memory candidates suggested from the documents", len(result.Suggestions))

	case schema.MemoryStore:
		refs := make([]string, 0, len(in.Docs))
		for _, doc := range capDocs(in.Docs, 3) {
			refs = append(refs, doc.ArticleID)
		}
		id, err := a.store.Store(ctx, in.Query, "user_note", 0.5, defaultTTLDays, refs, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("storing memory: %w", err)
		}
		result.Stored = []schema.MemoryRecord{{
			ID:         id,
			Content:    in.Query,
			Type:       "user_note",
			Importance: 0.5,
			Refs:       refs,
		}}
		summary = "1 note stored in long-term memory"

	case schema.MemoryRecall:
		records, err := a.store.Recall(ctx, in.Query, in.UserID, recallLimit, recallMinSimilarity)
		if err != nil {
			return nil, fmt.Errorf("recalling memory: %w", err)
		}
		result.Records = records
		summary = fmt.Sprintf("%d memories recalled for the query", len(records))

	default:
		return nil, fmt.Errorf("unknown memory operation %q", op)
	}

	return &Output{
		Result:     result,
		Insights:   memoryInsights(summary, in.Docs),
		Summary:    summary,
		Confidence: 0.7,
		Model:      in.Primary,
	}, nil
}

func memoryInsights(summary string, docs []retrieval.Document) []schema.Insight {
	refs := refsFor(docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}
	return []schema.Insight{{
		Kind: schema.InsightFact,
		Text: schema.Truncate(summary, schema.MaxInsightTextLen),
		Refs: refs,
	}}
}
