package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// Analyze modes. The orchestrator fans one agent per enabled mode out in
// parallel for /analyze.
const (
	AnalyzeKeywords  = "keywords"
	AnalyzeSentiment = "sentiment"
	AnalyzeTopics    = "topics"
)

// Sentiment lexicon used by the sentiment mode. Coarse on purpose: the mode
// summarizes tone across the document set, not per-sentence polarity.
var (
	positiveWords = []string{"growth", "gain", "rise", "improve", "success", "record", "strong", "surge", "ease", "recover"}
	negativeWords = []string{"drop", "fall", "decline", "loss", "risk", "concern", "dispute", "constraint", "weak", "crisis"}
)

// AnalyzeAgent runs one deterministic analysis mode over the documents.
type AnalyzeAgent struct {
	mode string
}

// NewAnalyzeAgent builds the agent for one analyze mode.
func NewAnalyzeAgent(mode string) *AnalyzeAgent {
	return &AnalyzeAgent{mode: mode}
}

// Mode returns the configured analyze mode.
func (a *AnalyzeAgent) Mode() string { return a.mode }

func (a *AnalyzeAgent) Run(_ context.Context, in Input) (*Output, error) {
	var summary string
	switch a.mode {
	case AnalyzeKeywords:
		summary = keywordSummary(in.Docs)
	case AnalyzeSentiment:
		summary = sentimentSummary(in.Docs)
	case AnalyzeTopics:
		summary = topicSummary(in.Docs)
	default:
		return nil, fmt.Errorf("unknown analyze mode %q", a.mode)
	}

	result := &schema.QAResult{
		Steps: []schema.QAStep{{
			Iteration: 1,
			Query:     a.mode,
			NDocs:     len(in.Docs),
			Reason:    a.mode + " analysis",
		}},
		Answer: schema.Truncate(summary, schema.MaxAnswerLen),
	}

	refs := refsFor(in.Docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}
	return &Output{
		Result: result,
		Insights: []schema.Insight{{
			Kind: schema.InsightFact,
			Text: schema.Truncate(summary, schema.MaxInsightTextLen),
			Refs: refs,
		}},
		Summary:    summary,
		Confidence: 0.6,
		Model:      in.Primary,
	}, nil
}

func docText(docs []retrieval.Document) string {
	var sb strings.Builder
	for _, doc := range docs {
		sb.WriteString(doc.Title)
		sb.WriteString(" ")
		sb.WriteString(doc.Snippet)
		sb.WriteString(" ")
	}
	return sb.String()
}

func keywordSummary(docs []retrieval.Document) string {
	keywords := topKeywords(docText(docs), 5)
	if len(keywords) == 0 {
		return "No recurring keywords across the documents."
	}
	return "Top keywords: " + strings.Join(keywords, ", ")
}

func sentimentSummary(docs []retrieval.Document) string {
	text := strings.ToLower(docText(docs))
	var pos, neg int
	for _, w := range positiveWords {
		pos += strings.Count(text, w)
	}
	for _, w := range negativeWords {
		neg += strings.Count(text, w)
	}

	switch {
	case pos == 0 && neg == 0:
		return "Coverage tone is neutral."
	case pos > neg:
		return fmt.Sprintf("Coverage tone is positive (%d positive vs %d negative signals).", pos, neg)
	case neg > pos:
		return fmt.Sprintf("Coverage tone is negative (%d negative vs %d positive signals).", neg, pos)
	default:
		return fmt.Sprintf("Coverage tone is mixed (%d signals each way).", pos)
	}
}

// topicSummary clusters documents by their leading title entity, falling
// back to the source domain when the title yields none.
func topicSummary(docs []retrieval.Document) string {
	counts := make(map[string]int)
	for _, doc := range docs {
		topic := ""
		if entities := titleEntities(doc.Title, 1); len(entities) > 0 {
			topic = entities[0]
		} else if kws := topKeywords(doc.Title, 1); len(kws) > 0 {
			topic = kws[0]
		}
		if topic == "" {
			continue
		}
		counts[topic]++
	}
	if len(counts) == 0 {
		return "No dominant topics across the documents."
	}

	topics := make([]string, 0, len(counts))
	for t := range counts {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if len(topics) > 3 {
		topics = topics[:3]
	}

	parts := make([]string, 0, len(topics))
	for _, t := range topics {
		parts = append(parts, fmt.Sprintf("%s (%d)", t, counts[t]))
	}
	return "Dominant topics: " + strings.Join(parts, ", ")
}
