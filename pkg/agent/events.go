package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// Causal links below this confidence are discarded.
const causalLinkThreshold = 0.3

// temporalFallbackConfidence is assigned when the LLM causal check fails and
// the agent falls back to temporal proximity.
const temporalFallbackConfidence = 0.4

// EventsAgent extracts a dated event timeline from the documents and reasons
// about causal links between adjacent events.
type EventsAgent struct {
	router *llm.Router
}

// NewEventsAgent builds the /events agent.
func NewEventsAgent(router *llm.Router) *EventsAgent {
	return &EventsAgent{router: router}
}

func (a *EventsAgent) Run(ctx context.Context, in Input) (*Output, error) {
	call := newCaller(a.router, &in)
	var warnings []string

	// Fan-out siblings share the ledger, so spend may already exist here.
	in.Params = in.Budget.Degrade(schema.CommandEvents, in.Params)

	docs := in.Docs
	if in.Params.KFinal > 0 {
		docs = capDocs(docs, in.Params.KFinal)
	}
	events, docsByEvent := eventsFromDocs(docs)
	timeline := timelineRelations(events)
	links := a.causalLinks(ctx, call, events, docsByEvent, &warnings)

	result := &schema.EventsResult{
		Events:      events,
		Timeline:    timeline,
		CausalLinks: links,
	}

	summary := fmt.Sprintf("Found %d events across %d documents", len(events), len(docs))
	if len(links) > 0 {
		summary += fmt.Sprintf(" with %d causal links", len(links))
	}

	return &Output{
		Result:     result,
		Insights:   eventInsights(events, links, docs),
		Summary:    summary,
		Confidence: clamp01(0.5 + 0.05*float64(len(events))),
		Model:      call.model,
		Warnings:   warnings,
	}, nil
}

// eventsFromDocs derives one event per dated document, sorted by start date.
func eventsFromDocs(docs []retrieval.Document) ([]schema.Event, map[string][]retrieval.Document) {
	byEvent := make(map[string][]retrieval.Document)
	events := make([]schema.Event, 0, len(docs))
	for i, doc := range docs {
		date := refDate(doc.Date)
		id := doc.ArticleID
		if id == "" {
			id = fmt.Sprintf("ev-%d", i+1)
		}
		events = append(events, schema.Event{
			ID:        id,
			Title:     schema.Truncate(doc.Title, schema.MaxEvidenceTitle),
			StartDate: date,
			EndDate:   date,
			DocRefs:   []string{doc.ArticleID},
		})
		byEvent[id] = append(byEvent[id], doc)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].StartDate < events[j].StartDate })
	return events, byEvent
}

// timelineRelations positions each event against its predecessor.
func timelineRelations(events []schema.Event) []schema.TimelineRelation {
	var out []schema.TimelineRelation
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		pos := schema.PositionAfter
		switch {
		case cur.StartDate < prev.StartDate:
			pos = schema.PositionBefore
		case cur.StartDate == prev.StartDate:
			pos = schema.PositionOverlap
		}
		out = append(out, schema.TimelineRelation{
			EventID:          cur.ID,
			Position:         pos,
			ReferenceEventID: prev.ID,
		})
	}
	return out
}

// causalLinks checks each temporally-ordered adjacent pair. The per-pair LLM
// check is the expensive part of the agent, so the ledger is consulted before
// every call; a low budget or a failed check falls back to temporal proximity.
func (a *EventsAgent) causalLinks(ctx context.Context, call *caller, events []schema.Event, docsByEvent map[string][]retrieval.Document, warnings *[]string) []schema.CausalLink {
	var links []schema.CausalLink
	failureNoted := false
	budgetNoted := false

	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		if cur.StartDate < prev.StartDate {
			continue
		}

		confidence := temporalFallbackConfidence
		if call.in.Budget.ShouldDegrade() {
			if !budgetNoted {
				*warnings = append(*warnings, "budget low, using temporal-proximity fallback for causal checks")
				budgetNoted = true
			}
		} else if reply, err := call.call(ctx, causalPrompt(prev.Title, cur.Title), nil); err != nil {
			if !failureNoted {
				*warnings = append(*warnings, "causal check unavailable, using temporal-proximity fallback")
				failureNoted = true
			}
		} else if parsed, ok := parseConfidence(reply); ok {
			confidence = parsed
		}

		if confidence <= causalLinkThreshold {
			continue
		}

		supporting := append(append([]retrieval.Document{}, docsByEvent[prev.ID]...), docsByEvent[cur.ID]...)
		links = append(links, schema.CausalLink{
			Cause:        prev.ID,
			Effect:       cur.ID,
			Confidence:   confidence,
			EvidenceRefs: refsFor(supporting, 3),
		})
	}
	return links
}

func eventInsights(events []schema.Event, links []schema.CausalLink, docs []retrieval.Document) []schema.Insight {
	refs := refsFor(docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}
	insights := []schema.Insight{{
		Kind: schema.InsightFact,
		Text: schema.Truncate(fmt.Sprintf("%d dated events extracted from the coverage.", len(events)), schema.MaxInsightTextLen),
		Refs: refs,
	}}
	if len(links) > 0 {
		insights = append(insights, schema.Insight{
			Kind: schema.InsightHypothesis,
			Text: schema.Truncate(fmt.Sprintf("%d plausible causal links connect the timeline.", len(links)), schema.MaxInsightTextLen),
			Refs: links[0].EvidenceRefs,
		})
	}
	return insights
}
