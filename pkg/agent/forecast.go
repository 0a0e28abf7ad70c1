package agent

import (
	"context"
	"fmt"

	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// ForecastAgent serves /predict: one forecast item for the queried topic,
// direction and interval derived from coverage intensity with an optional
// LLM cross-check.
type ForecastAgent struct {
	router *llm.Router
}

// NewForecastAgent builds the /predict agent.
func NewForecastAgent(router *llm.Router) *ForecastAgent {
	return &ForecastAgent{router: router}
}

func (a *ForecastAgent) Run(ctx context.Context, in Input) (*Output, error) {
	call := newCaller(a.router, &in)
	var warnings []string

	horizon := in.Window
	if horizon == "" {
		horizon = "30d"
	}

	direction, center := trendFromDocs(in.Docs)

	// The LLM check can override the heuristic direction; a low budget or a
	// failure keeps it.
	if in.Budget.ShouldDegrade() {
		warnings = append(warnings, "budget low, keeping coverage-based direction")
	} else if reply, err := call.call(ctx, forecastPrompt(in.Query, direction, horizon), capDocs(in.Docs, 10)); err != nil {
		warnings = append(warnings, "forecast check unavailable, keeping coverage-based direction")
	} else if d, ok := parseDirection(reply); ok {
		direction = d
	}

	interval := schema.ConfidenceInterval{
		Lower: clamp01(center - 0.15),
		Upper: clamp01(center + 0.15),
	}

	item := schema.ForecastItem{
		Topic:              in.Query,
		Direction:          direction,
		ConfidenceInterval: interval,
		Drivers:            driversFromDocs(in.Docs),
		Horizon:            horizon,
	}

	summary := fmt.Sprintf("Coverage points %s for %q over %s", direction, in.Query, horizon)
	return &Output{
		Result:     &schema.ForecastResult{Items: []schema.ForecastItem{item}},
		Insights:   forecastInsights(item, in.Docs),
		Summary:    summary,
		Confidence: center,
		Model:      call.model,
		Warnings:   warnings,
	}, nil
}

// trendFromDocs maps average document score to a direction and an interval
// center.
func trendFromDocs(docs []retrieval.Document) (schema.Direction, float64) {
	if len(docs) == 0 {
		return schema.DirectionFlat, 0.5
	}
	var sum float64
	for _, doc := range docs {
		sum += clamp01(doc.Score)
	}
	avg := sum / float64(len(docs))
	switch {
	case avg > 0.6:
		return schema.DirectionUp, avg
	case avg < 0.3:
		return schema.DirectionDown, avg
	default:
		return schema.DirectionFlat, avg
	}
}

func forecastPrompt(topic string, heuristic schema.Direction, horizon string) string {
	return fmt.Sprintf(
		"Based on the context documents, is coverage of %q trending up, down, or flat over %s?\n"+
			"A coverage-volume heuristic suggests %q.\n"+
			"Reply with exactly one line:\nDIRECTION: up, down, or flat",
		topic, horizon, heuristic)
}

func parseDirection(text string) (schema.Direction, bool) {
	value, ok := parseLine(text, "DIRECTION:")
	if !ok {
		return "", false
	}
	switch schema.Direction(value) {
	case schema.DirectionUp, schema.DirectionDown, schema.DirectionFlat:
		return schema.Direction(value), true
	default:
		return "", false
	}
}

// driversFromDocs backs each forecast with up to three evidence-carrying
// drivers; the shape requires at least one.
func driversFromDocs(docs []retrieval.Document) []schema.Driver {
	docs = capDocs(docs, 3)
	out := make([]schema.Driver, 0, len(docs))
	for _, doc := range docs {
		out = append(out, schema.Driver{
			Text:     schema.Truncate(doc.Title, schema.MaxInsightTextLen),
			Evidence: []schema.EvidenceRef{refFor(doc)},
		})
	}
	if len(out) == 0 {
		out = append(out, schema.Driver{
			Text:     "No recent coverage; forecast rests on the prior window.",
			Evidence: []schema.EvidenceRef{{Date: refDate("")}},
		})
	}
	return out
}

func forecastInsights(item schema.ForecastItem, docs []retrieval.Document) []schema.Insight {
	refs := refsFor(docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}
	return []schema.Insight{{
		Kind: schema.InsightHypothesis,
		Text: schema.Truncate(fmt.Sprintf("Topic %q trends %s over %s, interval [%.2f, %.2f].",
			item.Topic, item.Direction, item.Horizon,
			item.ConfidenceInterval.Lower, item.ConfidenceInterval.Upper), schema.MaxInsightTextLen),
		Refs: refs,
	}}
}
