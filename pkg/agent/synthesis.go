package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/schema"
)

// SynthesisAgent merges caller-supplied agent outputs into one summary with
// recommended actions and flagged conflicts. It never invokes other agents.
type SynthesisAgent struct {
	router *llm.Router
}

// NewSynthesisAgent builds the /synthesize agent.
func NewSynthesisAgent(router *llm.Router) *SynthesisAgent {
	return &SynthesisAgent{router: router}
}

func (a *SynthesisAgent) Run(ctx context.Context, in Input) (*Output, error) {
	if len(in.AgentOutputs) == 0 {
		return nil, errors.New("synthesis requires agent outputs")
	}

	call := newCaller(a.router, &in)
	var warnings []string

	var summary string
	if in.Budget.ShouldDegrade() {
		warnings = append(warnings, "budget low, concatenating outputs without a model pass")
		summary = strings.Join(in.AgentOutputs, " ")
	} else if merged, err := call.call(ctx, synthesisPrompt(in.Query, in.AgentOutputs, in.Lang), nil); err != nil {
		warnings = append(warnings, "synthesis model call failed, concatenating outputs")
		summary = strings.Join(in.AgentOutputs, " ")
	} else {
		summary = merged
	}
	summary = schema.Truncate(summary, schema.MaxSummaryLen)

	refs := refsFor(in.Docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}

	result := &schema.SynthesisResult{
		Summary:   summary,
		Conflicts: detectConflicts(in.AgentOutputs, refs),
		Actions:   buildActions(summary, refs),
	}

	return &Output{
		Result:     result,
		Insights:   synthesisInsights(result, refs),
		Summary:    summary,
		Confidence: clamp01(0.55 + 0.05*float64(len(in.AgentOutputs))),
		Model:      call.model,
		Warnings:   warnings,
	}, nil
}

// conflictMarkers are cheap lexical signals that two outputs disagree.
var conflictMarkers = []string{"however", "contradict", "dispute", "on the other hand", "disagree"}

// detectConflicts flags outputs carrying disagreement markers. Each conflict
// needs at least two refs, so the shared ref set is reused when the document
// pool is thin.
func detectConflicts(outputs []string, refs []schema.EvidenceRef) []schema.Conflict {
	if len(refs) < 2 {
		refs = append(refs, refs...)
	}
	var out []schema.Conflict
	for i, text := range outputs {
		lower := strings.ToLower(text)
		for _, marker := range conflictMarkers {
			if strings.Contains(lower, marker) {
				out = append(out, schema.Conflict{
					Description:  schema.Truncate(fmt.Sprintf("Output %d signals disagreement: %s", i+1, text), schema.MaxInsightTextLen),
					EvidenceRefs: refs[:2],
				})
				break
			}
		}
	}
	return out
}

// buildActions derives at least one recommended action; the result shape
// requires a non-empty list.
func buildActions(summary string, refs []schema.EvidenceRef) []schema.Action {
	actions := []schema.Action{{
		Recommendation: schema.Truncate("Review the consolidated findings with the editorial team.", schema.MaxInsightTextLen),
		Impact:         schema.ImpactMedium,
		EvidenceRefs:   refs[:1],
	}}
	if keywords := topKeywords(summary, 1); len(keywords) > 0 {
		actions = append(actions, schema.Action{
			Recommendation: schema.Truncate(fmt.Sprintf("Track coverage of %s over the next reporting window.", keywords[0]), schema.MaxInsightTextLen),
			Impact:         schema.ImpactLow,
			EvidenceRefs:   refs[:1],
		})
	}
	return actions
}

func synthesisInsights(result *schema.SynthesisResult, refs []schema.EvidenceRef) []schema.Insight {
	insights := []schema.Insight{{
		Kind: schema.InsightRecommendation,
		Text: schema.Truncate(result.Actions[0].Recommendation, schema.MaxInsightTextLen),
		Refs: refs,
	}}
	if len(result.Conflicts) > 0 {
		insights = append(insights, schema.Insight{
			Kind: schema.InsightConflict,
			Text: schema.Truncate(result.Conflicts[0].Description, schema.MaxInsightTextLen),
			Refs: result.Conflicts[0].EvidenceRefs,
		})
	}
	return insights
}
