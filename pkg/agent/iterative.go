package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// Per-iteration affordability estimate checked before each cycle.
const (
	iterationTokenEstimate = 500
	iterationCentEstimate  = 0.5
)

// IterativeAgent answers /ask with depth iterations of retrieve-reason-refine.
// Iterations are serial: each query depends on the prior answer.
type IterativeAgent struct {
	router   *llm.Router
	retrieve retrieval.Client
}

// NewIterativeAgent builds the /ask agent.
func NewIterativeAgent(router *llm.Router, retrieve retrieval.Client) *IterativeAgent {
	return &IterativeAgent{router: router, retrieve: retrieve}
}

func (a *IterativeAgent) Run(ctx context.Context, in Input) (*Output, error) {
	depth := in.Params.Depth
	if depth < 1 {
		depth = 1
	}

	call := newCaller(a.router, &in)
	query := in.Query
	accumulated := retrieval.Dedupe(in.Docs, nil)

	var (
		steps     []schema.QAStep
		fragments []string
		warnings  []string
	)

	for i := 1; i <= depth; i++ {
		if i > 1 {
			// Spend accumulates between iterations, so the ledger is
			// re-consulted before each one.
			in.Params = in.Budget.Degrade(schema.CommandAsk, in.Params)
			if in.Params.Depth >= 1 && in.Params.Depth < depth {
				depth = in.Params.Depth
			}
			if i > depth {
				break
			}
		}
		if !in.Budget.CanAfford(iterationTokenEstimate, iterationCentEstimate, 0) {
			warnings = append(warnings, fmt.Sprintf("budget low: stopped early at iteration %d", i-1))
			break
		}
		if ctx.Err() != nil {
			warnings = append(warnings, fmt.Sprintf("request cancelled at iteration %d", i-1))
			break
		}

		var (
			currentDocs []retrieval.Document
			reason      string
		)
		switch {
		case i == 1:
			currentDocs = accumulated
			reason = "initial retrieval"
		case !in.Params.SelfCheck:
			currentDocs = capDocs(accumulated, 10)
			reason = "refinement without self-check"
		default:
			sufficient, reformulated := a.selfCheck(ctx, call, query, fragments, len(accumulated), &warnings)
			if sufficient {
				currentDocs = capDocs(accumulated, 10)
				reason = "self-check and refinement"
			} else {
				if reformulated != "" {
					query = schema.Truncate(reformulated, 180)
				}
				currentDocs = a.deeperRetrieval(ctx, in, query, &accumulated, &warnings)
				reason = "query reformulated for deeper evidence"
			}
		}

		fragment, err := call.call(ctx, answerPrompt(query, in.Lang), capDocs(currentDocs, 10))
		if err != nil {
			if i == 1 {
				return nil, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				warnings = append(warnings, fmt.Sprintf("request cancelled at iteration %d", i-1))
			} else {
				warnings = append(warnings, fmt.Sprintf("model unavailable at iteration %d, keeping accumulated answer", i))
			}
			break
		}
		fragments = append(fragments, fragment)

		steps = append(steps, schema.QAStep{
			Iteration: i,
			Query:     schema.Truncate(query, 180),
			NDocs:     len(currentDocs),
			Reason:    schema.Truncate(reason, 200),
		})
	}

	if len(fragments) == 0 {
		return nil, errors.New("iterative agent produced no answer fragments")
	}

	answer := a.synthesize(ctx, call, in, fragments, &warnings)

	result := &schema.QAResult{
		Steps:     steps,
		Answer:    answer,
		FollowUps: followUps(answer, in.Lang, 5),
	}

	return &Output{
		Result:     result,
		Insights:   qaInsights(answer, accumulated),
		Summary:    answer,
		Confidence: clamp01(0.6 + 0.1*float64(len(steps))),
		Model:      call.model,
		Iterations: len(steps),
		Warnings:   warnings,
	}, nil
}

// selfCheck runs the sufficiency check. A failed call counts as sufficient
// so the loop keeps moving on whatever evidence it has.
func (a *IterativeAgent) selfCheck(ctx context.Context, call *caller, query string, fragments []string, nDocs int, warnings *[]string) (bool, string) {
	reply, err := call.call(ctx, selfCheckPrompt(query, strings.Join(fragments, " "), nDocs), nil)
	if err != nil {
		*warnings = append(*warnings, "self-check failed, continuing with current evidence")
		return true, ""
	}
	return parseSelfCheck(reply)
}

// deeperRetrieval fetches documents for the reformulated query and merges
// them into the accumulated pool, first seen wins. A retrieval failure falls
// back to the accumulated pool.
func (a *IterativeAgent) deeperRetrieval(ctx context.Context, in Input, query string, accumulated *[]retrieval.Document, warnings *[]string) []retrieval.Document {
	fetched, err := a.retrieve.Retrieve(ctx, retrieval.Query{
		Text:      query,
		Window:    in.Window,
		Lang:      in.Lang,
		KFinal:    5,
		UseRerank: in.Params.Rerank,
	})
	if err != nil {
		*warnings = append(*warnings, "deeper retrieval failed, reusing accumulated documents")
		return capDocs(*accumulated, 10)
	}
	*accumulated = retrieval.Dedupe(*accumulated, fetched)
	return fetched
}

// synthesize merges fragments into the final answer. On failure the
// fragments are concatenated and truncated.
func (a *IterativeAgent) synthesize(ctx context.Context, call *caller, in Input, fragments []string, warnings *[]string) string {
	if len(fragments) == 1 {
		return schema.Truncate(fragments[0], schema.MaxAnswerLen)
	}
	merged, err := call.call(ctx, synthesisPrompt(in.Query, fragments, in.Lang), nil)
	if err != nil {
		*warnings = append(*warnings, "synthesis failed, concatenating partial answers")
		return schema.Truncate(strings.Join(fragments, " "), schema.MaxAnswerLen)
	}
	return schema.Truncate(merged, schema.MaxAnswerLen)
}

// qaInsights derives envelope insights from the final answer and the top
// documents backing it.
func qaInsights(answer string, docs []retrieval.Document) []schema.Insight {
	refs := refsFor(docs, 3)
	if len(refs) == 0 {
		refs = []schema.EvidenceRef{{Date: refDate("")}}
	}
	insights := []schema.Insight{{
		Kind: schema.InsightFact,
		Text: schema.Truncate(answer, schema.MaxInsightTextLen),
		Refs: refs,
	}}
	if len(docs) > 1 {
		insights = append(insights, schema.Insight{
			Kind: schema.InsightHypothesis,
			Text: schema.Truncate(fmt.Sprintf("Coverage spans %d sources; cross-checking supports the main finding.", len(docs)), schema.MaxInsightTextLen),
			Refs: refsFor(docs, 2),
		})
	}
	return insights
}
