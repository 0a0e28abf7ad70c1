package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/newslens/newslens/pkg/agent"
	"github.com/newslens/newslens/pkg/schema"
)

// fanout runs independent agents concurrently on the same input and awaits
// all of them. Outputs come back in agent order; failed slots are nil.
type fanoutResult struct {
	idx int
	out *agent.Output
	err error
}

func runParallel(ctx context.Context, agents []agent.Agent, in agent.Input) ([]*agent.Output, []error) {
	results := make(chan fanoutResult, len(agents))
	for i, a := range agents {
		go func(idx int, a agent.Agent) {
			out, err := a.Run(ctx, in)
			results <- fanoutResult{idx: idx, out: out, err: err}
		}(i, a)
	}

	outs := make([]*agent.Output, len(agents))
	errs := make([]error, len(agents))
	for range agents {
		r := <-results
		outs[r.idx] = r.out
		errs[r.idx] = r.err
	}
	return outs, errs
}

// runTrendsFanout serves /trends and /dashboard: forecast, competitor, and
// event analysis run concurrently over the same documents. The forecast
// output anchors the envelope; insights and warnings merge across all three.
func (o *Orchestrator) runTrendsFanout(ctx context.Context, in agent.Input) (*agent.Output, error) {
	names := []string{"forecast", "competitors", "events"}
	agents := []agent.Agent{
		o.agents[schema.CommandPredict],
		o.agents[schema.CommandCompetitors],
		o.agents[schema.CommandEvents],
	}
	outs, errs := runParallel(ctx, agents, in)

	var primary *agent.Output
	var warnings []string
	for i, out := range outs {
		if errs[i] != nil {
			warnings = append(warnings, fmt.Sprintf("%s analysis failed: %v", names[i], errs[i]))
			continue
		}
		if primary == nil {
			primary = out
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("all trend analyses failed: %w", errors.Join(errs...))
	}

	combined := &agent.Output{
		Result:     primary.Result,
		Summary:    primary.Summary,
		Model:      primary.Model,
		Warnings:   append(warnings, primary.Warnings...),
		Confidence: 0,
	}
	var n int
	for _, out := range outs {
		if out == nil {
			continue
		}
		combined.Confidence += out.Confidence
		n++
		for _, insight := range out.Insights {
			if len(combined.Insights) < schema.MaxInsights {
				combined.Insights = append(combined.Insights, insight)
			}
		}
		if out != primary {
			combined.Warnings = append(combined.Warnings, out.Warnings...)
		}
	}
	combined.Confidence /= float64(n)
	return combined, nil
}

// runAnalyzeFanout serves /analyze: one agent per enabled mode, concurrent,
// merged into a single stepped result.
func (o *Orchestrator) runAnalyzeFanout(ctx context.Context, in agent.Input) (*agent.Output, error) {
	agents := make([]agent.Agent, len(o.analyze))
	for i, a := range o.analyze {
		agents[i] = a
	}
	outs, errs := runParallel(ctx, agents, in)

	result := &schema.QAResult{}
	combined := &agent.Output{Model: in.Primary}
	var summaries []string
	var n int
	for i, out := range outs {
		if errs[i] != nil {
			combined.Warnings = append(combined.Warnings,
				fmt.Sprintf("%s analysis failed: %v", o.analyze[i].Mode(), errs[i]))
			continue
		}
		qa, ok := out.Result.(*schema.QAResult)
		if !ok {
			continue
		}
		for _, step := range qa.Steps {
			step.Iteration = len(result.Steps) + 1
			result.Steps = append(result.Steps, step)
		}
		summaries = append(summaries, out.Summary)
		combined.Confidence += out.Confidence
		combined.Warnings = append(combined.Warnings, out.Warnings...)
		for _, insight := range out.Insights {
			if len(combined.Insights) < schema.MaxInsights {
				combined.Insights = append(combined.Insights, insight)
			}
		}
		n++
	}
	if n == 0 {
		return nil, fmt.Errorf("all analyze modes failed: %w", errors.Join(errs...))
	}

	result.Answer = schema.Truncate(strings.Join(summaries, " "), schema.MaxAnswerLen)
	combined.Result = result
	combined.Summary = result.Answer
	combined.Confidence /= float64(n)
	return combined, nil
}
