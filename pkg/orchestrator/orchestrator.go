// Package orchestrator is the per-command entry point: it sequences
// experiment overlay, retrieval, agent execution, envelope assembly,
// evidence sanitization, and policy validation, converting every fault into
// the closed error-envelope taxonomy. It never panics across its boundary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newslens/newslens/pkg/agent"
	"github.com/newslens/newslens/pkg/budget"
	"github.com/newslens/newslens/pkg/config"
	"github.com/newslens/newslens/pkg/experiment"
	"github.com/newslens/newslens/pkg/llm"
	"github.com/newslens/newslens/pkg/metrics"
	"github.com/newslens/newslens/pkg/policy"
	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

// Request is one command invocation as the orchestrator sees it.
type Request struct {
	Command         schema.Command         `json:"command"`
	Query           string                 `json:"query"`
	UserID          string                 `json:"user_id,omitempty"`
	Lang            string                 `json:"lang,omitempty"`
	Window          string                 `json:"window,omitempty"`
	Depth           int                    `json:"depth,omitempty"`
	Sources         []string               `json:"sources,omitempty"`
	ExperimentID    string                 `json:"experiment_id,omitempty"`
	CorrelationID   string                 `json:"correlation_id,omitempty"`
	MemoryOperation schema.MemoryOperation `json:"memory_operation,omitempty"`
	AgentOutputs    []string               `json:"agent_outputs,omitempty"`
}

// Deps are the injected collaborators. Tests supply fakes through these.
type Deps struct {
	Router      *llm.Router
	Retrieval   retrieval.Client
	Experiments *experiment.Router
	Validator   *policy.Validator
	Sanitizer   *policy.Sanitizer
	Memory      agent.MemoryService
	Metrics     *metrics.Metrics
}

// ExperimentMetricStore persists per-arm metric observations append-only.
// The in-memory experiment router stays authoritative; the store is the
// durable history behind it.
type ExperimentMetricStore interface {
	AppendMetric(ctx context.Context, experimentID, armID string, rec experiment.MetricRecord) error
}

// Orchestrator executes commands end to end. One instance serves all
// requests; per-request state lives in the budget ledger and envelope.
type Orchestrator struct {
	cfg     *config.Config
	deps    Deps
	version string

	agents      map[schema.Command]agent.Agent
	analyze     []*agent.AnalyzeAgent
	metricStore ExperimentMetricStore
}

// Option adjusts an Orchestrator after the default agents are wired.
type Option func(*Orchestrator)

// WithAgent replaces the agent serving one command (tests inject fakes).
func WithAgent(cmd schema.Command, a agent.Agent) Option {
	return func(o *Orchestrator) { o.agents[cmd] = a }
}

// New wires the default agent set over the injected dependencies.
func New(cfg *config.Config, deps Deps, version string, opts ...Option) *Orchestrator {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}

	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		version: version,
		agents: map[schema.Command]agent.Agent{
			schema.CommandAsk:         agent.NewIterativeAgent(deps.Router, deps.Retrieval),
			schema.CommandEvents:      agent.NewEventsAgent(deps.Router),
			schema.CommandGraph:       agent.NewGraphAgent(deps.Router),
			schema.CommandMemory:      agent.NewMemoryAgent(deps.Memory),
			schema.CommandSynthesize:  agent.NewSynthesisAgent(deps.Router),
			schema.CommandReports:     agent.NewSynthesisAgent(deps.Router),
			schema.CommandPredict:     agent.NewForecastAgent(deps.Router),
			schema.CommandCompetitors: agent.NewCompetitorAgent(),
		},
	}
	for _, mode := range cfg.Features.AnalyzeModes() {
		o.analyze = append(o.analyze, agent.NewAnalyzeAgent(mode))
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetMetricStore attaches durable experiment-metric persistence.
func (o *Orchestrator) SetMetricStore(s ExperimentMetricStore) {
	o.metricStore = s
}

// Execute runs one command to completion. It returns either a validated
// success envelope or an error envelope, never both and never a panic.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (resp *schema.Response, errResp *schema.ErrorResponse) {
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	start := time.Now()
	log := slog.With("command", req.Command, "correlation_id", correlationID)

	meta := schema.Meta{
		Model:         o.cfg.Models.Primary,
		Version:       o.version,
		CorrelationID: correlationID,
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic during command execution", "panic", r)
			o.deps.Metrics.RecordError(ctx, string(req.Command), "panic")
			resp = nil
			errResp = schema.NewError(schema.ErrInternal,
				"Something went wrong while processing the command.",
				fmt.Sprintf("panic: %v", r), meta)
		}
	}()

	o.deps.Metrics.RecordStart(ctx, string(req.Command))

	if !o.commandEnabled(req.Command) {
		o.deps.Metrics.RecordError(ctx, string(req.Command), "feature_disabled")
		e := schema.NewError(schema.ErrInternal,
			"This feature is currently disabled.",
			fmt.Sprintf("command %s is disabled by configuration", req.Command), meta)
		e.Retryable = false
		return nil, e
	}

	merged, assignment, err := o.deps.Experiments.ArmConfigOverride(
		string(req.Command), o.baseConfig(req), req.UserID, req.ExperimentID)
	if err != nil {
		o.deps.Metrics.RecordError(ctx, string(req.Command), "experiment")
		return nil, schema.NewError(schema.ErrInternal,
			"Something went wrong while processing the command.",
			fmt.Sprintf("experiment assignment: %v", err), meta)
	}
	if assignment != nil {
		meta.Experiment = assignment.ExperimentID
		meta.Arm = assignment.ArmID
		log = log.With("experiment", assignment.ExperimentID, "arm", assignment.ArmID)
	}

	params, models := resolveParams(merged)
	bm := budget.NewManager(budget.Caps{
		MaxTokens:  o.cfg.Budget.MaxTokens,
		MaxCents:   o.cfg.Budget.MaxCents,
		MaxSeconds: o.cfg.Budget.TimeoutSeconds,
	})

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.Budget.TimeoutSeconds*float64(time.Second)))
	defer cancel()

	window := req.Window
	if window == "" {
		window = o.cfg.Retrieval.Window
	}
	lang := req.Lang
	if lang == "" {
		lang = "en"
	}

	docs, err := o.deps.Retrieval.Retrieve(reqCtx, retrieval.Query{
		Text:      req.Query,
		Window:    window,
		Lang:      lang,
		KFinal:    params.KFinal,
		UseRerank: params.Rerank,
		Sources:   req.Sources,
	})
	if err != nil {
		log.Warn("Retrieval failed", "error", err)
		o.deps.Metrics.RecordError(ctx, string(req.Command), "retrieval")
		return nil, schema.NewError(schema.ErrInternal,
			"Document retrieval is currently unavailable.",
			fmt.Sprintf("retrieval: %v", err), meta)
	}
	if len(docs) == 0 && requiresDocs(req.Command, params.MemoryOperation) {
		o.deps.Metrics.RecordError(ctx, string(req.Command), "no_data")
		return nil, schema.NewError(schema.ErrNoData,
			"No matching documents were found for the query.",
			fmt.Sprintf("retrieval returned zero documents for %s", req.Command), meta)
	}

	params = bm.Degrade(req.Command, params)

	in := agent.Input{
		Query:           req.Query,
		Docs:            docs,
		Budget:          bm,
		Lang:            lang,
		Window:          window,
		UserID:          req.UserID,
		Params:          params,
		Primary:         models.primary,
		Fallbacks:       models.fallbacks,
		CallTimeout:     o.cfg.Models.CallTimeout,
		MaxOutputTokens: o.cfg.Models.MaxOutputTokens,
		Temperature:     models.temperature,
		AgentOutputs:    req.AgentOutputs,
	}
	meta.Model = models.primary

	out, err := o.dispatch(reqCtx, req, in)
	if err != nil {
		return nil, o.classify(ctx, req, err, meta)
	}
	if err := bm.CheckExceeded(); err != nil {
		o.deps.Metrics.RecordError(ctx, string(req.Command), "budget_exceeded")
		return nil, schema.NewError(schema.ErrBudgetExceeded,
			"The request exceeded its resource budget.",
			err.Error(), meta)
	}

	resp = o.buildEnvelope(correlationID, req, out, docs, bm, meta)

	if ok, msg := o.deps.Validator.Validate(resp); !ok {
		log.Warn("Response failed policy validation", "violation", msg)
		o.deps.Metrics.RecordError(ctx, string(req.Command), "validation")
		return nil, schema.NewError(schema.ErrValidationFailed,
			"The generated response did not pass safety validation.",
			msg, resp.Meta)
	}
	if ok, msg := o.deps.Validator.ValidateResultShape(resp.Result.V); !ok {
		log.Warn("Result failed shape validation", "violation", msg)
		o.deps.Metrics.RecordError(ctx, string(req.Command), "validation")
		return nil, schema.NewError(schema.ErrValidationFailed,
			"The generated response did not pass safety validation.",
			msg, resp.Meta)
	}

	elapsedMS := float64(time.Since(start).Milliseconds())
	o.deps.Metrics.RecordSuccess(ctx, string(req.Command), elapsedMS, len(resp.Evidence), len(docs))
	o.recordExperimentMetrics(ctx, assignment, bm, elapsedMS)

	log.Info("Command completed",
		"elapsed_ms", elapsedMS, "docs", len(docs),
		"evidence", len(resp.Evidence), "model", resp.Meta.Model)
	return resp, nil
}

// commandEnabled folds the /analyze mode gates into the per-command flag:
// with every mode disabled the command has nothing to run.
func (o *Orchestrator) commandEnabled(cmd schema.Command) bool {
	if !o.cfg.Features.CommandEnabled(cmd) {
		return false
	}
	if cmd == schema.CommandAnalyze && len(o.analyze) == 0 {
		return false
	}
	return true
}

// requiresDocs reports whether zero retrieved documents is a NO_DATA
// condition for the command. Memory store and recall work without documents.
func requiresDocs(cmd schema.Command, op schema.MemoryOperation) bool {
	if cmd == schema.CommandMemory && (op == schema.MemoryStore || op == schema.MemoryRecall) {
		return false
	}
	return true
}

func (o *Orchestrator) dispatch(ctx context.Context, req Request, in agent.Input) (*agent.Output, error) {
	switch req.Command {
	case schema.CommandTrends, schema.CommandDashboard:
		return o.runTrendsFanout(ctx, in)
	case schema.CommandAnalyze:
		return o.runAnalyzeFanout(ctx, in)
	case schema.CommandReports:
		// Reports synthesize the document set itself when the caller
		// supplied no upstream agent outputs.
		if len(in.AgentOutputs) == 0 {
			for _, doc := range in.Docs {
				in.AgentOutputs = append(in.AgentOutputs, doc.Title+": "+doc.Snippet)
			}
		}
	}

	a, ok := o.agents[req.Command]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", req.Command)
	}
	return a.Run(ctx, in)
}

// classify converts an agent failure into the error taxonomy.
func (o *Orchestrator) classify(ctx context.Context, req Request, err error, meta schema.Meta) *schema.ErrorResponse {
	var unavailable *llm.UnavailableError
	if errors.As(err, &unavailable) {
		o.deps.Metrics.RecordError(ctx, string(req.Command), "model_unavailable")
		return schema.NewError(schema.ErrModelUnavailable,
			"All language models are currently unavailable.",
			err.Error(), meta)
	}
	if errors.Is(err, budget.ErrExceeded) {
		o.deps.Metrics.RecordError(ctx, string(req.Command), "budget_exceeded")
		return schema.NewError(schema.ErrBudgetExceeded,
			"The request exceeded its resource budget.",
			err.Error(), meta)
	}
	o.deps.Metrics.RecordError(ctx, string(req.Command), "internal")
	return schema.NewError(schema.ErrInternal,
		"Something went wrong while processing the command.",
		err.Error(), meta)
}

// buildEnvelope assembles, sanitizes, and finalizes the success envelope.
func (o *Orchestrator) buildEnvelope(correlationID string, req Request, out *agent.Output, docs []retrieval.Document, bm *budget.Manager, meta schema.Meta) *schema.Response {
	model := out.Model
	if model == "" {
		model = o.cfg.Models.Primary
	}

	summary := out.Summary
	if summary == "" {
		summary = fmt.Sprintf("%s completed over %d documents.",
			strings.TrimPrefix(string(req.Command), "/"), len(docs))
	}

	evidence := agent.EvidenceFromDocs(docs, 5)
	if len(evidence) == 0 {
		// Memory operations may legitimately run without documents; the
		// envelope still requires at least one evidence entry.
		evidence = []schema.Evidence{{
			Title:   "Long-term memory",
			Date:    time.Now().UTC().Format("2006-01-02"),
			Snippet: schema.Truncate(summary, schema.MaxSnippetLen),
		}}
	}
	clean, multiplier, sanitizeWarnings := o.deps.Sanitizer.Sanitize(evidence)

	b := schema.NewBuilder(correlationID, model, o.version).
		Header(headerFor(req)).
		TLDR(summary).
		Result(out.Result).
		Confidence(policy.ApplyConfidence(out.Confidence, multiplier)).
		Warnings(out.Warnings).
		Warnings(bm.Warnings()).
		Warnings(sanitizeWarnings)

	for _, insight := range out.Insights {
		b.Insight(insight.Kind, insight.Text, insight.Refs...)
	}
	for _, ev := range clean {
		b.Evidence(ev)
	}
	if meta.Experiment != "" {
		b.Experiment(meta.Experiment, meta.Arm)
	}
	if out.Iterations > 0 {
		b.Iterations(out.Iterations)
	}
	return b.Build()
}

func headerFor(req Request) string {
	name := strings.TrimPrefix(string(req.Command), "/")
	if req.Query == "" {
		return schema.Truncate(strings.ToUpper(name[:1])+name[1:]+" results", schema.MaxHeaderLen)
	}
	return schema.Truncate(fmt.Sprintf("%s: %s", strings.ToUpper(name[:1])+name[1:], req.Query), schema.MaxHeaderLen)
}

// recordExperimentMetrics appends per-arm observations after a success, to
// the in-memory router and, when configured, to the durable store. Recording
// failures are logged and otherwise ignored.
func (o *Orchestrator) recordExperimentMetrics(ctx context.Context, assignment *experiment.Assignment, bm *budget.Manager, elapsedMS float64) {
	if assignment == nil {
		return
	}
	tokens, cents, _ := bm.Spent()
	for name, value := range map[string]any{
		"latency_ms": elapsedMS,
		"tokens":     tokens,
		"cost_cents": cents,
	} {
		if err := o.deps.Experiments.Record(assignment.ExperimentID, assignment.ArmID, name, value, nil); err != nil {
			slog.Warn("Failed to record experiment metric",
				"experiment", assignment.ExperimentID, "arm", assignment.ArmID,
				"metric", name, "error", err)
			continue
		}
		if o.metricStore == nil {
			continue
		}
		rec := experiment.MetricRecord{Name: name, Value: value, Timestamp: time.Now().UTC()}
		if err := o.metricStore.AppendMetric(ctx, assignment.ExperimentID, assignment.ArmID, rec); err != nil {
			slog.Warn("Failed to persist experiment metric",
				"experiment", assignment.ExperimentID, "arm", assignment.ArmID,
				"metric", name, "error", err)
		}
	}
}
