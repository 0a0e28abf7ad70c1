package policy

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/newslens/newslens/pkg/schema"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validator enforces the response policy: length caps, evidence coverage,
// PII absence, domain safety, and required fields. Created once at startup;
// stateless after construction and safe for concurrent use.
type Validator struct {
	domains *DomainPolicy
}

// NewValidator builds a validator over the given domain policy.
func NewValidator(domains *DomainPolicy) *Validator {
	slog.Info("Policy validator initialized",
		"pii_patterns", len(piiPatterns))
	return &Validator{domains: domains}
}

// Validate checks a complete success envelope. It fails fast: the first
// violated rule is reported and the rest are not evaluated. Validation is
// read-only, so validating the same envelope twice returns the same result.
func (v *Validator) Validate(resp *schema.Response) (bool, string) {
	if resp == nil {
		return false, "response is nil"
	}

	// 1. Lengths.
	if n := utf8.RuneCountInString(resp.Header); n > schema.MaxHeaderLen {
		return false, fmt.Sprintf("header length %d exceeds %d", n, schema.MaxHeaderLen)
	}
	if n := utf8.RuneCountInString(resp.TLDR); n > schema.MaxTLDRLen {
		return false, fmt.Sprintf("tldr length %d exceeds %d", n, schema.MaxTLDRLen)
	}
	if len(resp.Insights) < schema.MinInsights || len(resp.Insights) > schema.MaxInsights {
		return false, fmt.Sprintf("insight count %d outside [%d, %d]",
			len(resp.Insights), schema.MinInsights, schema.MaxInsights)
	}
	for i, insight := range resp.Insights {
		if n := utf8.RuneCountInString(insight.Text); n > schema.MaxInsightTextLen {
			return false, fmt.Sprintf("insight %d text length %d exceeds %d", i, n, schema.MaxInsightTextLen)
		}
	}
	for i, ev := range resp.Evidence {
		if n := utf8.RuneCountInString(ev.Title); n > schema.MaxEvidenceTitle {
			return false, fmt.Sprintf("evidence %d title length %d exceeds %d", i, n, schema.MaxEvidenceTitle)
		}
		if n := utf8.RuneCountInString(ev.Snippet); n > schema.MaxSnippetLen {
			return false, fmt.Sprintf("evidence %d snippet length %d exceeds %d", i, n, schema.MaxSnippetLen)
		}
	}

	// 2. Evidence required.
	for i, insight := range resp.Insights {
		if len(insight.Refs) == 0 {
			return false, fmt.Sprintf("insight %d has no evidence refs", i)
		}
		for j, ref := range insight.Refs {
			if !dateRe.MatchString(ref.Date) {
				return false, fmt.Sprintf("insight %d ref %d date %q is not YYYY-MM-DD", i, j, ref.Date)
			}
		}
	}
	for i, ev := range resp.Evidence {
		if !dateRe.MatchString(ev.Date) {
			return false, fmt.Sprintf("evidence %d date %q is not YYYY-MM-DD", i, ev.Date)
		}
	}

	// 3. PII.
	if name := DetectPII(resp.TLDR); name != "" {
		return false, "pii pattern " + name + " matched in tldr"
	}
	for i, insight := range resp.Insights {
		if name := DetectPII(insight.Text); name != "" {
			return false, fmt.Sprintf("pii pattern %s matched in insight %d", name, i)
		}
	}
	for i, ev := range resp.Evidence {
		if name := DetectPII(ev.Snippet); name != "" {
			return false, fmt.Sprintf("pii pattern %s matched in evidence %d snippet", name, i)
		}
	}

	// 4. Domain safety.
	for i, ev := range resp.Evidence {
		if ev.URL == "" {
			continue
		}
		if !strings.HasPrefix(ev.URL, "http://") && !strings.HasPrefix(ev.URL, "https://") {
			return false, fmt.Sprintf("evidence %d url %q is not http(s)", i, ev.URL)
		}
		if v.domains.Blacklisted(ev.URL) {
			return false, fmt.Sprintf("evidence %d url %q is from a blacklisted domain", i, ev.URL)
		}
	}

	// 5. Required fields.
	switch {
	case resp.Header == "":
		return false, "header is empty"
	case resp.TLDR == "":
		return false, "tldr is empty"
	case len(resp.Evidence) == 0:
		return false, "evidence list is empty"
	case resp.Result.V == nil:
		return false, "result is missing"
	case resp.Meta.Model == "":
		return false, "meta.model is empty"
	case resp.Meta.CorrelationID == "":
		return false, "meta.correlation_id is empty"
	}

	return true, ""
}

// ValidateResultShape checks the command-specific invariants of a result
// variant. Dispatch is on the family tag.
func (v *Validator) ValidateResultShape(r schema.Result) (bool, string) {
	switch res := r.(type) {
	case *schema.QAResult:
		return validateQA(res)
	case *schema.EventsResult:
		return validateEvents(res)
	case *schema.GraphResult:
		return validateGraph(res)
	case *schema.MemoryResult:
		return validateMemory(res)
	case *schema.SynthesisResult:
		return validateSynthesis(res)
	case *schema.ForecastResult:
		return validateForecast(res)
	case *schema.CompetitorsResult:
		return validateCompetitors(res)
	case nil:
		return false, "result is nil"
	default:
		return false, fmt.Sprintf("unknown result family %q", r.Family())
	}
}

func validateQA(r *schema.QAResult) (bool, string) {
	if r.Answer == "" {
		return false, "qa answer is empty"
	}
	if n := utf8.RuneCountInString(r.Answer); n > schema.MaxAnswerLen {
		return false, fmt.Sprintf("qa answer length %d exceeds %d", n, schema.MaxAnswerLen)
	}
	for i, step := range r.Steps {
		if step.Iteration < 1 {
			return false, fmt.Sprintf("qa step %d has iteration %d", i, step.Iteration)
		}
		if step.NDocs < 0 {
			return false, fmt.Sprintf("qa step %d has negative n_docs", i)
		}
	}
	return true, ""
}

func validateEvents(r *schema.EventsResult) (bool, string) {
	for i, rel := range r.Timeline {
		switch rel.Position {
		case schema.PositionBefore, schema.PositionOverlap, schema.PositionAfter:
		default:
			return false, fmt.Sprintf("timeline relation %d has invalid position %q", i, rel.Position)
		}
	}
	for i, link := range r.CausalLinks {
		if link.Confidence < 0 || link.Confidence > 1 {
			return false, fmt.Sprintf("causal link %d confidence %v outside [0, 1]", i, link.Confidence)
		}
	}
	return true, ""
}

func validateGraph(r *schema.GraphResult) (bool, string) {
	for i, node := range r.Nodes {
		switch node.Type {
		case schema.NodeTopic, schema.NodeArticle, schema.NodeEntity:
		default:
			return false, fmt.Sprintf("graph node %d has invalid type %q", i, node.Type)
		}
	}
	for i, edge := range r.Edges {
		if edge.Weight < 0 || edge.Weight > 1 {
			return false, fmt.Sprintf("graph edge %d weight %v outside [0, 1]", i, edge.Weight)
		}
	}
	return true, ""
}

func validateMemory(r *schema.MemoryResult) (bool, string) {
	switch r.Operation {
	case schema.MemorySuggest, schema.MemoryStore, schema.MemoryRecall:
		return true, ""
	default:
		return false, fmt.Sprintf("memory operation %q is invalid", r.Operation)
	}
}

func validateSynthesis(r *schema.SynthesisResult) (bool, string) {
	if n := utf8.RuneCountInString(r.Summary); n > schema.MaxSummaryLen {
		return false, fmt.Sprintf("synthesis summary length %d exceeds %d", n, schema.MaxSummaryLen)
	}
	if len(r.Actions) == 0 {
		return false, "synthesis actions are empty"
	}
	for i, action := range r.Actions {
		switch action.Impact {
		case schema.ImpactLow, schema.ImpactMedium, schema.ImpactHigh:
		default:
			return false, fmt.Sprintf("action %d has invalid impact %q", i, action.Impact)
		}
		if len(action.EvidenceRefs) == 0 {
			return false, fmt.Sprintf("action %d has no evidence refs", i)
		}
	}
	for i, conflict := range r.Conflicts {
		if len(conflict.EvidenceRefs) < 2 {
			return false, fmt.Sprintf("conflict %d has fewer than 2 evidence refs", i)
		}
	}
	return true, ""
}

func validateForecast(r *schema.ForecastResult) (bool, string) {
	for i, item := range r.Items {
		switch item.Direction {
		case schema.DirectionUp, schema.DirectionDown, schema.DirectionFlat:
		default:
			return false, fmt.Sprintf("forecast item %d has invalid direction %q", i, item.Direction)
		}
		if item.ConfidenceInterval.Lower > item.ConfidenceInterval.Upper {
			return false, fmt.Sprintf("forecast item %d has inverted confidence interval", i)
		}
		if len(item.Drivers) == 0 {
			return false, fmt.Sprintf("forecast item %d has no drivers", i)
		}
		for j, driver := range item.Drivers {
			if len(driver.Evidence) == 0 {
				return false, fmt.Sprintf("forecast item %d driver %d has no evidence", i, j)
			}
		}
	}
	return true, ""
}

func validateCompetitors(r *schema.CompetitorsResult) (bool, string) {
	for i, pos := range r.Positioning {
		switch pos.Stance {
		case schema.StanceLeader, schema.StanceFastFollower, schema.StanceNiche:
		default:
			return false, fmt.Sprintf("positioning entry %d has invalid stance %q", i, pos.Stance)
		}
	}
	if len(r.Positioning) > 0 && len(r.TopDomains) == 0 {
		return false, "top_domains is empty while positioning is present"
	}
	return true, ""
}
