package schema

import "unicode/utf8"

// Truncate caps s at max characters (runes), keeping a prefix.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Builder assembles a Response. All text setters truncate at the type caps
// so a well-formed envelope comes out even from over-long agent output;
// the policy validator still runs afterwards as the hard gate.
type Builder struct {
	resp Response
}

// NewBuilder starts a response for one request.
func NewBuilder(correlationID, model, version string) *Builder {
	return &Builder{resp: Response{
		Meta: Meta{
			Confidence:    1.0,
			Model:         model,
			Version:       version,
			CorrelationID: correlationID,
		},
		Warnings: []string{},
	}}
}

func (b *Builder) Header(s string) *Builder {
	b.resp.Header = Truncate(s, MaxHeaderLen)
	return b
}

func (b *Builder) TLDR(s string) *Builder {
	b.resp.TLDR = Truncate(s, MaxTLDRLen)
	return b
}

// Insight appends one insight, capped at MaxInsights (extras are dropped).
func (b *Builder) Insight(kind InsightKind, text string, refs ...EvidenceRef) *Builder {
	if len(b.resp.Insights) >= MaxInsights {
		return b
	}
	b.resp.Insights = append(b.resp.Insights, Insight{
		Kind: kind,
		Text: Truncate(text, MaxInsightTextLen),
		Refs: refs,
	})
	return b
}

func (b *Builder) Evidence(e Evidence) *Builder {
	e.Title = Truncate(e.Title, MaxEvidenceTitle)
	e.Snippet = Truncate(e.Snippet, MaxSnippetLen)
	b.resp.Evidence = append(b.resp.Evidence, e)
	return b
}

func (b *Builder) Result(r Result) *Builder {
	b.resp.Result = NewResult(r)
	return b
}

// Confidence sets meta confidence, clamped to [0, 1].
func (b *Builder) Confidence(c float64) *Builder {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	b.resp.Meta.Confidence = c
	return b
}

func (b *Builder) Experiment(experimentID, armID string) *Builder {
	b.resp.Meta.Experiment = experimentID
	b.resp.Meta.Arm = armID
	return b
}

func (b *Builder) Iterations(n int) *Builder {
	b.resp.Meta.Iterations = n
	return b
}

func (b *Builder) Warn(msg string) *Builder {
	b.resp.Warnings = append(b.resp.Warnings, msg)
	return b
}

func (b *Builder) Warnings(msgs []string) *Builder {
	b.resp.Warnings = append(b.resp.Warnings, msgs...)
	return b
}

// Build returns the assembled envelope.
func (b *Builder) Build() *Response {
	resp := b.resp
	return &resp
}
