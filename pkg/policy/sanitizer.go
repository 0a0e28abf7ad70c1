package policy

import (
	"fmt"

	"github.com/newslens/newslens/pkg/schema"
)

// Sanitizer cleans the evidence list before validation: blacklisted entries
// are dropped, PII in titles and snippets is replaced with tagged
// placeholders, and a confidence multiplier is derived from per-source trust.
type Sanitizer struct {
	domains *DomainPolicy
}

// NewSanitizer builds a sanitizer over the given domain policy.
func NewSanitizer(domains *DomainPolicy) *Sanitizer {
	return &Sanitizer{domains: domains}
}

// Sanitize returns the cleaned evidence list, the confidence multiplier, and
// warnings describing what was dropped or redacted. The multiplier averages
// per-URL trust scores over the surviving entries; with no evidence left it
// is 0.5. The input slice is not modified.
func (s *Sanitizer) Sanitize(evidence []schema.Evidence) ([]schema.Evidence, float64, []string) {
	clean := make([]schema.Evidence, 0, len(evidence))
	var warnings []string

	for _, ev := range evidence {
		if ev.URL != "" && s.domains.Blacklisted(ev.URL) {
			warnings = append(warnings, fmt.Sprintf("evidence from blacklisted domain dropped: %s", ev.URL))
			continue
		}
		if redacted, fired := RedactPII(ev.Title); len(fired) > 0 {
			ev.Title = redacted
			warnings = append(warnings, fmt.Sprintf("pii redacted in evidence title (%v)", fired))
		}
		if redacted, fired := RedactPII(ev.Snippet); len(fired) > 0 {
			ev.Snippet = redacted
			warnings = append(warnings, fmt.Sprintf("pii redacted in evidence snippet (%v)", fired))
		}
		clean = append(clean, ev)
	}

	if len(clean) == 0 {
		return clean, 0.5, warnings
	}

	var total float64
	for _, ev := range clean {
		total += s.domains.TrustScore(ev.URL)
	}
	return clean, total / float64(len(clean)), warnings
}

// ApplyConfidence multiplies a confidence value by the sanitizer multiplier,
// clamped to [0, 1].
func ApplyConfidence(confidence, multiplier float64) float64 {
	out := confidence * multiplier
	if out < 0 {
		return 0
	}
	if out > 1 {
		return 1
	}
	return out
}
