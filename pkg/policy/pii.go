package policy

import "regexp"

// CompiledPattern holds a pre-compiled PII regex with its redaction placeholder.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Placeholder string
}

// piiPatterns is the closed pattern set applied to every user-visible text
// field. Order matters for redaction: the more specific patterns run first so
// a credit card is not half-eaten by the phone pattern.
var piiPatterns = []*CompiledPattern{
	{
		Name:        "email",
		Regex:       regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		Placeholder: "[REDACTED_EMAIL]",
	},
	{
		Name:        "credit_card",
		Regex:       regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`),
		Placeholder: "[REDACTED_CARD]",
	},
	{
		Name:        "ssn",
		Regex:       regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Placeholder: "[REDACTED_SSN]",
	},
	{
		Name:        "ipv4",
		Regex:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		Placeholder: "[REDACTED_IP]",
	},
	{
		Name:        "phone",
		Regex:       regexp.MustCompile(`(?:\+\d{1,2}[-. ]?)?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`),
		Placeholder: "[REDACTED_PHONE]",
	},
	{
		Name:        "passport",
		Regex:       regexp.MustCompile(`\b[A-Z]{1,2}\d{6,9}\b`),
		Placeholder: "[REDACTED_PASSPORT]",
	},
}

// DetectPII returns the name of the first matching PII pattern, or "" when
// the text is clean.
func DetectPII(text string) string {
	if text == "" {
		return ""
	}
	for _, p := range piiPatterns {
		if p.Regex.MatchString(text) {
			return p.Name
		}
	}
	return ""
}

// RedactPII replaces every PII match with its tagged placeholder and reports
// the names of the patterns that fired.
func RedactPII(text string) (string, []string) {
	if text == "" {
		return text, nil
	}
	var fired []string
	for _, p := range piiPatterns {
		if !p.Regex.MatchString(text) {
			continue
		}
		text = p.Regex.ReplaceAllString(text, p.Placeholder)
		fired = append(fired, p.Name)
	}
	return text, fired
}
