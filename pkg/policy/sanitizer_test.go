package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newslens/newslens/pkg/schema"
)

func testSanitizer() *Sanitizer {
	return NewSanitizer(NewDomainPolicy(
		[]string{"badnews.example"},
		[]string{"trusted.example"},
	))
}

func TestSanitizeDropsBlacklisted(t *testing.T) {
	s := testSanitizer()
	clean, _, warnings := s.Sanitize([]schema.Evidence{
		{Title: "ok", URL: "https://trusted.example/a", Date: "2026-08-01", Snippet: "fine"},
		{Title: "bad", URL: "https://badnews.example/b", Date: "2026-08-01", Snippet: "spam"},
	})
	require.Len(t, clean, 1)
	assert.Equal(t, "ok", clean[0].Title)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "blacklisted")
}

func TestSanitizeRedactsPII(t *testing.T) {
	s := testSanitizer()
	clean, _, warnings := s.Sanitize([]schema.Evidence{
		{
			Title:   "Reach editor@paper.example for comment",
			URL:     "https://trusted.example/a",
			Date:    "2026-08-01",
			Snippet: "Leaked list contains 4111-1111-1111-1111 entries.",
		},
	})
	require.Len(t, clean, 1)
	assert.Contains(t, clean[0].Title, "[REDACTED_EMAIL]")
	assert.NotContains(t, clean[0].Title, "editor@paper.example")
	assert.Contains(t, clean[0].Snippet, "[REDACTED_CARD]")
	assert.Len(t, warnings, 2)
}

func TestSanitizeConfidenceMultiplier(t *testing.T) {
	s := testSanitizer()

	// One whitelisted (1.0) and one unknown (0.7) source.
	_, mult, _ := s.Sanitize([]schema.Evidence{
		{Title: "a", URL: "https://trusted.example/a", Date: "2026-08-01", Snippet: "x"},
		{Title: "b", URL: "https://somewhere.example/b", Date: "2026-08-01", Snippet: "y"},
	})
	assert.InDelta(t, 0.85, mult, 1e-9)

	// Everything dropped.
	_, mult, _ = s.Sanitize([]schema.Evidence{
		{Title: "bad", URL: "https://badnews.example/b", Date: "2026-08-01", Snippet: "z"},
	})
	assert.Equal(t, 0.5, mult)

	// Empty input.
	_, mult, _ = s.Sanitize(nil)
	assert.Equal(t, 0.5, mult)
}

func TestSanitizeDoesNotMutateInput(t *testing.T) {
	s := testSanitizer()
	in := []schema.Evidence{
		{Title: "Reach editor@paper.example", URL: "https://trusted.example/a", Date: "2026-08-01", Snippet: "x"},
	}
	_, _, _ = s.Sanitize(in)
	assert.Contains(t, in[0].Title, "editor@paper.example")
}

func TestApplyConfidenceClamps(t *testing.T) {
	assert.InDelta(t, 0.56, ApplyConfidence(0.8, 0.7), 1e-9)
	assert.Equal(t, 1.0, ApplyConfidence(1.5, 1.0))
	assert.Equal(t, 0.0, ApplyConfidence(-0.2, 0.5))
}
