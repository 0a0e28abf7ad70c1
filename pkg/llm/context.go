package llm

import (
	"fmt"
	"strings"

	"github.com/newslens/newslens/pkg/retrieval"
	"github.com/newslens/newslens/pkg/schema"
)

const (
	maxContextDocs    = 10
	maxContextSnippet = 200
)

// BuildContext renders a compact textual context block from up to 10
// documents. The output is deterministic and preserves input order:
//
//	[1] Title / 2026-08-01 / https://… / snippet
func BuildContext(docs []retrieval.Document) string {
	if len(docs) == 0 {
		return ""
	}
	if len(docs) > maxContextDocs {
		docs = docs[:maxContextDocs]
	}

	var b strings.Builder
	for i, d := range docs {
		snippet := schema.Truncate(strings.TrimSpace(d.Snippet), maxContextSnippet)
		fmt.Fprintf(&b, "[%d] %s / %s / %s / %s\n", i+1, d.Title, d.Date, d.URL, snippet)
	}
	return b.String()
}
