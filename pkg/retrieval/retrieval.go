// Package retrieval defines the narrow interface to the external document
// retrieval service, an HTTP implementation, and an optional Redis
// read-through cache.
package retrieval

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the retrieval backend could not be reached.
var ErrUnavailable = errors.New("retrieval service unavailable")

// Document is one retrieved news article as the engine sees it.
type Document struct {
	ArticleID string  `json:"article_id"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Date      string  `json:"date"` // YYYY-MM-DD
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

// Query describes one retrieval invocation.
type Query struct {
	Text      string   `json:"query"`
	Window    string   `json:"window"` // e.g. "7d", "30d"
	Lang      string   `json:"lang"`
	KFinal    int      `json:"k_final"`
	UseRerank bool     `json:"use_rerank"`
	Sources   []string `json:"sources,omitempty"`
}

// Client retrieves candidate documents for a query. Implementations must be
// safe for concurrent use.
type Client interface {
	Retrieve(ctx context.Context, q Query) ([]Document, error)
}

// Func adapts a function to the Client interface (used by tests and the
// iterative agent's re-retrieve hook).
type Func func(ctx context.Context, q Query) ([]Document, error)

func (f Func) Retrieve(ctx context.Context, q Query) ([]Document, error) { return f(ctx, q) }

// Dedupe merges docs into base, dropping entries whose (article_id, url) pair
// was already seen. First seen wins; input order is preserved.
func Dedupe(base, extra []Document) []Document {
	seen := make(map[[2]string]bool, len(base)+len(extra))
	out := make([]Document, 0, len(base)+len(extra))
	for _, d := range append(append([]Document{}, base...), extra...) {
		key := [2]string{d.ArticleID, d.URL}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
