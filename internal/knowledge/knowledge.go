// Package knowledge provides tenant knowledge grounding: ranked snippets with
// their source ids for a customer query.
package knowledge

import "context"

// Snippet is one ranked piece of tenant knowledge.
type Snippet struct {
	SourceID string  `json:"source_id"`
	Title    string  `json:"title"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Result is the grounding returned for a query.
type Result struct {
	Snippets     []Snippet `json:"snippets"`
	HasAnySource bool      `json:"has_any_source"`
}

// SourceCount counts distinct source ids in the result.
func (r Result) SourceCount() int {
	seen := make(map[string]struct{}, len(r.Snippets))
	for _, s := range r.Snippets {
		seen[s.SourceID] = struct{}{}
	}
	return len(seen)
}

// Searcher retrieves grounding for a tenant query. Callers treat an error the
// same as an empty result.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, maxSnippets, maxChars int) (Result, error)
}

// Document is a tenant-authored knowledge entry.
type Document struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}
