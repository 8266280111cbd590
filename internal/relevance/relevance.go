// Package relevance decides whether a parsed record is about the query that
// produced it.
package relevance

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/coverage-cli/internal/model"
)

// Filter reports whether a record should be kept for a query.
type Filter interface {
	IsRelevant(rec model.Record, query string) bool
}

// Substring keeps a record when the query appears, case-folded, in its
// title or excerpt.
type Substring struct{}

// IsRelevant implements Filter.
func (Substring) IsRelevant(rec model.Record, query string) bool {
	q := fold(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	return strings.Contains(fold(rec.Title), q) || strings.Contains(fold(rec.Excerpt), q)
}

// AcceptAll keeps every record.
type AcceptAll struct{}

// IsRelevant implements Filter.
func (AcceptAll) IsRelevant(model.Record, string) bool { return true }

// For returns the filter for a source with filtering on or off.
func For(enabled bool) Filter {
	if enabled {
		return Substring{}
	}
	return AcceptAll{}
}

// Apply returns the records the filter keeps, in their original order.
func Apply(f Filter, recs []model.Record, query string) []model.Record {
	kept := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		if f.IsRelevant(r, query) {
			kept = append(kept, r)
		}
	}
	return kept
}

// fold uses a fresh Caser per call; Casers are stateful and not safe for
// concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
