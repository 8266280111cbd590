// Package query derives the deduplicated search terms for a run from the
// external entity list.
package query

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/coverage-cli/internal/model"
)

// Build returns the sorted, deduplicated set of non-empty queries derived
// from company names and founder fields. The output is identical for
// identical input.
func Build(entities []model.Entity) []string {
	set := make(map[string]struct{})
	add := func(raw string) {
		if q := Normalize(raw); q != "" {
			set[q] = struct{}{}
		}
	}

	for _, e := range entities {
		add(e.Company)
		if e.Founders.IsZero() {
			continue
		}

		for _, name := range e.Founders.Names {
			add(name)
		}
		if e.Founders.Raw == "" {
			continue
		}
		names, err := ParseFounders(e.Founders.Raw)
		if err != nil {
			zap.L().Debug("query: founders field not list-encoded, splitting on commas",
				zap.String("raw", e.Founders.Raw),
				zap.Error(err),
			)
		}
		for _, name := range names {
			add(name)
		}
	}

	out := make([]string, 0, len(set))
	for q := range set {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Normalize trims the string, collapses inner whitespace, and composes
// Unicode so that visually identical names compare equal. Case is kept.
func Normalize(raw string) string {
	return norm.NFC.String(strings.Join(strings.Fields(raw), " "))
}
