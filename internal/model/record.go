// Package model holds the data shapes shared by the scraping pipeline.
package model

import "sort"

// Record is one article or post extracted from a source page. Only Title is
// required; every other field is omitted from output when unknown.
type Record struct {
	Title    string `json:"title"`
	Link     string `json:"link,omitempty"`
	Date     string `json:"date,omitempty"`
	Category string `json:"category,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	Author   string `json:"author,omitempty"`
	Image    string `json:"image,omitempty"`

	// Forum sources report engagement counts.
	Score    *int `json:"score,omitempty"`
	Comments *int `json:"comments,omitempty"`
}

// ResultSet maps a query to the records gathered for it, in fetch order.
type ResultSet map[string][]Record

// Queries returns the processed queries in sorted order.
func (rs ResultSet) Queries() []string {
	out := make([]string, 0, len(rs))
	for q := range rs {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// RecordCount returns the total number of records across all queries.
func (rs ResultSet) RecordCount() int {
	n := 0
	for _, recs := range rs {
		n += len(recs)
	}
	return n
}

// Clone returns a copy whose slices can be mutated independently.
func (rs ResultSet) Clone() ResultSet {
	out := make(ResultSet, len(rs))
	for q, recs := range rs {
		cp := make([]Record, len(recs))
		copy(cp, recs)
		out[q] = cp
	}
	return out
}

// QueryStatus is the processing state of a single query within a lane.
type QueryStatus string

const (
	QueryPending   QueryStatus = "pending"
	QueryFetching  QueryStatus = "fetching"
	QueryParsing   QueryStatus = "parsing"
	QueryFiltering QueryStatus = "filtering"
	QueryCompleted QueryStatus = "completed"
	QueryFailed    QueryStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s QueryStatus) Terminal() bool {
	return s == QueryCompleted || s == QueryFailed
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
