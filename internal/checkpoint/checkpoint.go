// Package checkpoint persists a source lane's progress so an interrupted
// scrape resumes without repeating completed queries.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coverage-cli/internal/model"
)

// ErrEmpty is returned by Load when no checkpoint exists yet.
var ErrEmpty = errors.New("checkpoint: empty")

// Snapshot is the persisted state of one lane. Every query in Queries is
// either a key of Results or an element of Remaining, never both.
type Snapshot struct {
	Source    string            `json:"source"`
	RunID     string            `json:"run_id,omitempty"`
	Queries   []string          `json:"queries"`
	Results   model.ResultSet   `json:"results"`
	Failed    map[string]string `json:"failed,omitempty"`
	Remaining []string          `json:"remaining"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Validate checks that Results and Remaining partition Queries and that
// every failed query has a (possibly empty) result.
func (s *Snapshot) Validate() error {
	want := make(map[string]bool, len(s.Queries))
	for _, q := range s.Queries {
		if want[q] {
			return eris.Errorf("checkpoint: duplicate query %q", q)
		}
		want[q] = true
	}

	seen := make(map[string]bool, len(s.Queries))
	for q := range s.Results {
		if !want[q] {
			return eris.Errorf("checkpoint: result for unknown query %q", q)
		}
		seen[q] = true
	}
	for _, q := range s.Remaining {
		if !want[q] {
			return eris.Errorf("checkpoint: unknown remaining query %q", q)
		}
		if seen[q] {
			return eris.Errorf("checkpoint: query %q both processed and remaining", q)
		}
		seen[q] = true
	}
	if len(seen) != len(want) {
		return eris.Errorf("checkpoint: %d of %d queries unaccounted for", len(want)-len(seen), len(want))
	}

	for q := range s.Failed {
		if _, ok := s.Results[q]; !ok {
			return eris.Errorf("checkpoint: failed query %q has no result entry", q)
		}
	}
	return nil
}

// FailedQueries returns the failed queries in sorted order.
func (s *Snapshot) FailedQueries() []string {
	out := make([]string, 0, len(s.Failed))
	for q := range s.Failed {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Snapshot) Clone() *Snapshot {
	cp := *s
	cp.Queries = append([]string(nil), s.Queries...)
	cp.Remaining = append([]string(nil), s.Remaining...)
	cp.Results = s.Results.Clone()
	if s.Failed != nil {
		cp.Failed = make(map[string]string, len(s.Failed))
		for k, v := range s.Failed {
			cp.Failed[k] = v
		}
	}
	return &cp
}

// Store persists snapshots.
type Store interface {
	Flush(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// IOError is a failure to read or write checkpoint state. It is fatal to a
// run: continuing would let the on-disk state drift from memory.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("checkpoint: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
