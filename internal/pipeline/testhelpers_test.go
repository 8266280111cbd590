package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/coverage-cli/internal/checkpoint"
	"github.com/sells-group/coverage-cli/internal/model"
	"github.com/sells-group/coverage-cli/internal/session"
	"github.com/sells-group/coverage-cli/internal/source"
)

// fakeAdapter serves pages whose bodies are JSON record arrays. A body of
// "broken" parses as a ParseError.
type fakeAdapter struct {
	name        string
	needSession bool
	maxPages    int
}

func (a *fakeAdapter) Name() string    { return a.name }
func (a *fakeAdapter) BaseURL() string { return "https://fake.test" }

func (a *fakeAdapter) BuildRequest(query string, page int) (source.FetchSpec, error) {
	if a.maxPages > 0 && page > a.maxPages {
		return source.FetchSpec{}, source.ErrNoMorePages
	}
	return source.FetchSpec{URL: pageURL(query, page)}, nil
}

func (a *fakeAdapter) ParsePage(raw []byte) ([]model.Record, error) {
	if string(raw) == "broken" {
		return nil, &source.ParseError{Source: a.name, Reason: "results container not found"}
	}
	var recs []model.Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, &source.ParseError{Source: a.name, Reason: err.Error()}
	}
	return recs, nil
}

func (a *fakeAdapter) RequiresAuthenticatedSession() bool { return a.needSession }

// excerptAdapter resolves excerpts from "<link>" pages whose body is the
// excerpt itself.
type excerptAdapter struct {
	fakeAdapter
}

func (a *excerptAdapter) NeedsExcerpt(rec model.Record) bool { return rec.Excerpt == "" }

func (a *excerptAdapter) ExcerptRequest(rec model.Record) (source.FetchSpec, error) {
	return source.FetchSpec{URL: rec.Link}, nil
}

func (a *excerptAdapter) ParseExcerpt(raw []byte, _ string) string {
	return strings.TrimSpace(string(raw))
}

func pageURL(query string, page int) string {
	return fmt.Sprintf("https://fake.test/search?page=%d&q=%s", page, url.QueryEscape(query))
}

type response struct {
	body string
	errs []error // returned in order before body is served
}

// fakeFetcher serves canned responses and records every request.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*response
	calls     []string
	onFetch   func(url string)
	closed    bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: map[string]*response{}}
}

func (f *fakeFetcher) page(query string, page int, body string, errs ...error) *fakeFetcher {
	return f.serve(pageURL(query, page), body, errs...)
}

func (f *fakeFetcher) serve(u, body string, errs ...error) *fakeFetcher {
	f.responses[u] = &response{body: body, errs: errs}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, spec source.FetchSpec) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec.URL)
	hook := f.onFetch
	resp := f.responses[spec.URL]
	var err error
	if resp != nil && len(resp.errs) > 0 {
		err = resp.errs[0]
		resp.errs = resp.errs[1:]
	}
	f.mu.Unlock()

	if hook != nil {
		hook(spec.URL)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, &source.FetchError{URL: spec.URL, Err: ctxErr}
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &source.FetchError{URL: spec.URL, Status: 404}
	}
	return []byte(resp.body), nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFetcher) fetched(u string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == u {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memCheckpoint keeps snapshots in memory, validating each flush.
type memCheckpoint struct {
	mu       sync.Mutex
	t        *testing.T
	current  *checkpoint.Snapshot
	flushes  []*checkpoint.Snapshot
	flushErr error
	loadErr  error
}

func newMemCheckpoint(t *testing.T) *memCheckpoint {
	return &memCheckpoint{t: t}
}

func (m *memCheckpoint) Flush(_ context.Context, snap *checkpoint.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flushErr != nil {
		return m.flushErr
	}
	assert.NoError(m.t, snap.Validate(), "snapshot invariant broken at flush %d", len(m.flushes)+1)
	m.current = snap.Clone()
	m.flushes = append(m.flushes, snap.Clone())
	return nil
}

func (m *memCheckpoint) Load(context.Context) (*checkpoint.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.current == nil {
		return nil, checkpoint.ErrEmpty
	}
	return m.current.Clone(), nil
}

func (m *memCheckpoint) last() *checkpoint.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// memSessions is an in-memory session store.
type memSessions map[string]*session.Session

func (m memSessions) Load(_ context.Context, source string) (*session.Session, error) {
	s, ok := m[source]
	if !ok {
		return nil, session.ErrNotFound
	}
	return s, nil
}

func (m memSessions) Save(_ context.Context, source string, s *session.Session) error {
	m[source] = s
	return nil
}

// countingLimiter records Wait calls per source.
type countingLimiter struct {
	mu    sync.Mutex
	waits map[string]int
}

func (c *countingLimiter) Wait(ctx context.Context, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waits == nil {
		c.waits = map[string]int{}
	}
	c.waits[source]++
	return ctx.Err()
}

func (c *countingLimiter) count(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waits[source]
}

func records(titles ...string) string {
	recs := make([]model.Record, len(titles))
	for i, t := range titles {
		recs[i] = model.Record{Title: t, Link: "https://fake.test/a/" + strings.ReplaceAll(strings.ToLower(t), " ", "-")}
	}
	b, _ := json.Marshal(recs)
	return string(b)
}

func newTestLane(adapter source.Adapter, f *fakeFetcher, cp checkpoint.Store, mutate ...func(*LaneConfig)) *Lane {
	cfg := LaneConfig{
		Adapter:    adapter,
		NewFetcher: func(*session.Session) (source.Fetcher, error) { return f, nil },
		Checkpoint: cp,
		FlushEvery: 1,
		PageCap:    1,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewLane(cfg)
}
