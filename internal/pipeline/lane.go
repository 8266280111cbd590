// Package pipeline drives queries through the source adapters, one lane per
// source, with checkpointed progress.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/coverage-cli/internal/checkpoint"
	"github.com/sells-group/coverage-cli/internal/model"
	"github.com/sells-group/coverage-cli/internal/relevance"
	"github.com/sells-group/coverage-cli/internal/resilience"
	"github.com/sells-group/coverage-cli/internal/session"
	"github.com/sells-group/coverage-cli/internal/source"
)

// ErrSessionMissing means the source needs an authenticated session and
// none is stored. The lane's whole queue stays unprocessed.
var ErrSessionMissing = errors.New("pipeline: session missing")

// Limiter spaces requests per source.
type Limiter interface {
	Wait(ctx context.Context, source string) error
}

// ExcerptCache remembers excerpts already read from article pages.
type ExcerptCache interface {
	GetCachedExcerpt(ctx context.Context, link string) (string, bool, error)
	SetCachedExcerpt(ctx context.Context, link, excerpt string, ttl time.Duration) error
}

// FetcherFactory opens the lane's fetcher. sess is nil for sources that do
// not need a session.
type FetcherFactory func(sess *session.Session) (source.Fetcher, error)

// LaneConfig wires one lane.
type LaneConfig struct {
	Name       string
	Adapter    source.Adapter
	NewFetcher FetcherFactory
	Checkpoint checkpoint.Store

	// Optional collaborators.
	Sessions     session.Store
	Limiter      Limiter
	Filter       relevance.Filter
	Excerpts     ExcerptCache
	OnTransition TransitionFunc

	PageCap     int
	FlushEvery  int
	RetryFailed bool
	ExcerptTTL  time.Duration
}

// Lane processes one source's queue sequentially.
type Lane struct {
	cfg LaneConfig
	log *zap.Logger

	snap    *checkpoint.Snapshot
	skipped int
}

// NewLane returns a lane with defaults applied.
func NewLane(cfg LaneConfig) *Lane {
	if cfg.Name == "" && cfg.Adapter != nil {
		cfg.Name = cfg.Adapter.Name()
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = 1
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 1
	}
	if cfg.Filter == nil {
		cfg.Filter = relevance.AcceptAll{}
	}
	return &Lane{
		cfg: cfg,
		log: zap.L().With(zap.String("source", cfg.Name)),
	}
}

// Name returns the lane's source name.
func (l *Lane) Name() string { return l.cfg.Name }

// Restore loads the lane's checkpoint, or starts a fresh one over queries.
// A stored query set takes precedence over queries. It reports whether a
// checkpoint was found.
func (l *Lane) Restore(ctx context.Context, queries []string) (bool, error) {
	snap, err := l.cfg.Checkpoint.Load(ctx)
	switch {
	case errors.Is(err, checkpoint.ErrEmpty):
		l.snap = &checkpoint.Snapshot{
			Source:    l.cfg.Name,
			Queries:   append([]string(nil), queries...),
			Results:   model.ResultSet{},
			Failed:    map[string]string{},
			Remaining: append([]string(nil), queries...),
		}
		l.skipped = 0
		return false, nil
	case err != nil:
		return false, err
	}

	if snap.Failed == nil {
		snap.Failed = map[string]string{}
	}
	if l.cfg.RetryFailed && len(snap.Failed) > 0 {
		failed := snap.FailedQueries()
		for _, q := range failed {
			delete(snap.Results, q)
		}
		l.log.Info("pipeline: re-queueing failed queries", zap.Strings("queries", failed))
		snap.Failed = map[string]string{}
		snap.Remaining = pending(snap.Queries, snap.Results)
	}
	if extra := unknownQueries(queries, snap.Queries); extra > 0 {
		l.log.Warn("pipeline: input has queries outside the checkpoint; they are ignored until the checkpoint is removed",
			zap.Int("ignored", extra),
		)
	}

	l.snap = snap
	l.skipped = len(snap.Results)
	l.log.Info("pipeline: resuming from checkpoint",
		zap.Int("processed", len(snap.Results)),
		zap.Int("remaining", len(snap.Remaining)),
	)
	return true, nil
}

// Total returns the size of the lane's query set. Valid after Restore.
func (l *Lane) Total() int {
	if l.snap == nil {
		return 0
	}
	return len(l.snap.Queries)
}

// SetRunID tags subsequent checkpoints with the ledger's run ID.
func (l *Lane) SetRunID(id string) {
	if l.snap != nil {
		l.snap.RunID = id
	}
}

// Snapshot returns a copy of the lane's current state.
func (l *Lane) Snapshot() *checkpoint.Snapshot {
	if l.snap == nil {
		return nil
	}
	return l.snap.Clone()
}

// Run processes every remaining query. Per-query failures are recorded and
// never stop the lane; a checkpoint failure or missing session does. The
// checkpoint is flushed on return, including after cancellation.
func (l *Lane) Run(ctx context.Context, queries []string) (*model.RunSummary, error) {
	if l.snap == nil {
		if _, err := l.Restore(ctx, queries); err != nil {
			return &model.RunSummary{Source: l.cfg.Name, Error: err.Error()}, err
		}
	}
	snap := l.snap

	summary := &model.RunSummary{
		Source:  l.cfg.Name,
		Total:   len(snap.Queries),
		Skipped: l.skipped,
	}

	fetcher, err := l.openFetcher(ctx)
	if err != nil {
		summary.Remaining = len(snap.Remaining)
		summary.SessionMissing = errors.Is(err, ErrSessionMissing)
		summary.Error = err.Error()
		l.log.Error("pipeline: lane not started", zap.Int("remaining", summary.Remaining), zap.Error(err))
		return summary, err
	}
	defer fetcher.Close() //nolint:errcheck

	sinceFlush := 0
	for len(snap.Remaining) > 0 && ctx.Err() == nil {
		q := snap.Remaining[0]

		recs, cause := l.processQuery(ctx, fetcher, q)
		if cause != nil && ctx.Err() != nil {
			// Interrupted mid-query: leave it queued.
			break
		}

		snap.Remaining = snap.Remaining[1:]
		if cause != nil {
			snap.Results[q] = []model.Record{}
			snap.Failed[q] = cause.Error()
			summary.Failed++
			l.log.Warn("pipeline: query failed", zap.String("query", q), zap.Error(cause))
		} else {
			snap.Results[q] = recs
			summary.Completed++
			summary.Records += len(recs)
			l.log.Info("pipeline: query complete", zap.String("query", q), zap.Int("records", len(recs)))
		}

		sinceFlush++
		if sinceFlush >= l.cfg.FlushEvery {
			if err := l.cfg.Checkpoint.Flush(context.WithoutCancel(ctx), snap); err != nil {
				return l.abort(summary, err)
			}
			sinceFlush = 0
		}
	}

	if err := l.cfg.Checkpoint.Flush(context.WithoutCancel(ctx), snap); err != nil {
		return l.abort(summary, err)
	}
	summary.Remaining = len(snap.Remaining)

	if err := ctx.Err(); err != nil {
		summary.Error = err.Error()
		l.log.Warn("pipeline: lane interrupted",
			zap.Int("completed", summary.Completed),
			zap.Int("remaining", summary.Remaining),
		)
		return summary, err
	}

	l.log.Info("pipeline: lane complete",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("records", summary.Records),
		zap.Int("stored_records", snap.Results.RecordCount()),
	)
	return summary, nil
}

func (l *Lane) abort(summary *model.RunSummary, err error) (*model.RunSummary, error) {
	summary.Remaining = len(l.snap.Remaining)
	summary.Error = err.Error()
	l.log.Error("pipeline: checkpoint flush failed", zap.Error(err))
	return summary, err
}

func (l *Lane) openFetcher(ctx context.Context) (source.Fetcher, error) {
	var sess *session.Session
	if l.cfg.Adapter.RequiresAuthenticatedSession() {
		if l.cfg.Sessions == nil {
			return nil, eris.Wrapf(ErrSessionMissing, "pipeline: %s", l.cfg.Name)
		}
		s, err := l.cfg.Sessions.Load(ctx, l.cfg.Name)
		if errors.Is(err, session.ErrNotFound) {
			return nil, eris.Wrapf(ErrSessionMissing, "pipeline: %s", l.cfg.Name)
		}
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load session %s", l.cfg.Name)
		}
		sess = s
	}

	f, err := l.cfg.NewFetcher(sess)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open fetcher %s", l.cfg.Name)
	}
	return f, nil
}

// processQuery walks the query's pages up to the page cap. A failure on the
// first page fails the query; a failure on a later page keeps what was
// gathered.
func (l *Lane) processQuery(ctx context.Context, f source.Fetcher, q string) ([]model.Record, error) {
	st := newQueryState(l.cfg.Name, q, l.log, l.cfg.OnTransition)
	out := []model.Record{}

	for page := 1; page <= l.cfg.PageCap; page++ {
		spec, err := l.cfg.Adapter.BuildRequest(q, page)
		if errors.Is(err, source.ErrNoMorePages) {
			break
		}
		if err != nil {
			if page == 1 {
				st.to(model.QueryFailed)
				return nil, eris.Wrap(err, "pipeline: build request")
			}
			l.pageFailed(q, page, err)
			break
		}

		st.to(model.QueryFetching)
		raw, err := l.fetch(ctx, f, q, spec)
		if err != nil {
			if page == 1 || ctx.Err() != nil {
				st.to(model.QueryFailed)
				return nil, err
			}
			l.pageFailed(q, page, err)
			break
		}

		st.to(model.QueryParsing)
		recs, err := l.cfg.Adapter.ParsePage(raw)
		if err != nil {
			var pe *source.ParseError
			if errors.As(err, &pe) && pe.URL == "" {
				pe.URL = spec.URL
			}
			if page == 1 {
				st.to(model.QueryFailed)
				return nil, err
			}
			l.pageFailed(q, page, err)
			break
		}
		if len(recs) == 0 {
			break
		}

		st.to(model.QueryFiltering)
		l.resolveExcerpts(ctx, f, q, recs)
		if err := ctx.Err(); err != nil {
			// Abandoned, not failed: the caller leaves the query queued.
			return nil, err
		}
		out = append(out, relevance.Apply(l.cfg.Filter, recs, q)...)
	}

	st.to(model.QueryCompleted)
	return out, nil
}

func (l *Lane) pageFailed(q string, page int, err error) {
	l.log.Warn("pipeline: later page failed, keeping earlier pages",
		zap.String("query", q),
		zap.Int("page", page),
		zap.Error(err),
	)
}

// fetch runs one request through the rate limiter, retrying a transient
// failure once with no extra pause beyond the limiter's own.
func (l *Lane) fetch(ctx context.Context, f source.Fetcher, q string, spec source.FetchSpec) ([]byte, error) {
	cfg := resilience.ImmediateRetry()
	cfg.BeforeAttempt = func(ctx context.Context, _ int) error {
		return l.wait(ctx)
	}
	cfg.OnRetry = resilience.RetryLogger(l.cfg.Name, q)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return f.Fetch(ctx, spec)
	})
}

func (l *Lane) wait(ctx context.Context) error {
	if l.cfg.Limiter == nil {
		return ctx.Err()
	}
	return l.cfg.Limiter.Wait(ctx, l.cfg.Name)
}

// resolveExcerpts fills missing excerpts from the article pages. A failed
// secondary fetch leaves the excerpt empty and never fails the query.
func (l *Lane) resolveExcerpts(ctx context.Context, f source.Fetcher, q string, recs []model.Record) {
	resolver, ok := l.cfg.Adapter.(source.ExcerptResolver)
	if !ok {
		return
	}

	for i := range recs {
		if ctx.Err() != nil {
			return
		}
		rec := &recs[i]
		if rec.Link == "" || !resolver.NeedsExcerpt(*rec) {
			continue
		}
		if excerpt, hit := l.cachedExcerpt(ctx, rec.Link); hit {
			rec.Excerpt = excerpt
			continue
		}

		spec, err := resolver.ExcerptRequest(*rec)
		if err != nil {
			l.log.Debug("pipeline: no excerpt request", zap.String("link", rec.Link), zap.Error(err))
			continue
		}
		raw, err := l.fetch(ctx, f, q, spec)
		if err != nil {
			l.log.Warn("pipeline: excerpt fetch failed",
				zap.String("query", q),
				zap.String("link", rec.Link),
				zap.Error(err),
			)
			continue
		}
		rec.Excerpt = resolver.ParseExcerpt(raw, rec.Link)
		l.storeExcerpt(ctx, rec.Link, rec.Excerpt)
	}
}

func (l *Lane) cachedExcerpt(ctx context.Context, link string) (string, bool) {
	if l.cfg.Excerpts == nil {
		return "", false
	}
	excerpt, ok, err := l.cfg.Excerpts.GetCachedExcerpt(ctx, link)
	if err != nil {
		l.log.Warn("pipeline: excerpt cache read failed", zap.String("link", link), zap.Error(err))
		return "", false
	}
	return excerpt, ok
}

func (l *Lane) storeExcerpt(ctx context.Context, link, excerpt string) {
	if l.cfg.Excerpts == nil || l.cfg.ExcerptTTL <= 0 {
		return
	}
	if err := l.cfg.Excerpts.SetCachedExcerpt(ctx, link, excerpt, l.cfg.ExcerptTTL); err != nil {
		l.log.Warn("pipeline: excerpt cache write failed", zap.String("link", link), zap.Error(err))
	}
}

// pending returns the queries without a result, in query-set order.
func pending(queries []string, results model.ResultSet) []string {
	out := []string{}
	for _, q := range queries {
		if _, done := results[q]; !done {
			out = append(out, q)
		}
	}
	return out
}

func unknownQueries(input, known []string) int {
	set := make(map[string]bool, len(known))
	for _, q := range known {
		set[q] = true
	}
	n := 0
	for _, q := range input {
		if !set[q] {
			n++
		}
	}
	return n
}
