package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/coverage-cli/internal/checkpoint"
	"github.com/sells-group/coverage-cli/internal/config"
	"github.com/sells-group/coverage-cli/internal/model"
	"github.com/sells-group/coverage-cli/internal/ratelimit"
	"github.com/sells-group/coverage-cli/internal/relevance"
	"github.com/sells-group/coverage-cli/internal/session"
	"github.com/sells-group/coverage-cli/internal/source"
	"github.com/sells-group/coverage-cli/internal/store"
)

// Report is the outcome of a run across every lane.
type Report struct {
	Lanes  []model.RunSummary `json:"lanes"`
	Totals model.RunSummary   `json:"totals"`
}

// Runner drives one lane per enabled source concurrently.
type Runner struct {
	cfg      *config.Config
	ledger   store.Store
	sessions session.Store
	limiter  *ratelimit.Limiter

	newAdapter    func(name string, sc config.SourceConfig) (source.Adapter, error)
	newFetcher    func(a source.Adapter, sc config.SourceConfig, sess *session.Session) (source.Fetcher, error)
	newCheckpoint func(name string) checkpoint.Store
	onTransition  TransitionFunc
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLimiter replaces the limiter built from configuration.
func WithLimiter(l *ratelimit.Limiter) RunnerOption {
	return func(r *Runner) { r.limiter = l }
}

// WithAdapterFactory replaces the source registry lookup.
func WithAdapterFactory(fn func(name string, sc config.SourceConfig) (source.Adapter, error)) RunnerOption {
	return func(r *Runner) { r.newAdapter = fn }
}

// WithFetcherFactory replaces the default fetcher selection.
func WithFetcherFactory(fn func(a source.Adapter, sc config.SourceConfig, sess *session.Session) (source.Fetcher, error)) RunnerOption {
	return func(r *Runner) { r.newFetcher = fn }
}

// WithCheckpointFactory replaces the file-backed checkpoint store.
func WithCheckpointFactory(fn func(name string) checkpoint.Store) RunnerOption {
	return func(r *Runner) { r.newCheckpoint = fn }
}

// WithTransitionHook observes every query state change.
func WithTransitionHook(fn TransitionFunc) RunnerOption {
	return func(r *Runner) { r.onTransition = fn }
}

// NewRunner builds a runner. ledger may be nil to skip run bookkeeping and
// excerpt caching.
func NewRunner(cfg *config.Config, ledger store.Store, sessions session.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:        cfg,
		ledger:     ledger,
		sessions:   sessions,
		newAdapter: source.New,
	}
	r.newFetcher = func(a source.Adapter, sc config.SourceConfig, sess *session.Session) (source.Fetcher, error) {
		return source.NewFetcher(a, sc, cfg.Scrape.FetchTimeout(), sess)
	}
	r.newCheckpoint = func(name string) checkpoint.Store {
		return checkpoint.NewFileStore(cfg.Scrape.CheckpointDir, cfg.Scrape.OutputDir, name)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.limiter == nil {
		r.limiter = ratelimit.New(ratelimit.WithGlobalRate(cfg.Scrape.GlobalRPS))
	}
	return r
}

// Run scrapes queries on every named source. Lanes are independent: a
// failing or session-less lane is reported in its summary while the others
// continue. A checkpoint failure in any lane cancels the whole run and is
// returned.
func (r *Runner) Run(ctx context.Context, queries []string, sources []string) (*Report, error) {
	if len(sources) == 0 {
		return nil, eris.New("pipeline: no sources enabled")
	}
	r.pruneExcerptCache(ctx)

	summaries := make([]model.RunSummary, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range sources {
		g.Go(func() error {
			sum, err := r.runLane(gCtx, name, queries)
			summaries[i] = *sum

			var ioErr *checkpoint.IOError
			if errors.As(err, &ioErr) {
				return err
			}
			return nil
		})
	}
	err := g.Wait()

	report := &Report{Lanes: summaries}
	for _, s := range summaries {
		report.Totals.Total += s.Total
		report.Totals.Completed += s.Completed
		report.Totals.Failed += s.Failed
		report.Totals.Skipped += s.Skipped
		report.Totals.Remaining += s.Remaining
		report.Totals.Records += s.Records
	}

	zap.L().Info("pipeline: run finished",
		zap.Int("sources", len(sources)),
		zap.Int("completed", report.Totals.Completed),
		zap.Int("failed", report.Totals.Failed),
		zap.Int("skipped", report.Totals.Skipped),
		zap.Int("remaining", report.Totals.Remaining),
		zap.Int("records", report.Totals.Records),
	)

	if err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (r *Runner) runLane(ctx context.Context, name string, queries []string) (*model.RunSummary, error) {
	log := zap.L().With(zap.String("source", name))

	sc, ok := r.cfg.Source(name)
	if !ok {
		err := eris.Errorf("pipeline: source %q is not configured", name)
		log.Error("pipeline: lane skipped", zap.Error(err))
		return &model.RunSummary{Source: name, Error: err.Error()}, err
	}
	adapter, err := r.newAdapter(name, sc)
	if err != nil {
		log.Error("pipeline: lane skipped", zap.Error(err))
		return &model.RunSummary{Source: name, Error: err.Error()}, err
	}

	minDelay, maxDelay := sc.Delays()
	r.limiter.Configure(name, ratelimit.Bounds{Min: minDelay, Max: maxDelay})

	lane := NewLane(LaneConfig{
		Name:    name,
		Adapter: adapter,
		NewFetcher: func(sess *session.Session) (source.Fetcher, error) {
			return r.newFetcher(adapter, sc, sess)
		},
		Checkpoint:   r.newCheckpoint(name),
		Sessions:     r.sessions,
		Limiter:      r.limiter,
		Filter:       relevance.For(sc.Relevance),
		Excerpts:     r.excerptCache(),
		OnTransition: r.onTransition,
		PageCap:      sc.PageCap,
		FlushEvery:   r.cfg.Scrape.FlushEvery,
		RetryFailed:  r.cfg.Scrape.RetryFailed,
		ExcerptTTL:   r.cfg.Scrape.ExcerptCacheTTL(),
	})

	resumed, err := lane.Restore(ctx, queries)
	if err != nil {
		log.Error("pipeline: checkpoint unreadable", zap.Error(err))
		return &model.RunSummary{Source: name, Error: err.Error()}, err
	}

	run := r.startRun(ctx, name, lane.Total(), resumed)
	if run != nil {
		lane.SetRunID(run.ID)
	}
	summary, err := lane.Run(ctx, queries)
	r.finishRun(ctx, run, summary, err)
	return summary, err
}

func (r *Runner) excerptCache() ExcerptCache {
	if r.ledger == nil {
		return nil
	}
	return r.ledger
}

func (r *Runner) pruneExcerptCache(ctx context.Context) {
	if r.ledger == nil {
		return
	}
	n, err := r.ledger.DeleteExpiredExcerpts(ctx)
	if err != nil {
		zap.L().Warn("pipeline: prune excerpt cache", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Debug("pipeline: pruned excerpt cache", zap.Int("deleted", n))
	}
}

func (r *Runner) startRun(ctx context.Context, name string, queries int, resumed bool) *model.Run {
	if r.ledger == nil {
		return nil
	}
	run, err := r.ledger.CreateRun(ctx, name, queries, resumed)
	if err != nil {
		zap.L().Warn("pipeline: ledger create run", zap.String("source", name), zap.Error(err))
		return nil
	}
	return run
}

func (r *Runner) finishRun(ctx context.Context, run *model.Run, summary *model.RunSummary, laneErr error) {
	if run == nil {
		return
	}
	status := runStatus(laneErr)
	if err := r.ledger.FinishRun(context.WithoutCancel(ctx), run.ID, status, summary); err != nil {
		zap.L().Warn("pipeline: ledger finish run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func runStatus(err error) model.RunStatus {
	switch {
	case err == nil:
		return model.RunStatusComplete
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.RunStatusInterrupted
	default:
		return model.RunStatusFailed
	}
}
