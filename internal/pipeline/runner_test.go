package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coverage-cli/internal/checkpoint"
	"github.com/sells-group/coverage-cli/internal/config"
	"github.com/sells-group/coverage-cli/internal/model"
	"github.com/sells-group/coverage-cli/internal/session"
	"github.com/sells-group/coverage-cli/internal/source"
	"github.com/sells-group/coverage-cli/internal/store"
)

func testConfig(sources ...string) *config.Config {
	cfg := &config.Config{
		Store: config.StoreConfig{Driver: "sqlite"},
		Scrape: config.ScrapeConfig{
			FlushEvery:           1,
			PageCap:              1,
			FetchTimeoutSecs:     5,
			UserAgent:            "test",
			ExcerptCacheTTLHours: 1,
		},
		Sources: map[string]config.SourceConfig{},
	}
	for _, s := range sources {
		cfg.Sources[s] = config.SourceConfig{Enabled: true}
	}
	return cfg
}

func newTestLedger(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// blockingFetcher never answers until its context ends. started is closed
// on the first request.
type blockingFetcher struct {
	once    sync.Once
	started chan struct{}
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{started: make(chan struct{})}
}

func (b *blockingFetcher) Fetch(ctx context.Context, spec source.FetchSpec) ([]byte, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, &source.FetchError{URL: spec.URL, Err: ctx.Err()}
}

func (b *blockingFetcher) Close() error { return nil }

type runnerFixture struct {
	adapters    map[string]source.Adapter
	fetchers    map[string]source.Fetcher
	checkpoints map[string]*memCheckpoint
}

func (fx *runnerFixture) options() []RunnerOption {
	return []RunnerOption{
		WithAdapterFactory(func(name string, _ config.SourceConfig) (source.Adapter, error) {
			a, ok := fx.adapters[name]
			if !ok {
				return nil, errors.New("unknown adapter " + name)
			}
			return a, nil
		}),
		WithFetcherFactory(func(a source.Adapter, _ config.SourceConfig, _ *session.Session) (source.Fetcher, error) {
			return fx.fetchers[a.Name()], nil
		}),
		WithCheckpointFactory(func(name string) checkpoint.Store {
			return fx.checkpoints[name]
		}),
	}
}

func TestRunner_LanesAreIndependent(t *testing.T) {
	ledger := newTestLedger(t)
	fx := &runnerFixture{
		adapters: map[string]source.Adapter{
			"open":    &fakeAdapter{name: "open"},
			"members": &fakeAdapter{name: "members", needSession: true},
		},
		fetchers: map[string]source.Fetcher{
			"open": newFakeFetcher().
				page("Acme", 1, records("Acme one", "Acme two")).
				page("Globex", 1, records("Globex one")),
			"members": newFakeFetcher(),
		},
		checkpoints: map[string]*memCheckpoint{
			"open":    newMemCheckpoint(t),
			"members": newMemCheckpoint(t),
		},
	}

	r := NewRunner(testConfig("open", "members"), ledger, memSessions{}, fx.options()...)
	report, err := r.Run(context.Background(), []string{"Acme", "Globex"}, []string{"open", "members"})
	require.NoError(t, err)
	require.Len(t, report.Lanes, 2)

	open, members := report.Lanes[0], report.Lanes[1]
	assert.Equal(t, "open", open.Source)
	assert.Equal(t, 2, open.Completed)
	assert.Equal(t, 3, open.Records)
	assert.True(t, members.SessionMissing)
	assert.Equal(t, 2, members.Remaining)

	assert.Equal(t, 2, report.Totals.Completed)
	assert.Equal(t, 2, report.Totals.Remaining)
	assert.Equal(t, 4, report.Totals.Total)

	openRuns, err := ledger.ListRuns(context.Background(), store.RunFilter{Source: "open"})
	require.NoError(t, err)
	require.Len(t, openRuns, 1)
	assert.Equal(t, model.RunStatusComplete, openRuns[0].Status)
	require.NotNil(t, openRuns[0].Summary)
	assert.Equal(t, 2, openRuns[0].Summary.Completed)
	assert.Equal(t, openRuns[0].ID, fx.checkpoints["open"].last().RunID)

	memberRuns, err := ledger.ListRuns(context.Background(), store.RunFilter{Source: "members"})
	require.NoError(t, err)
	require.Len(t, memberRuns, 1)
	assert.Equal(t, model.RunStatusFailed, memberRuns[0].Status)
	assert.True(t, memberRuns[0].Summary.SessionMissing)
}

func TestRunner_CheckpointFailureCancelsRun(t *testing.T) {
	ledger := newTestLedger(t)
	broken := newMemCheckpoint(t)
	broken.flushErr = &checkpoint.IOError{Op: "write", Path: "broken.json", Err: errors.New("disk full")}
	slowFetcher := newBlockingFetcher()
	brokenFetcher := newFakeFetcher().page("Acme", 1, records("Acme one"))
	// Fail only once the slow lane is in flight.
	brokenFetcher.onFetch = func(string) { <-slowFetcher.started }
	fx := &runnerFixture{
		adapters: map[string]source.Adapter{
			"broken": &fakeAdapter{name: "broken"},
			"slow":   &fakeAdapter{name: "slow"},
		},
		fetchers: map[string]source.Fetcher{
			"broken": brokenFetcher,
			"slow":   slowFetcher,
		},
		checkpoints: map[string]*memCheckpoint{
			"broken": broken,
			"slow":   newMemCheckpoint(t),
		},
	}

	r := NewRunner(testConfig("broken", "slow"), ledger, nil, fx.options()...)
	report, err := r.Run(context.Background(), []string{"Acme"}, []string{"broken", "slow"})
	require.Error(t, err)
	var ioErr *checkpoint.IOError
	require.ErrorAs(t, err, &ioErr)
	require.NotNil(t, report)

	slow := report.Lanes[1]
	assert.Equal(t, 1, slow.Remaining)
	assert.Contains(t, slow.Error, "canceled")

	runs, err := ledger.ListRuns(context.Background(), store.RunFilter{Source: "slow"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusInterrupted, runs[0].Status)
}

func TestRunner_CachesExcerptsInLedger(t *testing.T) {
	ledger := newTestLedger(t)
	fx := &runnerFixture{
		adapters: map[string]source.Adapter{
			"news": &excerptAdapter{fakeAdapter{name: "news"}},
		},
		fetchers: map[string]source.Fetcher{
			"news": newFakeFetcher().
				page("Acme", 1, records("Acme one")).
				serve("https://fake.test/a/acme-one", "Acme did a thing."),
		},
		checkpoints: map[string]*memCheckpoint{"news": newMemCheckpoint(t)},
	}

	r := NewRunner(testConfig("news"), ledger, nil, fx.options()...)
	_, err := r.Run(context.Background(), []string{"Acme"}, []string{"news"})
	require.NoError(t, err)

	excerpt, ok, err := ledger.GetCachedExcerpt(context.Background(), "https://fake.test/a/acme-one")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Acme did a thing.", excerpt)
}

func TestRunner_WithoutLedger(t *testing.T) {
	fx := &runnerFixture{
		adapters:    map[string]source.Adapter{"open": &fakeAdapter{name: "open"}},
		fetchers:    map[string]source.Fetcher{"open": newFakeFetcher().page("Acme", 1, records("Acme one"))},
		checkpoints: map[string]*memCheckpoint{"open": newMemCheckpoint(t)},
	}

	r := NewRunner(testConfig("open"), nil, nil, fx.options()...)
	report, err := r.Run(context.Background(), []string{"Acme"}, []string{"open"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.Completed)
}

func TestRunner_UnknownSourceIsReported(t *testing.T) {
	fx := &runnerFixture{
		adapters:    map[string]source.Adapter{"open": &fakeAdapter{name: "open"}},
		fetchers:    map[string]source.Fetcher{"open": newFakeFetcher().page("Acme", 1, records("Acme one"))},
		checkpoints: map[string]*memCheckpoint{"open": newMemCheckpoint(t)},
	}

	r := NewRunner(testConfig("open"), nil, nil, fx.options()...)
	report, err := r.Run(context.Background(), []string{"Acme"}, []string{"open", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Lanes[0].Completed)
	assert.Contains(t, report.Lanes[1].Error, "not configured")
}

func TestRunner_CancelledContext(t *testing.T) {
	fx := &runnerFixture{
		adapters:    map[string]source.Adapter{"open": &fakeAdapter{name: "open"}},
		fetchers:    map[string]source.Fetcher{"open": newFakeFetcher()},
		checkpoints: map[string]*memCheckpoint{"open": newMemCheckpoint(t)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(testConfig("open"), nil, nil, fx.options()...)
	report, err := r.Run(ctx, []string{"Acme"}, []string{"open"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Totals.Completed)
}

func TestRunner_NoSources(t *testing.T) {
	r := NewRunner(testConfig(), nil, nil)
	_, err := r.Run(context.Background(), []string{"Acme"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources")
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, model.RunStatusComplete, runStatus(nil))
	assert.Equal(t, model.RunStatusInterrupted, runStatus(context.Canceled))
	assert.Equal(t, model.RunStatusFailed, runStatus(ErrSessionMissing))
	assert.Equal(t, model.RunStatusFailed, runStatus(&checkpoint.IOError{Op: "write", Err: errors.New("x")}))
}
