package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/coverage-cli/internal/model"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Source:  "techcrunch",
		RunID:   "run-1",
		Queries: []string{"Acme", "Globex", "Initech"},
		Results: model.ResultSet{
			"Acme":   {{Title: "Acme raises funding", Link: "https://techcrunch.com/acme"}},
			"Globex": {},
		},
		Failed:    map[string]string{"Globex": "fetch: status 503"},
		Remaining: []string{"Initech"},
	}
}

func newStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	fs := NewFileStore(filepath.Join(dir, "ckpt"), filepath.Join(dir, "out"), "techcrunch")
	fs.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return fs
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr string
	}{
		{"valid", func(*Snapshot) {}, ""},
		{"all processed", func(s *Snapshot) {
			s.Remaining = nil
			s.Results["Initech"] = nil
		}, ""},
		{"overlap", func(s *Snapshot) { s.Remaining = append(s.Remaining, "Acme") }, "both processed and remaining"},
		{"missing query", func(s *Snapshot) { s.Remaining = nil }, "unaccounted"},
		{"unknown result", func(s *Snapshot) { s.Results["Hooli"] = nil }, "unknown query"},
		{"unknown remaining", func(s *Snapshot) { s.Remaining = []string{"Initech", "Hooli"} }, "unknown remaining"},
		{"duplicate query", func(s *Snapshot) { s.Queries = append(s.Queries, "Acme") }, "duplicate"},
		{"failed without result", func(s *Snapshot) { s.Failed["Initech"] = "boom" }, "no result entry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSnapshot()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFlushAndLoad(t *testing.T) {
	fs := newStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Flush(ctx, sampleSnapshot()))

	got, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "techcrunch", got.Source)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, []string{"Initech"}, got.Remaining)
	assert.Equal(t, []string{"Acme", "Globex"}, got.Results.Queries())
	assert.Equal(t, []string{"Globex"}, got.FailedQueries())
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), got.UpdatedAt)
}

func TestFlushWritesResultDocument(t *testing.T) {
	fs := newStore(t)
	require.NoError(t, fs.Flush(context.Background(), sampleSnapshot()))

	data, err := os.ReadFile(fs.OutputPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Acme": [{"title": "Acme raises funding", "link": "https://techcrunch.com/acme"}],
		"Globex": []
	}`, string(data))
}

func TestFlushLeavesNoTempFiles(t *testing.T) {
	fs := newStore(t)
	for range 3 {
		require.NoError(t, fs.Flush(context.Background(), sampleSnapshot()))
	}

	entries, err := os.ReadDir(filepath.Dir(fs.CheckpointPath))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "techcrunch_checkpoint.json", entries[0].Name())
}

func TestLoadEmpty(t *testing.T) {
	fs := newStore(t)
	_, err := fs.Load(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoadCorrupt(t *testing.T) {
	fs := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(fs.CheckpointPath), 0o755))
	require.NoError(t, os.WriteFile(fs.CheckpointPath, []byte(`{"queries": [`), 0o644))

	_, err := fs.Load(context.Background())
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "decode", ioErr.Op)
}

func TestLoadRejectsBrokenInvariant(t *testing.T) {
	fs := newStore(t)
	snap := sampleSnapshot()
	snap.Remaining = append(snap.Remaining, "Acme")
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(fs.CheckpointPath), 0o755))
	require.NoError(t, os.WriteFile(fs.CheckpointPath, data, 0o644))

	_, err = fs.Load(context.Background())
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "validate", ioErr.Op)
}

func TestFlushUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// A regular file where the checkpoint directory should be.
	fs := NewFileStore(blocker, dir, "techcrunch")
	err := fs.Flush(context.Background(), sampleSnapshot())

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "mkdir", ioErr.Op)
}

func TestFlushCancelledContext(t *testing.T) {
	fs := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fs.Flush(ctx, sampleSnapshot())
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentFlushesSamePath(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fs := NewFileStore(dir, dir, "techcrunch")
			snap := sampleSnapshot()
			snap.RunID = string(rune('a' + i))
			assert.NoError(t, fs.Flush(ctx, snap))
		}()
	}
	wg.Wait()

	got, err := NewFileStore(dir, dir, "techcrunch").Load(ctx)
	require.NoError(t, err)
	assert.NoError(t, got.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	s := sampleSnapshot()
	cp := s.Clone()

	cp.Remaining[0] = "changed"
	cp.Results["Acme"][0].Title = "changed"
	cp.Failed["Acme"] = "x"

	assert.Equal(t, "Initech", s.Remaining[0])
	assert.Equal(t, "Acme raises funding", s.Results["Acme"][0].Title)
	assert.NotContains(t, s.Failed, "Acme")
}
