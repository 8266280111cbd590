package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"

	"github.com/sells-group/coverage-cli/internal/model"
)

// pathLocks serializes writers per file across every FileStore in the
// process.
var pathLocks sync.Map

func lockPath(path string) func() {
	v, _ := pathLocks.LoadOrStore(path, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// FileStore writes a lane's checkpoint to CheckpointPath and its result
// document to OutputPath.
type FileStore struct {
	CheckpointPath string
	OutputPath     string

	now func() time.Time
}

// NewFileStore returns the store for source, with the checkpoint under
// checkpointDir and results under outputDir.
func NewFileStore(checkpointDir, outputDir, source string) *FileStore {
	return &FileStore{
		CheckpointPath: filepath.Join(checkpointDir, source+"_checkpoint.json"),
		OutputPath:     filepath.Join(outputDir, source+"_results.json"),
		now:            time.Now,
	}
}

// Flush atomically replaces the checkpoint and then the result document.
// Every failure is returned as an *IOError.
func (f *FileStore) Flush(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return &IOError{Op: "flush", Path: f.CheckpointPath, Err: err}
	}

	stamped := *snap
	stamped.UpdatedAt = f.now().UTC()
	if stamped.Results == nil {
		stamped.Results = model.ResultSet{}
	}
	if stamped.Remaining == nil {
		stamped.Remaining = []string{}
	}

	if err := f.write(f.CheckpointPath, stamped); err != nil {
		return err
	}
	if f.OutputPath != "" {
		if err := f.write(f.OutputPath, stamped.Results); err != nil {
			return err
		}
	}

	zap.L().Debug("checkpoint: flushed",
		zap.String("source", snap.Source),
		zap.Int("processed", len(snap.Results)),
		zap.Int("remaining", len(snap.Remaining)),
	)
	return nil
}

func (f *FileStore) write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}

	unlock := lockPath(path)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: path, Err: err}
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Load reads the checkpoint. It returns ErrEmpty when none exists and an
// *IOError when the file is unreadable or violates the snapshot invariant.
func (f *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &IOError{Op: "load", Path: f.CheckpointPath, Err: err}
	}

	unlock := lockPath(f.CheckpointPath)
	data, err := os.ReadFile(f.CheckpointPath)
	unlock()
	if os.IsNotExist(err) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: f.CheckpointPath, Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &IOError{Op: "decode", Path: f.CheckpointPath, Err: err}
	}
	if snap.Results == nil {
		snap.Results = model.ResultSet{}
	}
	if err := snap.Validate(); err != nil {
		return nil, &IOError{Op: "validate", Path: f.CheckpointPath, Err: err}
	}
	return &snap, nil
}
