package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileStore keeps one JSON document per source under Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file backing a source's session.
func (f *FileStore) Path(source string) string {
	return filepath.Join(f.Dir, source+".json")
}

// Load reads a source's session. It returns ErrNotFound when the file is
// absent or holds no cookies.
func (f *FileStore) Load(ctx context.Context, source string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.Path(source))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "session: read %s", source)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "session: decode %s", source)
	}
	if len(s.Cookies) == 0 {
		return nil, ErrNotFound
	}
	if s.Source == "" {
		s.Source = source
	}

	now := time.Now()
	if live := len(s.Live(now)); live < len(s.Cookies) {
		zap.L().Warn("session: some cookies expired",
			zap.String("source", source),
			zap.Int("expired", len(s.Cookies)-live),
			zap.Int("live", live),
		)
	}
	return &s, nil
}

// Save writes a source's session atomically.
func (f *FileStore) Save(ctx context.Context, source string, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return eris.Errorf("session: save %s: nil session", source)
	}

	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		return eris.Wrapf(err, "session: create dir %s", f.Dir)
	}

	cp := *s
	cp.Source = source
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "session: encode %s", source)
	}
	if err := renameio.WriteFile(f.Path(source), data, 0o600); err != nil {
		return eris.Wrapf(err, "session: write %s", source)
	}

	zap.L().Info("session: saved",
		zap.String("source", source),
		zap.Int("cookies", len(cp.Cookies)),
	)
	return nil
}
