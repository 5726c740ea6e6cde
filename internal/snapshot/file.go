package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FileStore keeps gzip-compressed snapshots on disk. Relative names resolve
// against dir; absolute names are used as they are.
type FileStore struct {
	dir    string
	level  int
	logger *slog.Logger
}

func NewFileStore(dir string, level int, logger *slog.Logger) (*FileStore, error) {
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, fmt.Errorf("snapshot compression level: %w", err)
	}
	return &FileStore{
		dir:    dir,
		level:  level,
		logger: logger.With("component", "snapshot_file"),
	}, nil
}

func (s *FileStore) path(name string) string {
	if s.dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Save writes through a temporary file and renames it into place, so a
// reader never sees a half-written snapshot. The gzip header carries no
// timestamp and equal blobs give equal files.
func (s *FileStore) Save(ctx context.Context, name string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	path := s.path(name)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	zw, err := gzip.NewWriterLevel(f, s.level)
	if err != nil {
		f.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	_, writeErr := zw.Write(blob)
	closeErr := zw.Close()
	fileCloseErr := f.Close()
	for _, err := range []error{writeErr, closeErr, fileCloseErr} {
		if err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	s.logger.Info("snapshot saved",
		"path", path,
		"size_bytes", len(blob),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	path := s.path(name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, malformed(fmt.Errorf("%s: %w", path, err))
	}
	defer zr.Close()

	blob, err := io.ReadAll(zr)
	if err != nil {
		return nil, malformed(fmt.Errorf("%s: %w", path, err))
	}

	s.logger.Info("snapshot loaded",
		"path", path,
		"size_bytes", len(blob),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return blob, nil
}
