package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/razyhq/razy"
)

// FileStore persists each key as one file under Dir, publishing writes via
// temp-file-then-rename so readers always observe either the pre- or
// post-write state. TempDir must share a
// filesystem with Dir; see ErrCrossDevice.
type FileStore struct {
	Dir     string
	TempDir string

	mu sync.Mutex // serializes the write-then-rename sequence per store
}

// NewFileStore creates a FileStore rooted at dir, using dir itself for
// staging temp files (same filesystem by construction) unless tempDir is
// given explicitly.
func NewFileStore(dir, tempDir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("razy: create store dir: %w", err)
	}
	if tempDir == "" {
		tempDir = dir
	}
	if tempDir != dir {
		if err := os.MkdirAll(tempDir, 0o700); err != nil {
			return nil, fmt.Errorf("razy: create temp dir: %w", err)
		}
	}
	return &FileStore{Dir: dir, TempDir: tempDir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, filepath.Base(key))
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("razy: read %q: %w", key, err)
	}
	return data, true, nil
}

// Set writes value to a temp file under TempDir, fsyncs it, then renames it
// into place. A rename across filesystems fails with ErrCrossDevice rather
// than falling back to a non-atomic copy.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.TempDir, ".razy-store-*")
	if err != nil {
		return fmt.Errorf("razy: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("razy: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("razy: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("razy: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		if errors.Is(err, syscall.EXDEV) {
			return fmt.Errorf("razy: rename %q: %w", key, razy.ErrCrossDevice)
		}
		return fmt.Errorf("razy: rename %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("razy: delete %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("razy: list %q: %w", s.Dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		keys = append(keys, e.Name())
	}
	return keys, nil
}
