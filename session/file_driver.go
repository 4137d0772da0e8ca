package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	razystore "github.com/razyhq/razy/store"
)

// FileDriver persists each session as one JSON file, published via
// temp-file-then-rename (store.FileStore). GC relies on file modification
// time rather than a separate index, since the filesystem already tracks
// it. TempDir must share a filesystem with Dir — see razy.ErrCrossDevice.
type FileDriver struct {
	fs  *razystore.FileStore
	dir string
}

// NewFileDriver creates a FileDriver rooted at dir.
func NewFileDriver(dir, tempDir string) (*FileDriver, error) {
	fs, err := razystore.NewFileStore(dir, tempDir)
	if err != nil {
		return nil, err
	}
	return &FileDriver{fs: fs, dir: dir}, nil
}

func (d *FileDriver) Open() error  { return nil }
func (d *FileDriver) Close() error { return nil }

func (d *FileDriver) Read(ctx context.Context, id string) (map[string]any, error) {
	raw, ok, err := d.fs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("razy: session file read: %w", err)
	}
	if !ok {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("razy: session file decode: %w", err)
	}
	return data, nil
}

func (d *FileDriver) Write(ctx context.Context, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("razy: session file encode: %w", err)
	}
	return d.fs.Set(ctx, id, raw)
}

func (d *FileDriver) Destroy(ctx context.Context, id string) error {
	return d.fs.Delete(ctx, id)
}

func (d *FileDriver) GC(_ context.Context, maxLifetimeSeconds int) (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("razy: session gc list: %w", err)
	}
	cutoff := time.Now().Add(-time.Duration(maxLifetimeSeconds) * time.Second)
	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(d.dir, e.Name())); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}
