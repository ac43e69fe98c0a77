package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"partnertrack/internal/db"
	"partnertrack/internal/domain"
)

// FileBackend keeps the state in <workspace>/.partnertrack/<key>.json.
// Writes are atomic: temp file, fsync, rename, directory fsync.
type FileBackend struct {
	path string
	log  *slog.Logger
}

func NewFileBackend(workspace, key string, log *slog.Logger) (*FileBackend, error) {
	if strings.TrimSpace(key) == "" {
		key = DefaultKey
	}
	if strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("storage key %q must not contain path separators", key)
	}
	dir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &FileBackend{path: filepath.Join(dir, key+".json"), log: log}, nil
}

// Path returns the state file location.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(ctx context.Context) domain.AppState {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			b.log.DebugContext(ctx, "no persisted state, starting empty", slog.String("path", b.path))
		} else {
			b.log.ErrorContext(ctx, "read state failed, starting empty", slog.String("path", b.path), slog.Any("error", err))
		}
		return domain.Empty()
	}
	state, err := Decode(data)
	if err != nil {
		b.log.ErrorContext(ctx, "failed to load state, starting empty", slog.String("path", b.path), slog.Any("error", err))
		return domain.Empty()
	}
	return state
}

func (b *FileBackend) Save(ctx context.Context, state domain.AppState) error {
	data, err := Encode(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := writeFileAtomic(b.path, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
