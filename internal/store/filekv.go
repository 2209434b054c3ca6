package store

import (
	"errors"
	"fmt"

	"github.com/hack-pad/hackpadfs"
)

// FileKV persists each key as a single file on a hackpadfs filesystem.
// In the browser the filesystem is IndexedDB-backed; tests use hackpadfs/mem.
// Keys must not contain path separators.
type FileKV struct {
	fs hackpadfs.FS
}

// NewFileKV creates a file-backed store over fs.
func NewFileKV(fs hackpadfs.FS) *FileKV {
	return &FileKV{fs: fs}
}

func (s *FileKV) Get(key string) (string, bool) {
	content, err := hackpadfs.ReadFile(s.fs, key)
	if err != nil {
		// Missing file or unreadable FS both count as a cache miss.
		return "", false
	}
	return string(content), true
}

func (s *FileKV) Set(key, value string) error {
	if err := hackpadfs.WriteFullFile(s.fs, key, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *FileKV) Remove(key string) error {
	err := hackpadfs.Remove(s.fs, key)
	if err != nil && !errors.Is(err, hackpadfs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Close is a no-op; the filesystem is owned by the caller.
func (s *FileKV) Close() error {
	return nil
}

// Compile-time interface check
var _ KV = (*FileKV)(nil)
