package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TempDir is a scoped temporary directory. Release removes it and may be
// called any number of times.
type TempDir struct {
	Path string
	once sync.Once
	err  error
}

// NewTempDir creates a temporary directory under parent (the system temp
// directory when parent is empty).
func NewTempDir(parent, pattern string) (*TempDir, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return nil, fmt.Errorf("create temp parent %s: %w", parent, err)
		}
	}
	dir, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempDir{Path: dir}, nil
}

// Release deletes the directory tree.
func (t *TempDir) Release() error {
	t.once.Do(func() {
		t.err = RemoveHarder(t.Path)
	})
	return t.err
}

// TempFile is a scoped temporary file created next to its final
// destination so that Commit can rename it into place.
type TempFile struct {
	*os.File
	dest      string
	committed bool
}

// NewTempFile creates a temporary file in the directory of dest, creating
// that directory if needed.
func NewTempFile(dest string) (*TempFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".delta-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &TempFile{File: f, dest: dest}, nil
}

// Commit closes the temporary file, makes it world-readable and moves it
// over its destination, removing any file already there.
func (t *TempFile) Commit() error {
	tempPath := t.Name()
	if err := t.Chmod(0o644); err != nil { //nolint:gosec // package files are world-readable
		_ = t.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := t.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := Replace(tempPath, t.dest); err != nil {
		return err
	}
	t.committed = true
	return nil
}

// Release closes and removes the temporary file unless it was committed.
func (t *TempFile) Release() {
	if t.committed {
		return
	}
	_ = t.Close()              //nolint:errcheck // may already be closed
	_ = RemoveHarder(t.Name()) //nolint:errcheck // best-effort cleanup
}

// Replace moves src to dst. An existing dst is deleted first and missing
// parent directories of dst are created.
func Replace(src, dst string) error {
	if err := RemoveHarder(dst); err != nil {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename to %s: %w", dst, err)
	}
	return nil
}
