// Package archive reads and writes the zip containers that carry release
// packages.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/meigma/deltapkg/internal/fsutil"
)

// Sentinel errors for archive operations.
var (
	// ErrUnsafePath is returned when an entry name would escape the
	// extraction directory.
	ErrUnsafePath = errors.New("archive: unsafe entry path")

	// ErrExists is returned when the archive to create already exists.
	ErrExists = errors.New("archive: output already exists")
)

// Options configures archive creation.
type Options struct {
	// Level is the deflate level. Zero selects flate.BestSpeed.
	Level int
}

// EntryName normalizes a zip entry name to a clean slash-separated
// relative path. It reports false for names that are not safe to extract.
func EntryName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return "", false
	}
	name = path.Clean(name)
	if !fs.ValidPath(name) || name == "." {
		return "", false
	}
	return name, true
}

// Extract unpacks the zip archive at src into dir. Directory entries are
// recreated; file modification times are preserved.
func Extract(ctx context.Context, src, dir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", src, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()

	buf := make([]byte, 32*1024)
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, ok := EntryName(f.Name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnsafePath, f.Name)
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := root.MkdirAll(filepath.FromSlash(name), 0o750); err != nil {
				return fmt.Errorf("create directory %s: %w", name, err)
			}
			continue
		}
		if err := extractFile(ctx, root, f, name, buf); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(ctx context.Context, root *os.Root, f *zip.File, name string, buf []byte) error {
	fsPath := filepath.FromSlash(name)
	if dir := filepath.Dir(fsPath); dir != "." {
		if err := root.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", name, err)
	}
	defer rc.Close()

	out, err := root.OpenFile(fsPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := fsutil.CopyWithContext(ctx, out, rc, buf); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if !f.Modified.IsZero() {
		_ = root.Chtimes(fsPath, f.Modified, f.Modified) //nolint:errcheck // times are best effort
	}
	return nil
}

// Create packs every regular file under dir into a new zip archive at dst.
// Entries are written in lexical path order with slash-separated names.
// The archive is assembled in a temporary file and renamed into place, so
// dst never holds a partial archive. Create refuses to replace an existing
// dst.
func Create(ctx context.Context, dir, dst string, opts Options) (err error) {
	if _, statErr := os.Stat(dst); statErr == nil {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}

	tmp, err := fsutil.NewTempFile(dst)
	if err != nil {
		return err
	}
	defer tmp.Release()

	level := opts.Level
	if level == 0 {
		level = flate.BestSpeed
	}

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	if err := addTree(ctx, zw, dir); err != nil {
		_ = zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}

	if _, statErr := os.Stat(dst); statErr == nil {
		return fmt.Errorf("%w: %s", ErrExists, dst)
	}
	return tmp.Commit()
}

func addTree(ctx context.Context, zw *zip.Writer, dir string) error {
	buf := make([]byte, 32*1024)
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("add %s: %w", hdr.Name, err)
		}
		f, err := os.Open(p) //nolint:gosec // path comes from WalkDir under dir
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := fsutil.CopyWithContext(ctx, w, f, buf); err != nil {
			return fmt.Errorf("add %s: %w", hdr.Name, err)
		}
		return nil
	})
}
