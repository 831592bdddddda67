// Package testutil builds package trees and archives for tests.
package testutil

import (
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Files maps slash-separated package paths to file content.
type Files map[string][]byte

// WriteTree writes files below root, creating directories as needed.
func WriteTree(tb testing.TB, root string, files Files) {
	tb.Helper()
	for name, data := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			tb.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}
}

// ReadTree returns every regular file below root keyed by slash path.
func ReadTree(tb testing.TB, root string) Files {
	tb.Helper()
	files := make(Files)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		tb.Fatalf("read tree %s: %v", root, err)
	}
	return files
}

// WriteZip writes files as a zip archive at dst.
func WriteZip(tb testing.TB, dst string, files Files) {
	tb.Helper()
	f, err := os.Create(dst)
	if err != nil {
		tb.Fatalf("create %s: %v", dst, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("add %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
}

// ReadZip returns the files of the zip archive at path.
func ReadZip(tb testing.TB, path string) Files {
	tb.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		tb.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()

	files := make(Files)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			tb.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			tb.Fatalf("read entry %s: %v", f.Name, err)
		}
		files[f.Name] = data
	}
	return files
}

// RandomBytes returns n pseudo-random bytes determined by seed.
func RandomBytes(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.Uint32())
	}
	return data
}

// Mutate returns a copy of data with a few bytes changed and extra bytes
// appended.
func Mutate(data []byte, extra int, seed uint64) []byte {
	out := append([]byte(nil), data...)
	for i := 0; i < len(out); i += 97 {
		out[i] ^= 0x5a
	}
	return append(out, RandomBytes(extra, seed)...)
}
