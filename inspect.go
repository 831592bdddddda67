package deltapkg

import (
	"context"
	_ "crypto/sha256" // registers digest.SHA256
	"fmt"

	"github.com/klauspost/compress/zip"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/deltapkg/internal/archive"
)

// EntryInfo describes one file of a delta package.
type EntryInfo struct {
	// Path is the slash-separated path inside the package.
	Path string
	Kind EntryKind
	// Size is the uncompressed size in bytes.
	Size uint64
	// Digest is the sha256 digest of the uncompressed content.
	Digest digest.Digest
}

// Inspect lists the entries of the delta package at path with the
// default Builder.
func Inspect(ctx context.Context, path string) ([]EntryInfo, error) {
	return defaultBuilder.Inspect(ctx, path)
}

// Inspect lists the entries of the delta package at path, classified the
// way ApplyDeltaPackage would treat them. The package is read in place.
func (b *Builder) Inspect(ctx context.Context, path string) ([]EntryInfo, error) {
	if err := (ReleasePackage{Path: path}).checkExists("delta"); err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", path, err)
	}
	defer zr.Close()

	files := make([]treeFile, 0, len(zr.File))
	digests := make(map[string]digest.Digest, len(zr.File))
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		name, ok := archive.EntryName(f.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", archive.ErrUnsafePath, f.Name)
		}
		d, err := digestEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		digests[name] = d
		files = append(files, treeFile{Rel: name, Size: int64(f.UncompressedSize64)}) //nolint:gosec // zip sizes fit in int64
	}

	classified := classify(files, b.managedDir)
	infos := make([]EntryInfo, 0, len(classified))
	for _, e := range classified {
		infos = append(infos, EntryInfo{
			Path:   e.Rel,
			Kind:   e.Kind,
			Size:   uint64(e.Size), //nolint:gosec // sizes are non-negative
			Digest: digests[e.Rel],
		})
	}
	return infos, nil
}

func digestEntry(f *zip.File) (digest.Digest, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return digest.FromReader(rc)
}

// Summarize counts entries per kind.
func Summarize(entries []EntryInfo) map[EntryKind]int {
	counts := make(map[EntryKind]int)
	for _, e := range entries {
		counts[e.Kind]++
	}
	return counts
}
