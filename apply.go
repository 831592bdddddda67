package deltapkg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/meigma/deltapkg/internal/archive"
	"github.com/meigma/deltapkg/internal/deltacodec"
	"github.com/meigma/deltapkg/internal/fsutil"
	"github.com/meigma/deltapkg/internal/metrics"
	"github.com/meigma/deltapkg/internal/pathutil"
)

// ApplyDeltaPackage reconstructs the full package described by delta on
// top of base and writes it to outputPath.
//
// Every reconstructed file that has a checksum record is verified. Managed
// files of base that the delta does not mention are removed. Files outside
// the managed directory are taken from the delta as-is. Nothing is written
// to outputPath unless every file was reconstructed and verified.
func (b *Builder) ApplyDeltaPackage(ctx context.Context, base, delta ReleasePackage, outputPath string) (_ ReleasePackage, err error) {
	start := time.Now()
	defer func() {
		b.recorder.ObserveDuration(metrics.OperationApply, time.Since(start), err == nil)
	}()

	if err := base.checkExists("base"); err != nil {
		return ReleasePackage{}, err
	}
	if err := delta.checkExists("delta"); err != nil {
		return ReleasePackage{}, err
	}
	if err := checkOutput(outputPath); err != nil {
		return ReleasePackage{}, err
	}

	deltaDir, err := fsutil.NewTempDir(b.tempDir, "deltapkg-delta-*")
	if err != nil {
		return ReleasePackage{}, err
	}
	defer b.release(deltaDir)
	workDir, err := fsutil.NewTempDir(b.tempDir, "deltapkg-work-*")
	if err != nil {
		return ReleasePackage{}, err
	}
	defer b.release(workDir)

	b.logger.Debug("extracting packages",
		slog.String("base", base.Path),
		slog.String("delta", delta.Path))
	if err := archive.Extract(ctx, delta.Path, deltaDir.Path); err != nil {
		return ReleasePackage{}, fmt.Errorf("extract delta package: %w", err)
	}
	if err := archive.Extract(ctx, base.Path, workDir.Path); err != nil {
		return ReleasePackage{}, fmt.Errorf("extract base package: %w", err)
	}

	files, err := listTree(deltaDir.Path)
	if err != nil {
		return ReleasePackage{}, err
	}
	entries := classify(files, b.managedDir)

	p := &patcher{
		Builder:   b,
		deltaRoot: deltaDir.Path,
		workRoot:  workDir.Path,
		visited:   make(map[string][]string),
	}
	if err := p.run(ctx, entries); err != nil {
		return ReleasePackage{}, err
	}

	if err := b.pack(ctx, workDir.Path, outputPath); err != nil {
		return ReleasePackage{}, err
	}
	b.logger.Info("applied delta package", slog.String("path", outputPath))
	return ReleasePackage{Version: delta.Version, Path: outputPath}, nil
}

// patcher rewrites the working copy of a base package into the target
// package.
type patcher struct {
	*Builder
	deltaRoot string
	workRoot  string
	// visited maps the lower-cased target path of every dispatched entry to
	// the exact target paths sharing that key.
	visited map[string][]string
}

func (p *patcher) run(ctx context.Context, entries []classifiedEntry) error {
	for _, e := range entries {
		if e.Kind.dispatched() {
			key := pathutil.Key(e.Target)
			p.visited[key] = append(p.visited[key], e.Target)
		}
	}

	for _, e := range entries {
		if !e.Kind.dispatched() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.materialize(ctx, e); err != nil {
			return err
		}
		p.recorder.IncFiles(metrics.OperationApply, e.Kind.String())
	}

	if err := p.sweep(ctx); err != nil {
		return err
	}

	for _, e := range entries {
		if e.Kind != KindMetadata {
			continue
		}
		if err := p.install(ctx, pathutil.Join(p.deltaRoot, e.Rel), e.Rel); err != nil {
			return err
		}
		p.logger.Info("metadata file updated", slog.String("path", e.Rel))
	}
	return nil
}

// materialize writes the target of e into the working copy.
func (p *patcher) materialize(ctx context.Context, e classifiedEntry) error {
	targetPath := pathutil.Join(p.workRoot, e.Target)
	sidecarPath := pathutil.Join(p.deltaRoot, e.Target+deltacodec.SuffixSidecar)
	artifactPath := pathutil.Join(p.deltaRoot, e.Rel)

	switch e.Kind {
	case KindUnchanged:
		return p.requireBase(e.Target, targetPath)

	case KindNew:
		p.logger.Info("adding new file", slog.String("path", e.Target))
		tmp, err := fsutil.NewTempFile(targetPath)
		if err != nil {
			return err
		}
		defer tmp.Release()
		src, err := os.Open(artifactPath) //nolint:gosec // path is inside the scratch tree
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := fsutil.CopyWithContext(ctx, tmp, src, nil); err != nil {
			return fmt.Errorf("copy %s: %w", e.Target, err)
		}
		if exists(sidecarPath) {
			if err := p.verify(e.Target, sidecarPath, tmp.Name()); err != nil {
				return err
			}
		}
		return tmp.Commit()

	case KindStructural, KindByteLevel:
		if err := p.requireBase(e.Target, targetPath); err != nil {
			return err
		}
		p.logger.Debug("applying delta",
			slog.String("path", e.Target),
			slog.String("strategy", e.Kind.strategy().String()))
		tmp, err := fsutil.NewTempFile(targetPath)
		if err != nil {
			return err
		}
		defer tmp.Release()
		artifact, err := os.Open(artifactPath) //nolint:gosec // path is inside the scratch tree
		if err != nil {
			return err
		}
		defer artifact.Close()

		res := p.codec.Decode(e.Kind.strategy(), targetPath, artifact, tmp)
		if !res.OK() {
			p.logger.Warn("failed to apply delta",
				slog.String("path", e.Rel),
				slog.String("status", res.Status.String()),
				slog.Any("error", res.Err))
			return &DecodeError{Path: e.Rel, Strategy: res.Strategy, Status: res.Status, Err: res.Err}
		}
		if err := p.verify(e.Target, sidecarPath, tmp.Name()); err != nil {
			return err
		}
		return tmp.Commit()

	default:
		return nil
	}
}

func (p *patcher) requireBase(rel, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBaseFileMissing, rel)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrBaseFileMissing, rel)
	}
	return nil
}

// sweep deletes managed files of the working copy that no entry visited,
// and files whose name differs only in case from a visited target.
func (p *patcher) sweep(ctx context.Context) error {
	files, err := listTree(p.workRoot)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !pathutil.IsManaged(f.Rel, p.managedDir) {
			continue
		}
		targets, ok := p.visited[pathutil.Key(f.Rel)]
		if ok && !p.renamedByCase(f, targets) {
			continue
		}
		p.logger.Info("deleting removed file", slog.String("path", f.Rel))
		if err := fsutil.RemoveHarder(f.Path); err != nil {
			return fmt.Errorf("remove %s: %w", f.Rel, err)
		}
	}
	return nil
}

// renamedByCase reports whether f is a stale copy of one of targets that
// differs only in case. On case-insensitive filesystems f and the target
// are the same file and f is kept.
func (p *patcher) renamedByCase(f treeFile, targets []string) bool {
	if slices.Contains(targets, f.Rel) {
		return false
	}
	fi, err := os.Stat(f.Path)
	if err != nil {
		return false
	}
	for _, t := range targets {
		ti, err := os.Stat(pathutil.Join(p.workRoot, t))
		if err == nil && os.SameFile(fi, ti) {
			return false
		}
	}
	return true
}

// install copies src over the working copy file rel.
func (p *patcher) install(ctx context.Context, src, rel string) error {
	if err := fsutil.CopyFile(ctx, src, pathutil.Join(p.workRoot, rel)); err != nil {
		return fmt.Errorf("copy %s: %w", rel, err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
