package deltapkg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/meigma/deltapkg/internal/checksum"
	"github.com/meigma/deltapkg/internal/deltacodec"
	"github.com/meigma/deltapkg/internal/fsutil"
	"github.com/meigma/deltapkg/internal/metrics"
)

// diffFile replaces the target copy of f with the artifacts describing it
// relative to basePath: the delta itself and its checksum sidecar.
func (b *Builder) diffFile(ctx context.Context, f treeFile, basePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	equal, err := fsutil.FilesEqual(basePath, f.Path)
	if err != nil {
		return fmt.Errorf("compare %s: %w", f.Rel, err)
	}

	plan := deltacodec.Plan(filepath.Ext(f.Rel), equal, b.structuralExts)
	attempts := make([]deltacodec.Result, 0, len(plan))
	var chosen deltacodec.Result
	succeeded := false
	for _, s := range plan {
		res := b.writeArtifact(s, basePath, f.Path)
		attempts = append(attempts, res)
		if res.OK() {
			chosen, succeeded = res, true
			break
		}
		b.recorder.IncFallback(s.String(), res.Status.String())
		b.logger.Warn("delta strategy failed",
			slog.String("path", f.Rel),
			slog.String("strategy", s.String()),
			slog.String("status", res.Status.String()),
			slog.Any("error", res.Err))
	}
	if !succeeded {
		return &DiffError{Path: f.Rel, Attempts: attempts}
	}

	if err := b.writeSidecar(chosen.Strategy, f); err != nil {
		return err
	}
	if chosen.Strategy == deltacodec.ByteLevel {
		placeholder := f.Path + deltacodec.SuffixDiff
		if err := os.WriteFile(placeholder, []byte(deltacodec.PlaceholderContent), 0o644); err != nil { //nolint:gosec // package content is not secret
			return fmt.Errorf("write placeholder for %s: %w", f.Rel, err)
		}
	}
	if err := fsutil.RemoveHarder(f.Path); err != nil {
		return fmt.Errorf("remove %s: %w", f.Rel, err)
	}

	b.recorder.IncFiles(metrics.OperationCreate, chosen.Strategy.String())
	b.logger.Debug("diffed file",
		slog.String("path", f.Rel),
		slog.String("strategy", chosen.Strategy.String()))
	return nil
}

// writeArtifact encodes the delta for strategy s next to newPath. A failed
// attempt leaves no artifact behind.
func (b *Builder) writeArtifact(s deltacodec.Strategy, basePath, newPath string) deltacodec.Result {
	artifact := newPath + s.Suffix()
	out, err := os.Create(artifact) //nolint:gosec // path is inside the scratch tree
	if err != nil {
		return deltacodec.Result{Strategy: s, Status: deltacodec.StatusIOError, Err: err}
	}

	res := b.codec.Encode(s, basePath, newPath, out)
	if res.OK() && s != deltacodec.Unchanged {
		// A zero-length artifact reads as "unchanged" when applied.
		if info, statErr := out.Stat(); statErr != nil {
			res = deltacodec.Result{Strategy: s, Status: deltacodec.StatusIOError, Err: statErr}
		} else if info.Size() == 0 {
			res = deltacodec.Result{Strategy: s, Status: deltacodec.StatusFailed, Err: ErrEmptyArtifact}
		}
	}
	if closeErr := out.Close(); closeErr != nil && res.OK() {
		res = deltacodec.Result{Strategy: s, Status: deltacodec.StatusIOError, Err: closeErr}
	}
	if !res.OK() {
		_ = fsutil.RemoveHarder(artifact) //nolint:errcheck // best-effort cleanup
	}
	return res
}

// writeSidecar records the checksum of the target file. Unchanged files
// get an empty sidecar.
func (b *Builder) writeSidecar(s deltacodec.Strategy, f treeFile) error {
	sidecar := f.Path + deltacodec.SuffixSidecar
	if s == deltacodec.Unchanged {
		if err := os.WriteFile(sidecar, nil, 0o644); err != nil { //nolint:gosec // package content is not secret
			return fmt.Errorf("write checksum for %s: %w", f.Rel, err)
		}
		return nil
	}

	rec, err := checksum.FromFile(f.Path, path.Base(f.Rel)+deltacodec.SuffixSidecar)
	if err != nil {
		return fmt.Errorf("checksum %s: %w", f.Rel, err)
	}
	if err := checksum.WriteFile(sidecar, rec); err != nil {
		return fmt.Errorf("write checksum for %s: %w", f.Rel, err)
	}
	return nil
}
