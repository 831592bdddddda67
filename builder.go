package deltapkg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/deltapkg/internal/archive"
	"github.com/meigma/deltapkg/internal/deltacodec"
	"github.com/meigma/deltapkg/internal/fsutil"
	"github.com/meigma/deltapkg/internal/metrics"
	"github.com/meigma/deltapkg/internal/pathutil"
)

// DefaultManagedDir is the top-level directory diffed by default.
const DefaultManagedDir = "lib"

// fileCodec encodes and decodes single-file deltas.
type fileCodec interface {
	Encode(s deltacodec.Strategy, oldPath, newPath string, w io.Writer) deltacodec.Result
	Decode(s deltacodec.Strategy, basePath string, artifact io.Reader, w io.Writer) deltacodec.Result
}

// Builder creates and applies delta packages.
//
// A Builder is safe for concurrent use; each call works in its own scratch
// directories.
type Builder struct {
	logger            *slog.Logger
	recorder          metrics.Recorder
	codec             fileCodec
	managedDir        string
	structuralExts    []string
	maxStructuralSize int64
	workers           int
	tempDir           string
	compressionLevel  int
}

// New creates a Builder with the given options.
func New(opts ...Option) *Builder {
	b := &Builder{
		logger:            slog.New(slog.DiscardHandler),
		recorder:          metrics.NoopRecorder{},
		managedDir:        DefaultManagedDir,
		structuralExts:    deltacodec.DefaultStructuralExtensions,
		maxStructuralSize: deltacodec.DefaultMaxStructuralSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.codec = deltacodec.New(deltacodec.WithMaxStructuralSize(b.maxStructuralSize))
	return b
}

var defaultBuilder = New()

// CreateDeltaPackage builds a delta package with the default Builder.
func CreateDeltaPackage(ctx context.Context, base, target ReleasePackage, outputPath string) (ReleasePackage, error) {
	return defaultBuilder.CreateDeltaPackage(ctx, base, target, outputPath)
}

// ApplyDeltaPackage applies a delta package with the default Builder.
func ApplyDeltaPackage(ctx context.Context, base, delta ReleasePackage, outputPath string) (ReleasePackage, error) {
	return defaultBuilder.ApplyDeltaPackage(ctx, base, delta, outputPath)
}

// CreateDeltaPackage writes to outputPath a delta package that turns base
// into target.
//
// Files under the managed directory of target are stored as new files,
// unchanged markers or diffs against base. All other files are stored
// verbatim. Nothing is written to outputPath unless every file was
// processed.
func (b *Builder) CreateDeltaPackage(ctx context.Context, base, target ReleasePackage, outputPath string) (_ ReleasePackage, err error) {
	start := time.Now()
	defer func() {
		b.recorder.ObserveDuration(metrics.OperationCreate, time.Since(start), err == nil)
	}()

	if base.Version == nil || target.Version == nil {
		return ReleasePackage{}, fmt.Errorf("%w: package version not set", ErrInvalidPackageName)
	}
	if base.Version.GreaterThan(target.Version) {
		return ReleasePackage{}, fmt.Errorf("%w: cannot create delta from %s to %s", ErrVersionOrder, base.Version, target.Version)
	}
	if err := base.checkExists("base"); err != nil {
		return ReleasePackage{}, err
	}
	if err := target.checkExists("target"); err != nil {
		return ReleasePackage{}, err
	}
	if err := checkOutput(outputPath); err != nil {
		return ReleasePackage{}, err
	}

	baseDir, err := fsutil.NewTempDir(b.tempDir, "deltapkg-base-*")
	if err != nil {
		return ReleasePackage{}, err
	}
	defer b.release(baseDir)
	deltaDir, err := fsutil.NewTempDir(b.tempDir, "deltapkg-delta-*")
	if err != nil {
		return ReleasePackage{}, err
	}
	defer b.release(deltaDir)

	b.logger.Debug("extracting packages",
		slog.String("base", base.Path),
		slog.String("target", target.Path))
	if err := archive.Extract(ctx, base.Path, baseDir.Path); err != nil {
		return ReleasePackage{}, fmt.Errorf("extract base package: %w", err)
	}
	if err := archive.Extract(ctx, target.Path, deltaDir.Path); err != nil {
		return ReleasePackage{}, fmt.Errorf("extract target package: %w", err)
	}

	baseIndex, err := b.indexManaged(baseDir.Path)
	if err != nil {
		return ReleasePackage{}, err
	}
	targetFiles, err := listTree(deltaDir.Path)
	if err != nil {
		return ReleasePackage{}, err
	}

	var managed []treeFile
	for _, f := range targetFiles {
		if pathutil.IsManaged(f.Rel, b.managedDir) {
			managed = append(managed, f)
		}
	}
	if len(managed) == 0 {
		b.logger.Warn("target package has no managed files",
			slog.String("dir", b.managedDir),
			slog.String("package", target.Path))
	}

	if err := b.diffTree(ctx, deltaDir.Path, managed, baseIndex); err != nil {
		return ReleasePackage{}, err
	}

	added, err := archive.RegisterDeltaContentTypes(deltaDir.Path)
	if err != nil {
		return ReleasePackage{}, err
	}
	if len(added) > 0 {
		b.logger.Debug("registered content types", slog.Any("extensions", added))
	}

	if err := b.pack(ctx, deltaDir.Path, outputPath); err != nil {
		return ReleasePackage{}, err
	}
	b.logger.Info("created delta package",
		slog.String("path", outputPath),
		slog.String("version", target.Version.String()))
	return ReleasePackage{Version: target.Version, Path: outputPath}, nil
}

// indexManaged maps the relative paths of managed files under root to
// their absolute paths.
func (b *Builder) indexManaged(root string) (map[string]string, error) {
	files, err := listTree(root)
	if err != nil {
		return nil, err
	}
	index := make(map[string]string, len(files))
	for _, f := range files {
		if pathutil.IsManaged(f.Rel, b.managedDir) {
			index[f.Rel] = f.Path
		}
	}
	return index, nil
}

// diffTree replaces every managed file under deltaRoot that also exists in
// the base package with its delta artifacts.
func (b *Builder) diffTree(ctx context.Context, deltaRoot string, files []treeFile, baseIndex map[string]string) error {
	workers := b.workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		if err := gctx.Err(); err != nil {
			break
		}
		basePath, ok := baseIndex[f.Rel]
		if !ok {
			b.logger.Info("not found in base package, marking as new", slog.String("path", f.Rel))
			b.recorder.IncFiles(metrics.OperationCreate, "new")
			continue
		}
		g.Go(func() error {
			return b.diffFile(gctx, f, basePath)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (b *Builder) pack(ctx context.Context, dir, outputPath string) error {
	b.logger.Debug("repacking", slog.String("path", outputPath))
	if err := archive.Create(ctx, dir, outputPath, archive.Options{Level: b.compressionLevel}); err != nil {
		return fmt.Errorf("write package %s: %w", outputPath, err)
	}
	return nil
}

func (b *Builder) release(dir *fsutil.TempDir) {
	if err := dir.Release(); err != nil {
		b.logger.Warn("failed to remove scratch directory",
			slog.String("path", dir.Path),
			slog.Any("error", err))
	}
}
