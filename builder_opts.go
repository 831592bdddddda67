package deltapkg

import (
	"log/slog"

	"github.com/meigma/deltapkg/internal/metrics"
)

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger for build and apply progress.
// By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithManagedDir sets the top-level directory whose files are diffed.
// The name is matched case-insensitively. Defaults to "lib".
func WithManagedDir(name string) Option {
	return func(b *Builder) {
		if name != "" {
			b.managedDir = name
		}
	}
}

// WithStructuralExtensions sets the file extensions (with leading dot)
// that are diffed with the structural strategy before falling back to the
// byte-level one. Defaults to .exe, .dll and .node.
func WithStructuralExtensions(exts ...string) Option {
	return func(b *Builder) {
		b.structuralExts = append([]string(nil), exts...)
	}
}

// WithMaxStructuralSize skips the structural strategy for files larger
// than limit bytes. Set limit to 0 to disable the limit.
func WithMaxStructuralSize(limit int64) Option {
	return func(b *Builder) {
		b.maxStructuralSize = limit
	}
}

// WithWorkers sets the number of files diffed concurrently while building.
// Values <= 1 diff serially. Applying is always serial.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		b.workers = n
	}
}

// WithTempDir sets the parent directory for scratch trees. By default the
// system temp directory is used.
func WithTempDir(dir string) Option {
	return func(b *Builder) {
		b.tempDir = dir
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) {
		if r != nil {
			b.recorder = r
		}
	}
}

// WithCompressionLevel sets the deflate level of written archives.
// Zero selects the fastest level.
func WithCompressionLevel(level int) Option {
	return func(b *Builder) {
		b.compressionLevel = level
	}
}
