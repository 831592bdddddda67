// Package config loads deltapkg settings from a YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/meigma/deltapkg"
	"github.com/meigma/deltapkg/internal/deltacodec"
	"github.com/meigma/deltapkg/internal/metrics"
)

// Deflate levels accepted by the archive writer.
const (
	minCompressionLevel = -2
	maxCompressionLevel = 9
)

// DefaultEnvFiles are loaded by LoadEnv when no files are given.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Config holds builder settings. Zero values in a file keep the defaults.
type Config struct {
	ManagedDir           string   `yaml:"managed_dir"`
	StructuralExtensions []string `yaml:"structural_extensions"`
	// MaxStructuralSize is in bytes. Zero disables the limit.
	MaxStructuralSize int64  `yaml:"max_structural_size"`
	Workers           int    `yaml:"workers"`
	TempDir           string `yaml:"temp_dir"`
	CompressionLevel  int    `yaml:"compression_level"`
	MetricsFile       string `yaml:"metrics_file"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		ManagedDir:           deltapkg.DefaultManagedDir,
		StructuralExtensions: append([]string(nil), deltacodec.DefaultStructuralExtensions...),
		MaxStructuralSize:    deltacodec.DefaultMaxStructuralSize,
		Workers:              1,
	}
}

// LoadEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load env file %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// Load reads the YAML file at path on top of Default. An empty path
// returns the defaults. Environment variables in the file are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is user supplied
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := cfg.decode(bytes.NewReader([]byte(os.ExpandEnv(string(data))))); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.ManagedDir == "" {
		return errors.New("managed_dir must not be empty")
	}
	if strings.ContainsAny(c.ManagedDir, `/\`) {
		return fmt.Errorf("managed_dir must be a single directory name, got %q", c.ManagedDir)
	}
	for _, ext := range c.StructuralExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("structural extension %q must start with a dot", ext)
		}
	}
	if c.MaxStructuralSize < 0 {
		return fmt.Errorf("max_structural_size must be >= 0, got %d", c.MaxStructuralSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.CompressionLevel < minCompressionLevel || c.CompressionLevel > maxCompressionLevel {
		return fmt.Errorf("compression_level must be between %d and %d, got %d",
			minCompressionLevel, maxCompressionLevel, c.CompressionLevel)
	}
	return nil
}

// Options converts the settings into builder options.
func (c *Config) Options(logger *slog.Logger, rec metrics.Recorder) []deltapkg.Option {
	return []deltapkg.Option{
		deltapkg.WithLogger(logger),
		deltapkg.WithRecorder(rec),
		deltapkg.WithManagedDir(c.ManagedDir),
		deltapkg.WithStructuralExtensions(c.StructuralExtensions...),
		deltapkg.WithMaxStructuralSize(c.MaxStructuralSize),
		deltapkg.WithWorkers(c.Workers),
		deltapkg.WithTempDir(c.TempDir),
		deltapkg.WithCompressionLevel(c.CompressionLevel),
	}
}
