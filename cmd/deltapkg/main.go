// Command deltapkg creates, applies and inspects delta update packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/deltapkg"
	"github.com/meigma/deltapkg/internal/config"
	"github.com/meigma/deltapkg/internal/metrics"
)

// CLI holds the global flags and subcommands.
type CLI struct {
	Config      string           `short:"c" help:"Configuration file path" type:"path" env:"DELTAPKG_CONFIG"`
	Verbose     bool             `short:"v" help:"Enable debug logging" env:"DELTAPKG_VERBOSE"`
	MetricsFile string           `name:"metrics-file" help:"Write Prometheus metrics to this file on exit" type:"path" env:"DELTAPKG_METRICS_FILE"`
	ManagedDir  string           `name:"managed-dir" help:"Top-level directory to diff (overrides config)" env:"DELTAPKG_MANAGED_DIR"`
	Workers     int              `help:"Files diffed concurrently (overrides config when > 0)" env:"DELTAPKG_WORKERS"`
	TempDir     string           `name:"temp-dir" help:"Parent directory for scratch trees" type:"path" env:"DELTAPKG_TEMP_DIR"`
	Version     kong.VersionFlag `name:"version" help:"Show version and exit"`

	Create  CreateCmd  `cmd:"" help:"Create a delta package from two full packages"`
	Apply   ApplyCmd   `cmd:"" help:"Rebuild a full package from a base package and a delta"`
	Inspect InspectCmd `cmd:"" help:"List the entries of a delta package"`
}

// Global carries state shared by subcommands.
type Global struct {
	Ctx     context.Context
	Logger  *slog.Logger
	Builder *deltapkg.Builder
}

var version = "dev"

func main() {
	if _, err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "deltapkg: %v\n", err)
		os.Exit(1)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("deltapkg"),
		kong.Description("Create and apply delta update packages."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	if err := run(kctx, &cli); err != nil {
		slog.Error("command failed", slog.String("command", kctx.Command()), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(kctx *kong.Context, cli *CLI) error {
	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	var rec metrics.Recorder = metrics.NoopRecorder{}
	if cfg.MetricsFile != "" {
		rec = metrics.NewPrometheusRecorder(reg)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g := &Global{
		Ctx:     ctx,
		Logger:  logger,
		Builder: deltapkg.New(cfg.Options(logger, rec)...),
	}
	runErr := kctx.Run(g)

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			logger.Warn("failed to write metrics", slog.String("path", cfg.MetricsFile), slog.Any("error", err))
		}
	}
	return runErr
}

// loadConfig reads the config file and applies flag overrides.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.ManagedDir != "" {
		cfg.ManagedDir = c.ManagedDir
	}
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	if c.TempDir != "" {
		cfg.TempDir = c.TempDir
	}
	if c.MetricsFile != "" {
		cfg.MetricsFile = c.MetricsFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
