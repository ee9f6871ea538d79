package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"

	"github.com/chris-regnier/ctrap/internal/checks"
	"github.com/chris-regnier/ctrap/internal/config"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/rules"
	"github.com/chris-regnier/ctrap/internal/telemetry"
)

// project is the configuration and rule registry of one project root.
type project struct {
	root string
	cfg  *config.Config
	reg  *rules.Registry
}

// loadProject loads the tiered configuration for root, registers the
// built-in and pattern rules and applies the configured template and
// overrides.
func loadProject(root string) (*project, error) {
	cfg, err := config.LoadTiered(config.MachinePath(), config.ProjectPath(root))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg := checks.NewRegistry()
	reg.Workers = cfg.Workers
	n, err := reg.RegisterPatternRules(config.UserRulesDir(), resolve(root, cfg.RulesDir))
	if err != nil {
		return nil, fmt.Errorf("loading pattern rules: %w", err)
	}
	if n > 0 {
		slog.Info("pattern rules loaded", "count", n)
	}

	cfg.TemplatesDir = resolve(root, cfg.TemplatesDir)
	if err := cfg.Apply(reg); err != nil {
		return nil, fmt.Errorf("applying config: %w", err)
	}
	return &project{root: root, cfg: cfg, reg: reg}, nil
}

// path resolves a configured path against the project root.
func (p *project) path(configured string) string {
	return resolve(p.root, configured)
}

func resolve(root, path string) string {
	if path == "" {
		return ""
	}
	path = config.ExpandHome(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// startTelemetry initializes OTLP export and returns the matching shutdown
// to defer.
func startTelemetry(ctx context.Context, cfg config.TelemetryConfig) (func(), error) {
	if cfg.ServiceVersion == "" || cfg.ServiceVersion == "dev" {
		cfg.ServiceVersion = version
	}
	shutdown, err := telemetry.Init(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}, nil
}

func stdoutIsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// observe exports the collector's counters through the global meter
// provider. The returned func unregisters them.
func observe(c *metrics.Collector) func() {
	reg, err := metrics.Observe(otel.Meter("github.com/chris-regnier/ctrap/cmd/ctrap"), c)
	if err != nil {
		slog.Warn("metrics not exported", "err", err)
		return func() {}
	}
	return func() {
		if err := reg.Unregister(); err != nil {
			slog.Debug("unregistering metrics", "err", err)
		}
	}
}
