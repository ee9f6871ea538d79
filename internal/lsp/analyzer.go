package lsp

import (
	"context"
	"log/slog"
	"time"

	"github.com/chris-regnier/ctrap/internal/analyzer"
	"github.com/chris-regnier/ctrap/internal/cache"
	"github.com/chris-regnier/ctrap/internal/input"
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/rules"
)

// Backend is what the server needs from the analysis engine.
type Backend interface {
	Analyze(ctx context.Context, path, content string) ([]issue.Issue, error)
	ApplyTemplate(name string) error
	ClearCache(ctx context.Context) error
}

// Engine serves a Backend from a rule registry and a result cache.
type Engine struct {
	reg   *rules.Registry
	cache cache.Manager
	a     *analyzer.Analyzer
}

// NewEngine builds an Engine. A nil cache disables caching.
func NewEngine(reg *rules.Registry, c cache.Manager, rec *metrics.Recorder) *Engine {
	opts := []analyzer.Option{analyzer.WithRecorder(rec)}
	if c != nil {
		opts = append(opts, analyzer.WithCache(c))
	}
	return &Engine{reg: reg, cache: c, a: analyzer.NewAnalyzer(reg, opts...)}
}

// NewCache returns an in-memory cache in front of the on-disk cache in dir.
// An empty dir gives a memory-only cache.
func NewCache(dir string, ttl time.Duration) cache.Manager {
	fast := cache.NewMemory(cache.WithMaxSize(1000), cache.WithTTL(ttl))
	if dir == "" {
		return cache.NewTiered(fast, nil)
	}
	return cache.NewTiered(fast, cache.NewLocalCache(dir, ttl))
}

// Analyze checks one open document. Rule failures are logged; the issues
// from the rules that ran are still returned.
func (e *Engine) Analyze(ctx context.Context, path, content string) ([]issue.Issue, error) {
	res, err := e.a.Analyze(ctx, []input.Artifact{{Path: path, Content: content, Encoding: "utf-8", Kind: input.KindFile}})
	if err != nil {
		return nil, err
	}
	for _, f := range res.Failures {
		slog.Warn("rule failure", "rule", f.RuleID, "file", f.File, "reason", f.Reason)
	}
	return res.Issues, nil
}

// ApplyTemplate switches the registry to a template. Cached results keyed
// on the old settings stop matching.
func (e *Engine) ApplyTemplate(name string) error {
	return e.reg.ApplyTemplate(name)
}

func (e *Engine) ClearCache(ctx context.Context) error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Clear(ctx)
}
