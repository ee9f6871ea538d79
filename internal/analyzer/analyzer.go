// Package analyzer runs the rule engine over input artifacts, consulting
// the result cache and recording per-file metrics.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chris-regnier/ctrap/internal/cache"
	"github.com/chris-regnier/ctrap/internal/input"
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/rules"
	"github.com/chris-regnier/ctrap/internal/source"
)

var tracer = otel.Tracer("github.com/chris-regnier/ctrap/internal/analyzer")

// Result is the outcome of one Analyze call.
type Result struct {
	Issues     []issue.Issue   `json:"issues"`
	Failures   []rules.Failure `json:"failures,omitempty"`
	Files      int             `json:"files"`
	Rules      int             `json:"rules"`
	CacheHits  int             `json:"cache_hits"`
	Suppressed int             `json:"suppressed"`
	Duration   time.Duration   `json:"duration"`
}

// Report converts the result into an engine report.
func (r *Result) Report() *rules.Report {
	return &rules.Report{
		Issues:     r.Issues,
		Failures:   r.Failures,
		Files:      r.Files,
		Rules:      r.Rules,
		Suppressed: r.Suppressed,
		Duration:   r.Duration,
	}
}

// Analyzer parses artifacts and checks them with a rule registry.
type Analyzer struct {
	reg      *rules.Registry
	cache    cache.Manager
	recorder *metrics.Recorder
}

type Option func(*Analyzer)

// WithCache enables result caching. A nil manager disables it.
func WithCache(m cache.Manager) Option {
	return func(a *Analyzer) { a.cache = m }
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(a *Analyzer) { a.recorder = r }
}

func NewAnalyzer(reg *rules.Registry, opts ...Option) *Analyzer {
	a := &Analyzer{reg: reg, recorder: metrics.NoOpRecorder()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) Registry() *rules.Registry { return a.reg }

// pending tracks one artifact through lookup, parse and check.
type pending struct {
	art    input.Artifact
	key    cache.Key
	run    *metrics.FileRun
	file   *source.File
	cached *cache.Entry
	failed *rules.Failure
}

// Analyze checks every artifact. Issues keep artifact order. A file that
// fails to parse becomes a Failure and does not stop the batch. Only files
// checked without failures are written to the cache.
func (a *Analyzer) Analyze(ctx context.Context, artifacts []input.Artifact) (*Result, error) {
	return a.analyze(ctx, artifacts, a.cache)
}

// AnalyzeSource checks a single in-memory source without the cache.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path, content string) (*Result, error) {
	return a.analyze(ctx, []input.Artifact{{Path: path, Content: content, Encoding: "utf-8"}}, nil)
}

func (a *Analyzer) analyze(ctx context.Context, artifacts []input.Artifact, store cache.Manager) (*Result, error) {
	ctx, span := tracer.Start(ctx, "analyze",
		trace.WithAttributes(attribute.Int("ctrap.artifacts", len(artifacts))))
	defer span.End()
	start := time.Now()

	fingerprint := a.reg.Fingerprint()
	items := make([]*pending, len(artifacts))
	var toCheck []*source.File
	// checkIndex maps an item to its position in toCheck and the report.
	checkIndex := map[*pending]int{}

	for i, art := range artifacts {
		p := &pending{art: art, run: a.recorder.StartFile(art.Path, []byte(art.Content))}
		items[i] = p
		p.key = cache.NewKey(art.Path, []byte(art.Content), fingerprint)

		if store != nil {
			entry, err := store.Get(ctx, p.key)
			switch {
			case err == nil:
				p.cached = entry
				p.run.WithCache(metrics.CacheHit)
				continue
			case errors.Is(err, cache.ErrCacheMiss):
				p.run.WithCache(metrics.CacheMiss)
			default:
				slog.Warn("cache lookup failed", "file", art.Path, "err", err)
				p.run.WithCache(metrics.CacheMiss)
			}
		}

		f, err := source.Parse(ctx, art.Path, []byte(art.Content), art.Encoding)
		if err != nil {
			p.failed = &rules.Failure{File: art.Path, Err: err, Reason: err.Error()}
			continue
		}
		p.run.Parsed()
		p.file = f
		checkIndex[p] = len(toCheck)
		toCheck = append(toCheck, f)
	}
	defer func() {
		for _, f := range toCheck {
			f.Close()
		}
	}()

	report, checkErr := a.reg.Check(ctx, toCheck)
	if report == nil {
		report = &rules.Report{}
	}

	res := &Result{Files: len(artifacts), Rules: report.Rules}
	if res.Rules == 0 {
		res.Rules = len(a.reg.Enabled())
	}
	for _, p := range items {
		switch {
		case p.cached != nil:
			res.CacheHits++
			res.Issues = append(res.Issues, p.cached.Issues...)
			res.Suppressed += p.cached.Suppressed
			p.run.WithRules(res.Rules).Complete(len(p.cached.Issues), 0, p.cached.Suppressed)

		case p.failed != nil:
			res.Failures = append(res.Failures, *p.failed)
			p.run.CompleteWithError(p.failed.Err)

		default:
			path := p.art.Path
			var fr rules.FileResult
			if i := checkIndex[p]; i < len(report.PerFile) {
				fr = report.PerFile[i]
			}
			issues, failures, suppressed := fr.Issues, fr.Failures, fr.Suppressed
			res.Issues = append(res.Issues, issues...)
			res.Failures = append(res.Failures, failures...)
			res.Suppressed += suppressed
			p.run.WithRules(res.Rules).Complete(len(issues), len(failures), suppressed)

			if store != nil && len(failures) == 0 && checkErr == nil {
				entry := &cache.Entry{Key: p.key, Issues: issues, Suppressed: suppressed}
				if err := store.Put(ctx, entry); err != nil {
					slog.Warn("cache store failed", "file", path, "err", err)
				}
			}
		}
	}
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("ctrap.issues", len(res.Issues)),
		attribute.Int("ctrap.cache_hits", res.CacheHits),
	)
	if checkErr != nil {
		return res, fmt.Errorf("checking files: %w", checkErr)
	}
	return res, nil
}
