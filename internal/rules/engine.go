package rules

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/source"
)

var (
	engineTracer = otel.Tracer("github.com/chris-regnier/ctrap/internal/rules")
	engineMeter  = otel.Meter("github.com/chris-regnier/ctrap/internal/rules")
)

// Failure records a (rule, file) pair that did not complete.
type Failure struct {
	RuleID string `json:"rule_id,omitempty"`
	File   string `json:"file"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

func (f Failure) Error() string {
	if f.RuleID == "" {
		return fmt.Sprintf("%s: %s", f.File, f.Reason)
	}
	return fmt.Sprintf("rule %s on %s: %s", f.RuleID, f.File, f.Reason)
}

// Report is the outcome of one Check batch.
type Report struct {
	Issues     []issue.Issue `json:"issues"`
	Failures   []Failure     `json:"failures,omitempty"`
	Files      int           `json:"files"`
	Rules      int           `json:"rules"`
	Suppressed int           `json:"suppressed"`
	Duration   time.Duration `json:"duration"`
	// PerFile holds each input file's share of the report, in input order.
	// Files with the same path keep separate entries.
	PerFile []FileResult `json:"-"`
}

// FileResult is one file's issues, failures and suppression count.
type FileResult struct {
	Issues     []issue.Issue
	Failures   []Failure
	Suppressed int
}

type engineInstruments struct {
	issues   metric.Int64Counter
	failures metric.Int64Counter
	fileTime metric.Float64Histogram
}

func newInstruments() engineInstruments {
	var ins engineInstruments
	ins.issues, _ = engineMeter.Int64Counter("ctrap.issues",
		metric.WithDescription("Issues reported by rules"))
	ins.failures, _ = engineMeter.Int64Counter("ctrap.rule.failures",
		metric.WithDescription("Rule invocations that panicked or were cancelled"))
	ins.fileTime, _ = engineMeter.Float64Histogram("ctrap.file.duration",
		metric.WithDescription("Time spent running rules against one file"),
		metric.WithUnit("ms"))
	return ins
}

// Check runs every enabled, applicable rule against every file. Settings
// are snapshotted when the batch starts. Issues are returned in file order
// and, within a file, in rule registration order. A rule that panics
// contributes no issues for that file and is recorded as a Failure.
//
// When ctx is cancelled the files not yet analyzed are recorded as failures
// and ctx.Err() is returned alongside the partial report.
func (r *Registry) Check(ctx context.Context, files []*source.File) (*Report, error) {
	ctx, span := engineTracer.Start(ctx, "check batch",
		trace.WithAttributes(attribute.Int("files", len(files))))
	defer span.End()

	start := time.Now()
	enabled, snap := r.batch()
	ins := newInstruments()

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		if gctx.Err() != nil {
			results[i] = cancelled(f, gctx.Err())
			continue
		}
		g.Go(func() error {
			results[i] = checkFile(gctx, f, enabled, snap, ins)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Files: len(files), Rules: len(enabled), PerFile: results}
	for _, res := range results {
		report.Issues = append(report.Issues, res.Issues...)
		report.Failures = append(report.Failures, res.Failures...)
		report.Suppressed += res.Suppressed
	}
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("rules", len(enabled)),
		attribute.Int("issues", len(report.Issues)),
		attribute.Int("failures", len(report.Failures)),
	)
	return report, ctx.Err()
}

func cancelled(f *source.File, err error) FileResult {
	return FileResult{Failures: []Failure{{File: f.Path, Err: err, Reason: err.Error()}}}
}

func checkFile(ctx context.Context, f *source.File, enabled []Rule, snap map[string]Settings, ins engineInstruments) FileResult {
	ctx, span := engineTracer.Start(ctx, "check file",
		trace.WithAttributes(attribute.String("file", f.Path)))
	defer span.End()
	start := time.Now()

	var res FileResult
	for _, rule := range enabled {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, Failure{File: f.Path, Err: err, Reason: err.Error()})
			break
		}
		if !rule.Applies(f) {
			continue
		}
		m := rule.Meta()
		issues, failure := runRule(rule, f, snap[m.ID])
		if failure != nil {
			slog.Warn("rule failed", "rule", m.ID, "file", f.Path, "err", failure.Reason)
			res.Failures = append(res.Failures, *failure)
			ins.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("rule", m.ID)))
			continue
		}
		if len(issues) > 0 {
			ins.issues.Add(ctx, int64(len(issues)), metric.WithAttributes(attribute.String("rule", m.ID)))
		}
		res.Issues = append(res.Issues, issues...)
	}

	var suppressed int
	res.Issues, suppressed = Suppress(f, res.Issues)
	res.Suppressed = suppressed

	ins.fileTime.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(attribute.Int("issues", len(res.Issues)))
	return res
}

// runRule invokes one rule with panic recovery.
func runRule(rule Rule, f *source.File, s Settings) (issues []issue.Issue, failure *Failure) {
	m := rule.Meta()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Debug("rule panic", "rule", m.ID, "file", f.Path, "stack", string(debug.Stack()))
			err := fmt.Errorf("panic: %v", rec)
			issues = nil
			failure = &Failure{RuleID: m.ID, File: f.Path, Err: err, Reason: err.Error()}
		}
	}()
	pass := NewPass(f, m, s)
	rule.Check(pass)
	return pass.Issues(), nil
}

// CheckFile is a convenience wrapper around Check for a single file.
func (r *Registry) CheckFile(ctx context.Context, f *source.File) (*Report, error) {
	return r.Check(ctx, []*source.File{f})
}
