package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chris-regnier/ctrap/internal/analyzer"
	"github.com/chris-regnier/ctrap/internal/cache"
	"github.com/chris-regnier/ctrap/internal/evaluator"
	"github.com/chris-regnier/ctrap/internal/input"
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/output"
	"github.com/chris-regnier/ctrap/internal/sarif"
	"github.com/chris-regnier/ctrap/internal/store"
)

var analyzeTracer = otel.Tracer("github.com/chris-regnier/ctrap/cmd/ctrap/analyze")

type analyzeOptions struct {
	files        []string
	diff         string
	dir          string
	format       string
	outFile      string
	template     string
	minSeverity  string
	regoDir      string
	noCache      bool
	noStore      bool
	failOnReject bool
	metricsFile  string
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Analyze C sources and gate the result",
		Long: `Analyze C sources with the enabled rules, store the SARIF log and the
gate verdict under .ctrap/results and print a report.

Paths given as arguments are treated like --files, directories like --dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.files, "files", nil, "Files to analyze")
	f.StringVar(&opts.diff, "diff", "", "Path to unified diff (- for stdin)")
	f.StringVar(&opts.dir, "dir", "", "Directory to analyze")
	f.StringVarP(&opts.format, "format", "f", "", "Output format: json, sarif, markdown, text or pretty (default: pretty on a terminal, json otherwise)")
	f.StringVarP(&opts.outFile, "out", "o", "", "Write the report to this file instead of stdout")
	f.StringVarP(&opts.template, "template", "t", "", "Rule template to apply, overriding the config")
	f.StringVar(&opts.minSeverity, "min-severity", "", "Lowest severity to report (critical, warning, suggestion)")
	f.StringVar(&opts.regoDir, "rego", "", "Directory of .rego policies replacing the default gate")
	f.BoolVar(&opts.noCache, "no-cache", false, "Do not read or write the result cache")
	f.BoolVar(&opts.noStore, "no-store", false, "Do not store the run under the results directory")
	f.BoolVar(&opts.failOnReject, "fail-on-reject", false, "Exit with status 1 when the gate rejects")
	f.StringVar(&opts.metricsFile, "metrics", "", "Write per-file analysis metrics as JSON to this file")
	return cmd
}

func init() {
	rootCmd.AddCommand(newAnalyzeCmd())
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := loadProject(flagRoot)
	if err != nil {
		return err
	}
	if opts.template != "" {
		if err := p.reg.ApplyTemplate(opts.template); err != nil {
			return err
		}
		p.cfg.Template = opts.template
	}
	minSeverity := issue.Suggestion
	if opts.minSeverity != "" {
		if minSeverity, err = issue.ParseSeverity(opts.minSeverity); err != nil {
			return err
		}
	}

	stopTelemetry, err := startTelemetry(ctx, p.cfg.Telemetry)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	ctx, span := analyzeTracer.Start(ctx, "analyze command",
		trace.WithAttributes(attribute.String("ctrap.template", p.cfg.Template)))
	defer span.End()

	artifacts, scope, err := readInput(cmd.InOrStdin(), p, opts, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(artifacts) == 0 {
		slog.Warn("no C sources to analyze")
	}

	collector := metrics.NewCollector()
	anOpts := []analyzer.Option{analyzer.WithRecorder(metrics.NewRecorder(collector, metrics.SourceCLI))}
	if p.cfg.Cache.On() && !opts.noCache {
		ttl, _ := p.cfg.Cache.TTLDuration()
		anOpts = append(anOpts, analyzer.WithCache(cache.NewLocalCache(p.path(p.cfg.Cache.Dir), ttl)))
	}
	res, err := analyzer.NewAnalyzer(p.reg, anOpts...).Analyze(ctx, artifacts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("analyzing: %w", err)
	}
	for _, f := range res.Failures {
		slog.Warn("rule failure", "rule", f.RuleID, "file", f.File, "reason", f.Reason)
	}

	asm := sarif.NewAssembler(version).
		WithRules(p.reg.Rules()).
		WithInputScope(scope).
		WithTemplate(p.cfg.Template).
		AddIssues(res.Issues).
		AddFailures(res.Failures)
	for _, a := range artifacts {
		asm.WithSource(a.Path, strings.Split(a.Content, "\n"))
	}
	sarifLog, err := asm.Build()
	if err != nil {
		return fmt.Errorf("assembling SARIF: %w", err)
	}

	regoDir := opts.regoDir
	if regoDir == "" {
		regoDir = p.path(p.cfg.Gate.PolicyDir)
	}
	eval, err := evaluator.NewEvaluator(ctx, regoDir)
	if err != nil {
		return fmt.Errorf("creating evaluator: %w", err)
	}
	verdict, err := eval.Evaluate(ctx, sarifLog)
	if err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}
	span.SetAttributes(attribute.String("ctrap.decision", verdict.Decision))

	if !opts.noStore {
		if err := storeRun(ctx, p, sarifLog, verdict, res); err != nil {
			return err
		}
	}

	if opts.metricsFile != "" {
		if err := metrics.NewExporter(collector).ExportJSON(opts.metricsFile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	format := opts.format
	if format == "" {
		format = p.cfg.Output.Format
	}
	format = output.ResolveFormat(format, opts.outFile == "" && stdoutIsTTY())
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return err
	}
	report, err := formatter.Format(&output.AnalysisOutput{
		Issues:     issue.Filter(res.Issues, minSeverity),
		Failures:   res.Failures,
		Files:      res.Files,
		Suppressed: res.Suppressed,
		CacheHits:  res.CacheHits,
		Duration:   res.Duration,
		Template:   p.cfg.Template,
		Verdict:    verdict,
		SARIFLog:   sarifLog,
	})
	if err != nil {
		return err
	}
	if opts.outFile != "" {
		if err := os.WriteFile(opts.outFile, report, 0644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	} else if _, err := cmd.OutOrStdout().Write(report); err != nil {
		return err
	}

	if opts.failOnReject && verdict.Decision == store.DecisionReject {
		return exitError{code: 1}
	}
	return nil
}

// readInput resolves the input flags, and positional paths, into artifacts
// and the SARIF input scope.
func readInput(stdin io.Reader, p *project, opts *analyzeOptions, args []string) ([]input.Artifact, string, error) {
	h := input.NewHandler()
	if p.cfg.Encoding != "" {
		h.Encoding = p.cfg.Encoding
	}
	if _, err := h.WithExcludes(p.cfg.Exclude); err != nil {
		return nil, "", err
	}

	files := append([]string{}, opts.files...)
	dir := opts.dir
	for _, arg := range args {
		if st, err := os.Stat(arg); err == nil && st.IsDir() && dir == "" {
			dir = arg
			continue
		}
		files = append(files, arg)
	}

	var (
		artifacts []input.Artifact
		err       error
	)
	switch {
	case len(files) > 0:
		artifacts, err = h.ReadFiles(files)
		return artifacts, "files", wrapInput(err)
	case opts.diff != "":
		var data []byte
		if opts.diff == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(opts.diff)
		}
		if err != nil {
			return nil, "", fmt.Errorf("reading diff: %w", err)
		}
		artifacts, err = h.ReadDiff(string(data), p.root)
		return artifacts, "diff", wrapInput(err)
	case dir != "":
		artifacts, err = h.ReadDirectory(dir)
		return artifacts, "directory", wrapInput(err)
	}
	return nil, "", fmt.Errorf("specify --files, --diff, --dir or paths to analyze")
}

func wrapInput(err error) error {
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// storeRun writes the SARIF log and verdict, and records the run in the
// history database when history is enabled.
func storeRun(ctx context.Context, p *project, log *sarif.Log, verdict *store.Verdict, res *analyzer.Result) error {
	fs := store.NewFileStore(p.path(p.cfg.Output.Dir))
	id, err := fs.WriteSARIF(ctx, log)
	if err != nil {
		return fmt.Errorf("storing SARIF: %w", err)
	}
	if err := fs.WriteVerdict(ctx, id, verdict); err != nil {
		return fmt.Errorf("storing verdict: %w", err)
	}
	slog.Info("run stored", "id", id, "dir", fs.Dir())

	if !p.cfg.History.On() {
		return nil
	}
	h, err := store.OpenHistory(p.path(p.cfg.History.Path))
	if err != nil {
		return err
	}
	defer h.Close()
	run := store.NewRun(id, time.Now(), res.Files, res.Issues)
	run.Template = p.cfg.Template
	run.Decision = verdict.Decision
	run.DurationMS = res.Duration.Milliseconds()
	if err := h.Record(ctx, run); err != nil {
		return fmt.Errorf("recording history: %w", err)
	}
	return nil
}
