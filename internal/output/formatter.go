// Package output renders analysis results as JSON, SARIF, Markdown, plain
// text or styled terminal output.
package output

import (
	"fmt"
	"time"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
	"github.com/chris-regnier/ctrap/internal/sarif"
	"github.com/chris-regnier/ctrap/internal/store"
)

// Formatter renders an AnalysisOutput in one format.
type Formatter interface {
	Format(result *AnalysisOutput) ([]byte, error)
}

// AnalysisOutput is everything a formatter may draw on. Verdict and
// SARIFLog are optional except for the formats that need them.
type AnalysisOutput struct {
	Issues     []issue.Issue
	Failures   []rules.Failure
	Files      int
	Suppressed int
	CacheHits  int
	Duration   time.Duration
	Template   string
	Verdict    *store.Verdict
	SARIFLog   *sarif.Log
}

// Summary summarizes the issues.
func (o *AnalysisOutput) Summary() issue.Summary {
	return issue.Summarize(o.Issues)
}

// Formats lists the supported format names.
var Formats = []string{"json", "sarif", "markdown", "text", "pretty"}

// ResolveFormat returns flagValue when set, otherwise "pretty" on a
// terminal and "json" when piped.
func ResolveFormat(flagValue string, stdoutIsTTY bool) string {
	if flagValue != "" {
		return flagValue
	}
	if stdoutIsTTY {
		return "pretty"
	}
	return "json"
}

func NewFormatter(format string) (Formatter, error) {
	switch format {
	case "json":
		return &JSONFormatter{}, nil
	case "sarif":
		return &SARIFFormatter{}, nil
	case "markdown":
		return &MarkdownFormatter{}, nil
	case "text":
		return &TextFormatter{}, nil
	case "pretty":
		return &PrettyFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %q (supported: json, sarif, markdown, text, pretty)", format)
	}
}
