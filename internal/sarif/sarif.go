// Package sarif converts ctrap findings to and from SARIF 2.1.0 logs.
package sarif

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	gosarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/chris-regnier/ctrap/internal/issue"
)

const (
	ToolName       = "ctrap"
	InformationURI = "https://github.com/chris-regnier/ctrap"
	Version        = string(gosarif.Version210)
)

// Property keys ctrap attaches to rules, results and runs.
const (
	PropCategory    = "ctrap/category"
	PropReference   = "ctrap/reference"
	PropSuggestion  = "ctrap/suggestion"
	PropRuleName    = "ctrap/ruleName"
	PropInputScope  = "ctrap/inputScope"
	PropTemplate    = "ctrap/template"
	PropFingerprint = "ctrapFingerprint/v1"
)

// Log is a SARIF report.
type Log = gosarif.Report

// Level maps a severity to its SARIF result level.
func Level(s issue.Severity) string {
	switch s {
	case issue.Critical:
		return "error"
	case issue.Warning:
		return "warning"
	}
	return "note"
}

// SeverityFromLevel is the inverse of Level. Unknown levels, and "none",
// read back as suggestions.
func SeverityFromLevel(level string) issue.Severity {
	switch level {
	case "error":
		return issue.Critical
	case "warning":
		return issue.Warning
	}
	return issue.Suggestion
}

// Fingerprint identifies a finding independently of its line number, so
// the same problem keeps its identity when code above it moves.
func Fingerprint(is issue.Issue, lineText string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", is.RuleID, is.File, is.Message, strings.Join(strings.Fields(lineText), " "))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Results returns the results of every run in log.
func Results(log *Log) []*gosarif.Result {
	if log == nil {
		return nil
	}
	var out []*gosarif.Result
	for _, run := range log.Runs {
		out = append(out, run.Results...)
	}
	return out
}

// ToIssues reads the results of log back into issues. Fields that SARIF
// does not carry (description) stay empty.
func ToIssues(log *Log) []issue.Issue {
	var out []issue.Issue
	for _, r := range Results(log) {
		out = append(out, ResultIssue(r))
	}
	return out
}

// ResultIssue converts one result.
func ResultIssue(r *gosarif.Result) issue.Issue {
	is := issue.Issue{
		RuleID:   deref(r.RuleID),
		Severity: SeverityFromLevel(deref(r.Level)),
		Message:  deref(r.Message.Text),
	}
	if len(r.Locations) > 0 && r.Locations[0].PhysicalLocation != nil {
		pl := r.Locations[0].PhysicalLocation
		if pl.ArtifactLocation != nil {
			is.File = deref(pl.ArtifactLocation.URI)
		}
		if reg := pl.Region; reg != nil {
			if reg.StartLine != nil {
				is.Line = *reg.StartLine
			}
			if reg.StartColumn != nil && *reg.StartColumn > 0 {
				is.Column = *reg.StartColumn - 1
			}
			if reg.Snippet != nil {
				is.Snippet = deref(reg.Snippet.Text)
			}
		}
	}
	is.Category = stringProp(r.Properties, PropCategory)
	is.Reference = stringProp(r.Properties, PropReference)
	is.Suggestion = stringProp(r.Properties, PropSuggestion)
	is.RuleName = stringProp(r.Properties, PropRuleName)
	return is
}

// Read parses a SARIF log.
func Read(r io.Reader) (*Log, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading sarif: %w", err)
	}
	log, err := gosarif.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing sarif: %w", err)
	}
	return log, nil
}

func stringProp(p gosarif.Properties, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
