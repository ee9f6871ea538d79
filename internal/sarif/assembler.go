package sarif

import (
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

// Assemble creates a SARIF log from an engine report and the rules that
// produced it.
func Assemble(version string, rs []rules.Rule, report *rules.Report, inputScope string) (*Log, error) {
	a := NewAssembler(version).WithRules(rs).WithInputScope(inputScope)
	if report != nil {
		a.AddIssues(report.Issues).AddFailures(report.Failures)
	}
	return a.Build()
}

// dedup drops repeated findings: the same rule at the same position with
// the same message. This happens when a pattern rule overlaps a built-in
// rule of the same ID or a file is passed twice. The first occurrence
// wins and order is kept.
func dedup(issues []issue.Issue) []issue.Issue {
	type key struct {
		ruleID, file, message string
		line, column          int
	}
	seen := make(map[key]bool, len(issues))
	out := make([]issue.Issue, 0, len(issues))
	for _, is := range issues {
		k := key{is.RuleID, is.File, is.Message, is.Line, is.Column}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, is)
	}
	return out
}
