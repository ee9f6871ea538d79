// Package issue defines the findings produced by rules and the helpers used
// to build, order and summarize them.
package issue

import (
	"fmt"
	"sort"
	"strings"
)

// Issue is one finding. It is a value type and is never mutated after a rule
// reports it.
type Issue struct {
	RuleID      string   `json:"rule_id" yaml:"rule_id"`
	RuleName    string   `json:"rule_name" yaml:"rule_name"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	File        string   `json:"file" yaml:"file"`
	Line        int      `json:"line" yaml:"line"`
	Column      int      `json:"column" yaml:"column"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Message     string   `json:"message" yaml:"message"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Snippet     string   `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	Suggestion  string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Reference   string   `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// Location renders file:line:col with a 1-based column.
func (i Issue) Location() string {
	return fmt.Sprintf("%s:%d:%d", i.File, i.Line, i.Column+1)
}

// Snippet renders the context window around the 1-based line: two lines
// before, the line itself marked with ">>>", and two lines after.
func Snippet(lines []string, line int) string {
	start := line - 3
	if start < 0 {
		start = 0
	}
	end := line + 2
	if end > len(lines) {
		end = len(lines)
	}
	var out []string
	for i := start; i < end; i++ {
		prefix := "    "
		if i == line-1 {
			prefix = ">>> "
		}
		out = append(out, fmt.Sprintf("%s%4d: %s", prefix, i+1, lines[i]))
	}
	return strings.Join(out, "\n")
}

// Sort orders issues by file, line, column, then descending severity and
// rule ID. The sort is stable.
func Sort(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		x, y := issues[a], issues[b]
		if x.File != y.File {
			return x.File < y.File
		}
		if x.Line != y.Line {
			return x.Line < y.Line
		}
		if x.Column != y.Column {
			return x.Column < y.Column
		}
		if x.Severity != y.Severity {
			return x.Severity.Rank() > y.Severity.Rank()
		}
		return x.RuleID < y.RuleID
	})
}

// Filter returns the issues at or above the given severity.
func Filter(issues []Issue, min Severity) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.Severity.Rank() >= min.Rank() {
			out = append(out, is)
		}
	}
	return out
}
