package lsp

import (
	"strings"
	"unicode/utf16"

	"github.com/chris-regnier/ctrap/internal/issue"
)

// DiagnosticSeverity maps to LSP severity levels
type DiagnosticSeverity int

const (
	DiagnosticSeverityError       DiagnosticSeverity = 1
	DiagnosticSeverityWarning     DiagnosticSeverity = 2
	DiagnosticSeverityInformation DiagnosticSeverity = 3
	DiagnosticSeverityHint        DiagnosticSeverity = 4
)

// Position represents a position in a text document (0-indexed)
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range represents a text range in a document
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// DiagnosticData carries the rule metadata code actions and hovers use.
type DiagnosticData struct {
	RuleName   string `json:"ruleName,omitempty"`
	Category   string `json:"category,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Reference  string `json:"reference,omitempty"`
}

// Diagnostic represents an LSP diagnostic message
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity"`
	Code     string             `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
	Data     *DiagnosticData    `json:"data,omitempty"`
}

func severityToDiagnostic(s issue.Severity) DiagnosticSeverity {
	switch s {
	case issue.Critical:
		return DiagnosticSeverityError
	case issue.Warning:
		return DiagnosticSeverityWarning
	default:
		return DiagnosticSeverityInformation
	}
}

// IssueToDiagnostic converts an issue to a diagnostic spanning from the
// issue's column to the end of its line. lines is the document split on
// newlines; a missing line gives an empty range at the column.
func IssueToDiagnostic(is issue.Issue, lines []string) Diagnostic {
	line := max(is.Line-1, 0)
	start := max(is.Column, 0)
	end := start
	if line < len(lines) {
		text := strings.TrimRight(lines[line], "\r")
		end = utf16Len(text)
		start = min(utf16Len(prefixBytes(text, start)), end)
	}

	diag := Diagnostic{
		Range: Range{
			Start: Position{Line: line, Character: start},
			End:   Position{Line: line, Character: end},
		},
		Severity: severityToDiagnostic(is.Severity),
		Code:     is.RuleID,
		Source:   "ctrap",
		Message:  is.Message,
	}
	if is.RuleName != "" || is.Suggestion != "" || is.Reference != "" || is.Category != "" {
		diag.Data = &DiagnosticData{
			RuleName:   is.RuleName,
			Category:   is.Category,
			Suggestion: is.Suggestion,
			Reference:  is.Reference,
		}
	}
	return diag
}

// IssuesToDiagnostics converts the issues of one document.
func IssuesToDiagnostics(issues []issue.Issue, content string) []Diagnostic {
	lines := strings.Split(content, "\n")
	diagnostics := make([]Diagnostic, 0, len(issues))
	for _, is := range issues {
		diagnostics = append(diagnostics, IssueToDiagnostic(is, lines))
	}
	return diagnostics
}

// prefixBytes returns the first n bytes of s, or all of s.
func prefixBytes(s string, n int) string {
	if n >= len(s) {
		return s
	}
	return s[:n]
}

// utf16Len is the length of s in UTF-16 code units, the unit LSP positions
// count in.
func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
