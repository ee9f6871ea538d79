// Package rules is the rule engine: the Rule interface, the registry that
// owns per-rule settings and templates, and the batch checker.
package rules

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/source"
)

// Rule is one diagnostic check. Implementations are immutable: the mutable
// enabled flag, severity and configuration live in the Registry.
type Rule interface {
	// Meta returns the rule's identity and educational metadata.
	Meta() *Metadata
	// Applies reports whether the rule should run against f.
	Applies(f *source.File) bool
	// Check inspects pass.File and reports findings through pass. It must
	// not modify the file or its tree.
	Check(pass *Pass)
}

// Example is a bad or good code sample shown alongside a rule.
type Example struct {
	Kind        string `yaml:"kind" json:"kind"`
	Code        string `yaml:"code" json:"code"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Reference points at the literature a rule is based on.
type Reference struct {
	Book    string `yaml:"book,omitempty" json:"book,omitempty"`
	Chapter string `yaml:"chapter,omitempty" json:"chapter,omitempty"`
	Page    string `yaml:"page,omitempty" json:"page,omitempty"`
	URL     string `yaml:"url,omitempty" json:"url,omitempty"`
	Quote   string `yaml:"quote,omitempty" json:"quote,omitempty"`
}

// Format joins the non-empty book, chapter and page with " - ". A reference
// without a book formats as "".
func (r Reference) Format() string {
	if r.Book == "" {
		return ""
	}
	parts := []string{r.Book}
	if r.Chapter != "" {
		parts = append(parts, r.Chapter)
	}
	if r.Page != "" {
		parts = append(parts, r.Page)
	}
	return strings.Join(parts, " - ")
}

// Metadata is the immutable description of a rule.
type Metadata struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Category    string         `yaml:"category" json:"category"`
	Severity    issue.Severity `yaml:"severity" json:"severity"`
	Description string         `yaml:"description" json:"description"`
	Why         string         `yaml:"why,omitempty" json:"why,omitempty"`
	Suggestion  string         `yaml:"suggestion,omitempty" json:"suggestion,omitempty"`
	Examples    []Example      `yaml:"examples,omitempty" json:"examples,omitempty"`
	Reference   Reference      `yaml:"reference,omitempty" json:"reference,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// BadExamples returns the examples of code the rule flags.
func (m *Metadata) BadExamples() []Example { return m.examples("bad") }

// GoodExamples returns the examples of the preferred form.
func (m *Metadata) GoodExamples() []Example { return m.examples("good") }

func (m *Metadata) examples(kind string) []Example {
	var out []Example
	for _, e := range m.Examples {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

var cFamily = map[string]bool{
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true, ".cxx": true,
}

// Base supplies Meta and the default Applies. Concrete rules embed it.
type Base struct {
	Metadata `yaml:",inline"`
}

func (b *Base) Meta() *Metadata { return &b.Metadata }

// Applies accepts the C-family extensions.
func (b *Base) Applies(f *source.File) bool {
	return f != nil && cFamily[strings.ToLower(filepath.Ext(f.Path))]
}

// Pass carries one (rule, file) invocation: the file, the effective severity
// and configuration, and the sink for findings.
type Pass struct {
	File     *source.File
	Rule     *Metadata
	Severity issue.Severity
	Config   map[string]any

	issues []issue.Issue
}

// NewPass prepares a pass for meta against f with the given settings.
func NewPass(f *source.File, meta *Metadata, s Settings) *Pass {
	return &Pass{File: f, Rule: meta, Severity: s.Severity, Config: s.Config}
}

// Source returns the file's bytes.
func (p *Pass) Source() []byte { return p.File.Text }

// Root returns the file's syntax tree root.
func (p *Pass) Root() *sitter.Node { return p.File.Root() }

// Report records an issue at node with the rule's effective severity.
func (p *Pass) Report(node *sitter.Node, message, suggestion string) {
	p.ReportSeverity(node, p.Severity, message, suggestion)
}

// ReportSeverity records an issue at node with an explicit severity.
func (p *Pass) ReportSeverity(node *sitter.Node, sev issue.Severity, message, suggestion string) {
	if node == nil {
		return
	}
	pt := node.StartPoint()
	p.ReportAt(int(pt.Row)+1, int(pt.Column), sev, message, suggestion)
}

// ReportAt records an issue at a 1-based line and 0-based column. Lines
// outside the file are clamped to its bounds.
func (p *Pass) ReportAt(line, column int, sev issue.Severity, message, suggestion string) {
	if line < 1 {
		line = 1
	}
	if n := p.File.LineCount; n > 0 && line > n {
		line = n
	}
	if column < 0 {
		column = 0
	}
	if suggestion == "" {
		suggestion = p.Rule.Suggestion
	}
	p.issues = append(p.issues, issue.Issue{
		RuleID:      p.Rule.ID,
		RuleName:    p.Rule.Name,
		Category:    p.Rule.Category,
		File:        p.File.Path,
		Line:        line,
		Column:      column,
		Severity:    sev,
		Message:     message,
		Description: p.Rule.Description,
		Snippet:     issue.Snippet(p.File.Lines, line),
		Suggestion:  suggestion,
		Reference:   p.Rule.Reference.Format(),
	})
}

// Issues returns what the pass has reported so far.
func (p *Pass) Issues() []issue.Issue { return p.issues }

// Int reads an integer knob, accepting the numeric types YAML and JSON
// decoders produce.
func (p *Pass) Int(key string, fallback int) int {
	return toInt(p.Config[key], fallback)
}

// String reads a string knob.
func (p *Pass) String(key, fallback string) string {
	if s, ok := p.Config[key].(string); ok {
		return s
	}
	return fallback
}

// Bool reads a boolean knob.
func (p *Pass) Bool(key string, fallback bool) bool {
	if b, ok := p.Config[key].(bool); ok {
		return b
	}
	return fallback
}

// Strings reads a list-of-strings knob.
func (p *Pass) Strings(key string, fallback []string) []string {
	switch v := p.Config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return fallback
}

// StringMap reads a string-to-string knob.
func (p *Pass) StringMap(key string, fallback map[string]string) map[string]string {
	switch v := p.Config[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, e := range v {
			if s, ok := e.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return fallback
}

// Ints reads a list-of-integers knob.
func (p *Pass) Ints(key string, fallback []int64) []int64 {
	v, ok := p.Config[key].([]any)
	if !ok {
		if ints, ok := p.Config[key].([]int64); ok {
			return ints
		}
		return fallback
	}
	out := make([]int64, 0, len(v))
	for _, e := range v {
		out = append(out, int64(toInt(e, 0)))
	}
	return out
}

// toInt converts an interface{} to int, supporting int, float64, and int64.
func toInt(v interface{}, fallback int) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint64:
		return int(val)
	case float64:
		return int(val)
	default:
		return fallback
	}
}
