package lsp

import (
	"fmt"
	"strings"

	"github.com/chris-regnier/ctrap/internal/rules"
)

// GetCodeActions returns, for each diagnostic, a quick fix that inserts a
// ctrap:ignore comment above the flagged line. When several rules fire on
// one line a second action silences all of them at once.
func GetCodeActions(uri string, diagnostics []Diagnostic, content string) []CodeAction {
	lines := strings.Split(content, "\n")
	var actions []CodeAction

	byLine := map[int][]Diagnostic{}
	var order []int
	for _, diag := range diagnostics {
		if diag.Code == "" {
			continue
		}
		l := diag.Range.Start.Line
		if _, seen := byLine[l]; !seen {
			order = append(order, l)
		}
		byLine[l] = append(byLine[l], diag)

		actions = append(actions, CodeAction{
			Title:       fmt.Sprintf("ctrap: ignore %s on this line", diag.Code),
			Kind:        CodeActionKindQuickFix,
			Diagnostics: []Diagnostic{diag},
			IsPreferred: true,
			Edit:        ignoreEdit(uri, lines, l, diag.Code),
		})
	}

	for _, l := range order {
		diags := byLine[l]
		ids := uniqueCodes(diags)
		if len(ids) < 2 {
			continue
		}
		actions = append(actions, CodeAction{
			Title:       fmt.Sprintf("ctrap: ignore %s on this line", strings.Join(ids, ", ")),
			Kind:        CodeActionKindQuickFix,
			Diagnostics: diags,
			Edit:        ignoreEdit(uri, lines, l, ids...),
		})
	}
	return actions
}

// ignoreEdit inserts the suppression comment on its own line above line,
// matching that line's indentation.
func ignoreEdit(uri string, lines []string, line int, ids ...string) *WorkspaceEdit {
	indent := ""
	if line >= 0 && line < len(lines) {
		text := lines[line]
		indent = text[:len(text)-len(strings.TrimLeft(text, " \t"))]
	}
	pos := Position{Line: line, Character: 0}
	return &WorkspaceEdit{
		Changes: map[string][]TextEdit{
			uri: {{
				Range:   Range{Start: pos, End: pos},
				NewText: indent + rules.SuppressComment(ids...) + "\n",
			}},
		},
	}
}

func uniqueCodes(diags []Diagnostic) []string {
	seen := map[string]bool{}
	var ids []string
	for _, d := range diags {
		if !seen[d.Code] {
			seen[d.Code] = true
			ids = append(ids, d.Code)
		}
	}
	return ids
}

// FilterDiagnosticsForRange returns diagnostics that overlap with the given range
func FilterDiagnosticsForRange(diagnostics []Diagnostic, r Range) []Diagnostic {
	var filtered []Diagnostic
	for _, d := range diagnostics {
		if rangesOverlap(d.Range, r) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// rangesOverlap checks if two ranges overlap
func rangesOverlap(a, b Range) bool {
	if a.End.Line < b.Start.Line || (a.End.Line == b.Start.Line && a.End.Character < b.Start.Character) {
		return false
	}
	if b.End.Line < a.Start.Line || (b.End.Line == a.Start.Line && b.End.Character < a.Start.Character) {
		return false
	}
	return true
}
