package output

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/chris-regnier/ctrap/internal/issue"
)

var (
	fileHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")).Underline(true)
	criticalStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warningStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	ruleStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	summaryStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

// PrettyFormatter renders issues grouped by file with colored severities
// and highlighted snippets. Plain disables highlighting of snippets.
type PrettyFormatter struct {
	Plain bool
}

func severityStyle(sev issue.Severity) lipgloss.Style {
	switch sev {
	case issue.Critical:
		return criticalStyle
	case issue.Warning:
		return warningStyle
	default:
		return suggestionStyle
	}
}

func (f *PrettyFormatter) Format(result *AnalysisOutput) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("pretty formatter: result is required")
	}

	var b strings.Builder
	lexer := lexers.Get("c")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	current := ""
	for _, is := range result.Issues {
		if is.File != current {
			if current != "" {
				b.WriteString("\n")
			}
			current = is.File
			b.WriteString(fileHeaderStyle.Render(is.File))
			b.WriteString("\n")
		}

		loc := dimStyle.Render(fmt.Sprintf("%4d:%-3d", is.Line, is.Column+1))
		sev := severityStyle(is.Severity).Render(fmt.Sprintf("%-10s", strings.ToLower(is.Severity.String())))
		fmt.Fprintf(&b, "  %s %s %s %s\n", loc, sev, is.Message, ruleStyle.Render(is.RuleID))

		if is.Snippet != "" {
			code := strings.TrimSpace(is.Snippet)
			if !f.Plain {
				if hl, err := highlight(code, lexer); err == nil {
					code = hl
				}
			}
			fmt.Fprintf(&b, "           %s %s\n", dimStyle.Render("│"), code)
		}
		if is.Suggestion != "" {
			fmt.Fprintf(&b, "           %s %s\n", dimStyle.Render("↳"), dimStyle.Render(is.Suggestion))
		}
	}
	if len(result.Issues) > 0 {
		b.WriteString("\n")
	}

	for _, fl := range result.Failures {
		fmt.Fprintf(&b, "%s %s\n", warningStyle.Render("rule failure:"), fl.Error())
	}

	b.WriteString(summaryStyle.Render(prettySummary(result)))
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func prettySummary(result *AnalysisOutput) string {
	s := result.Summary()
	if s.Total == 0 {
		return fmt.Sprintf("No issues in %d files", result.Files)
	}
	parts := []string{
		criticalStyle.Render(fmt.Sprintf("%d critical", s.BySeverity[issue.Critical.String()])),
		warningStyle.Render(fmt.Sprintf("%d warning", s.BySeverity[issue.Warning.String()])),
		suggestionStyle.Render(fmt.Sprintf("%d suggestion", s.BySeverity[issue.Suggestion.String()])),
	}
	line := fmt.Sprintf("%d issues in %d files: %s  score %d/100",
		s.Total, result.Files, strings.Join(parts, ", "), s.Score)
	if result.Suppressed > 0 {
		line += dimStyle.Render(fmt.Sprintf("  (%d suppressed)", result.Suppressed))
	}
	if result.Verdict != nil {
		line += "\ndecision: " + result.Verdict.Decision
	}
	return line
}

func highlight(code string, lexer chroma.Lexer) (string, error) {
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", err
	}
	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	var b strings.Builder
	if err := formatters.TTY256.Format(&b, style, it); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
