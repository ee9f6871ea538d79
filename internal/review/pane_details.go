package review

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/chris-regnier/ctrap/internal/issue"
)

var (
	detailsPaneStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63")).
				Padding(1)

	detailsHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("170"))
)

// renderDetailsPane renders the selected finding as markdown through glamour.
func (m ReviewModel) renderDetailsPane(width, height int) string {
	var b strings.Builder
	b.WriteString(detailsHeaderStyle.Render("Details"))
	b.WriteString("\n\n")

	content := "No findings to display"
	if is, ok := m.current(); ok {
		content = m.detailsMarkdown(is)
	}
	rendered, err := renderMarkdown(content, width-4)
	if err != nil {
		rendered = content
	}
	b.WriteString(rendered)

	paneStyle := detailsPaneStyle
	if m.activePane == PaneDetails {
		paneStyle = detailsPaneStyle.BorderForeground(lipgloss.Color("170"))
	}

	return paneStyle.
		Width(width - 2).
		Height(height - 2).
		Render(b.String())
}

func (m *ReviewModel) detailsMarkdown(is issue.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s %s\n\n", is.RuleID, is.RuleName)
	fmt.Fprintf(&b, "**Severity:** %s", strings.ToUpper(is.Severity.String()))
	if is.Category != "" {
		fmt.Fprintf(&b, "  **Category:** %s", is.Category)
	}
	b.WriteString("\n\n")

	id := FindingID(is)
	switch {
	case m.accepted[id]:
		b.WriteString("**Status:** ✓ accepted\n\n")
	case m.rejected[id]:
		b.WriteString("**Status:** ✗ rejected\n\n")
	}

	if is.Message != "" {
		b.WriteString("**Message:**\n")
		b.WriteString(is.Message)
		b.WriteString("\n\n")
	}
	if is.Description != "" {
		b.WriteString("**Description:**\n")
		b.WriteString(is.Description)
		b.WriteString("\n\n")
	}
	if is.Suggestion != "" {
		b.WriteString("**Suggestion:**\n")
		b.WriteString(is.Suggestion)
		b.WriteString("\n\n")
	}
	if is.Reference != "" {
		fmt.Fprintf(&b, "**Reference:** %s\n\n", is.Reference)
	}
	if c := m.comments[id]; c != "" {
		fmt.Fprintf(&b, "**Comment:** %s\n\n", c)
	}
	fmt.Fprintf(&b, "**Location:** `%s`\n", is.Location())
	return b.String()
}

// renderMarkdown renders markdown text using glamour
func renderMarkdown(text string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	out, err := r.Render(text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
