package review

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

const helpText = "n/p next/prev • [/] file • a accept • r reject • c comment • e/w/f filter • tab pane • q quit"

// View implements tea.Model
func (m ReviewModel) View() string {
	header := m.header()
	if m.width == 0 || m.height == 0 {
		return header + "\n\nPress q to quit"
	}

	bodyHeight := m.height - 4
	filesWidth := m.width / 4
	codeWidth := (m.width - filesWidth) / 2
	detailsWidth := m.width - filesWidth - codeWidth

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderFilesPane(filesWidth, bodyHeight),
		m.renderCodePane(codeWidth, bodyHeight),
		m.renderDetailsPane(detailsWidth, bodyHeight),
	)

	footer := helpStyle.Render(helpText)
	if m.commenting {
		footer = m.input.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(header), body, footer)
}

func (m ReviewModel) header() string {
	fileCount := len(m.files)
	findingCount := len(m.findings)
	pos := ""
	if n := len(m.getFilteredFindings()); n > 0 {
		pos = fmt.Sprintf(" • %d/%d", m.currentFinding+1, n)
	}
	return fmt.Sprintf("ctrap review: %d %s, %d %s • filter %s%s • %d accepted, %d rejected",
		fileCount, plural(fileCount, "file"),
		findingCount, plural(findingCount, "finding"),
		m.filter, pos, len(m.accepted), len(m.rejected))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
