package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	filePaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1)

	fileItemStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	selectedFileStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170")).
				Bold(true).
				PaddingLeft(1)

	fileCountStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// renderFilesPane renders the file list with per-file finding counts under
// the active filter. The file of the selected finding is highlighted.
func (m ReviewModel) renderFilesPane(width, height int) string {
	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("170")).
		Render("Files"))
	b.WriteString("\n\n")

	filtered := m.getFilteredFiles()
	selected := ""
	if is, ok := m.current(); ok {
		selected = is.File
	}

	for _, file := range m.getFileList() {
		count := len(filtered[file])
		indicator := "  "
		style := fileItemStyle
		if file == selected {
			indicator = "▸ "
			style = selectedFileStyle
		}
		line := fmt.Sprintf("%s%s %s",
			indicator,
			file,
			fileCountStyle.Render(fmt.Sprintf("(%d)", count)))
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	paneStyle := filePaneStyle
	if m.activePane == PaneFiles {
		paneStyle = filePaneStyle.BorderForeground(lipgloss.Color("170"))
	}

	return paneStyle.
		Width(width - 2).
		Height(height - 2).
		Render(b.String())
}

// getFileList returns the sorted paths that still have findings under the
// active filter.
func (m *ReviewModel) getFileList() []string {
	filtered := m.getFilteredFiles()
	files := make([]string, 0, len(filtered))
	for file := range filtered {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// jumpToFile selects the first finding of the next (delta=1) or previous
// (delta=-1) file.
func (m *ReviewModel) jumpToFile(delta int) {
	files := m.getFileList()
	if len(files) == 0 {
		return
	}
	idx := 0
	if is, ok := m.current(); ok {
		for i, f := range files {
			if f == is.File {
				idx = i
				break
			}
		}
	}
	idx = (idx + delta + len(files)) % len(files)
	m.currentFile = idx
	for i, is := range m.getFilteredFindings() {
		if is.File == files[idx] {
			m.currentFinding = i
			return
		}
	}
}
