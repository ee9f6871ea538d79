package review

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	codePaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1)

	lineNumberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(4).
			Align(lipgloss.Right)

	highlightedLineStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("236"))

	codeHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	locationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Lines shown before and after the finding.
const contextLines = 5

// renderCodePane renders the code around the selected finding.
func (m ReviewModel) renderCodePane(width, height int) string {
	var b strings.Builder

	b.WriteString(codeHeaderStyle.Render("Code"))
	b.WriteString("\n\n")

	is, ok := m.current()
	switch {
	case !ok:
		b.WriteString("No findings to display")
	case is.File == "" || is.Line < 1:
		b.WriteString("No location information")
	default:
		b.WriteString(locationStyle.Render(is.Location()))
		b.WriteString("\n\n")
		code, err := m.readCodeWithContext(m.resolve(is.File), is.Line)
		if err != nil && is.Snippet != "" {
			code = is.Snippet
		} else if err != nil {
			code = fmt.Sprintf("Error reading file: %v", err)
		}
		b.WriteString(code)
	}

	paneStyle := codePaneStyle
	if m.activePane == PaneCode {
		paneStyle = codePaneStyle.BorderForeground(lipgloss.Color("170"))
	}

	return paneStyle.
		Width(width - 2).
		Height(height - 2).
		Render(b.String())
}

// readCodeWithContext returns the highlighted lines around the 1-based
// targetLine, with the target line marked.
func (m *ReviewModel) readCodeWithContext(filePath string, targetLine int) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	lexer := lexers.Match(filePath)
	if lexer == nil {
		lexer = lexers.Get("c")
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scanning %s: %w", filePath, err)
	}

	startLine := max(targetLine-contextLines, 1)
	endLine := min(targetLine+contextLines, len(lines))

	var b strings.Builder
	for i := startLine; i <= endLine; i++ {
		lineNum := lineNumberStyle.Render(fmt.Sprintf("%d", i))
		lineContent, err := highlightLine(lines[i-1], lexer)
		if err != nil {
			lineContent = lines[i-1]
		}
		if i == targetLine {
			lineContent = highlightedLineStyle.Render(lineContent)
			lineNum = highlightedLineStyle.Render(lineNum)
		}
		fmt.Fprintf(&b, "%s │ %s\n", lineNum, lineContent)
	}
	return b.String(), nil
}

// highlightLine applies syntax highlighting to a single line of code
func highlightLine(line string, lexer chroma.Lexer) (string, error) {
	iterator, err := lexer.Tokenise(nil, line)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	if err := formatters.TTY16m.Format(&b, style, iterator); err != nil {
		return "", err
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}
