package review

import (
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Init implements tea.Model
func (m ReviewModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.commenting {
			return m.updateComment(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			if err := m.saveState(); err != nil {
				slog.Warn("failed to save review state", "path", m.statePath, "err", err)
			}
			return m, tea.Quit

		case "n", "j", "down":
			if n := len(m.getFilteredFindings()); n > 0 {
				m.currentFinding = (m.currentFinding + 1) % n
			}

		case "p", "k", "up":
			if n := len(m.getFilteredFindings()); n > 0 {
				m.currentFinding = (m.currentFinding - 1 + n) % n
			}

		case "]":
			m.jumpToFile(1)

		case "[":
			m.jumpToFile(-1)

		case "a":
			if is, ok := m.current(); ok {
				id := FindingID(is)
				m.accepted[id] = true
				delete(m.rejected, id)
			}

		case "r":
			if is, ok := m.current(); ok {
				id := FindingID(is)
				m.rejected[id] = true
				delete(m.accepted, id)
			}

		case "c":
			if is, ok := m.current(); ok {
				m.commenting = true
				m.input.SetValue(m.comments[FindingID(is)])
				return m, m.input.Focus()
			}

		case "tab":
			m.activePane = (m.activePane + 1) % 3

		case "e":
			m.setFilter(FilterCritical)

		case "w":
			m.setFilter(FilterWarnings)

		case "f":
			m.setFilter(FilterAll)
		}
	}

	return m, nil
}

// updateComment handles keys while the comment input has focus.
func (m ReviewModel) updateComment(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		if is, ok := m.current(); ok {
			id := FindingID(is)
			if text := strings.TrimSpace(m.input.Value()); text != "" {
				m.comments[id] = text
			} else {
				delete(m.comments, id)
			}
		}
		m.commenting = false
		m.input.Blur()
		return m, nil
	case tea.KeyEsc:
		m.commenting = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *ReviewModel) setFilter(f Filter) {
	m.filter = f
	m.currentFinding = 0
	m.currentFile = 0
}

// saveState writes the review state when a state path is configured.
func (m *ReviewModel) saveState() error {
	if m.statePath == "" {
		return nil
	}
	return SaveReviewState(m, m.runID, m.statePath)
}
