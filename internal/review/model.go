// Package review is the interactive terminal UI for triaging findings.
package review

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/sarif"
)

// Pane represents which pane is currently active
type Pane int

const (
	PaneFiles Pane = iota
	PaneCode
	PaneDetails
)

// Filter represents the severity filter
type Filter int

const (
	FilterAll Filter = iota
	FilterCritical
	FilterWarnings
)

func (f Filter) String() string {
	switch f {
	case FilterCritical:
		return "critical"
	case FilterWarnings:
		return "warning+"
	default:
		return "all"
	}
}

// ReviewModel is the bubbletea model for the review TUI
type ReviewModel struct {
	runID     string
	root      string
	statePath string

	findings []issue.Issue
	files    map[string][]issue.Issue

	currentFile    int
	currentFinding int
	activePane     Pane
	filter         Filter

	accepted map[string]bool
	rejected map[string]bool
	comments map[string]string

	commenting bool
	input      textinput.Model

	width  int
	height int
}

// Option configures a ReviewModel.
type Option func(*ReviewModel)

// WithRoot resolves relative finding paths against dir when reading code.
func WithRoot(dir string) Option {
	return func(m *ReviewModel) { m.root = dir }
}

// WithStatePath persists review decisions to path on quit. An existing
// state file at path is loaded.
func WithStatePath(path string) Option {
	return func(m *ReviewModel) { m.statePath = path }
}

// NewReviewModel creates a ReviewModel over the findings of one run.
func NewReviewModel(runID string, issues []issue.Issue, opts ...Option) *ReviewModel {
	ti := textinput.New()
	ti.Placeholder = "comment"
	ti.CharLimit = 500

	m := &ReviewModel{
		runID:      runID,
		findings:   make([]issue.Issue, 0, len(issues)),
		files:      make(map[string][]issue.Issue),
		activePane: PaneFiles,
		filter:     FilterAll,
		accepted:   make(map[string]bool),
		rejected:   make(map[string]bool),
		comments:   make(map[string]string),
		input:      ti,
	}
	for _, o := range opts {
		o(m)
	}

	sorted := append([]issue.Issue(nil), issues...)
	issue.Sort(sorted)
	for _, is := range sorted {
		m.findings = append(m.findings, is)
		if is.File != "" {
			m.files[is.File] = append(m.files[is.File], is)
		}
	}

	if m.statePath != "" {
		if state, err := LoadReviewState(m.statePath); err == nil {
			m.applyState(state)
		}
	}
	return m
}

// Accepted returns the ids of accepted findings.
func (m *ReviewModel) Accepted() []string { return keys(m.accepted) }

// Rejected returns the ids of rejected findings.
func (m *ReviewModel) Rejected() []string { return keys(m.rejected) }

func (m *ReviewModel) applyState(state *ReviewState) {
	for id, fr := range state.Findings {
		switch fr.Status {
		case StatusAccepted:
			m.accepted[id] = true
		case StatusRejected:
			m.rejected[id] = true
		}
		if fr.Comment != "" {
			m.comments[id] = fr.Comment
		}
	}
}

func (m *ReviewModel) resolve(path string) string {
	if m.root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.root, path)
}

// FindingID identifies a finding across runs. It hashes the flagged line's
// text rather than its number.
func FindingID(is issue.Issue) string {
	return sarif.Fingerprint(is, markedLine(is.Snippet))
}

// markedLine extracts the ">>>" line from an issue snippet.
func markedLine(snippet string) string {
	for _, l := range strings.Split(snippet, "\n") {
		if !strings.HasPrefix(l, ">>>") {
			continue
		}
		if i := strings.Index(l, ": "); i >= 0 {
			return l[i+2:]
		}
		return strings.TrimPrefix(l, ">>>")
	}
	return ""
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
