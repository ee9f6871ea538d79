package review

import "github.com/chris-regnier/ctrap/internal/issue"

// minSeverity is the lowest severity the filter keeps.
func (f Filter) minSeverity() issue.Severity {
	switch f {
	case FilterCritical:
		return issue.Critical
	case FilterWarnings:
		return issue.Warning
	default:
		return issue.Suggestion
	}
}

// getFilteredFindings returns findings filtered by current filter setting
func (m *ReviewModel) getFilteredFindings() []issue.Issue {
	if m.filter == FilterAll {
		return m.findings
	}
	return issue.Filter(m.findings, m.filter.minSeverity())
}

// getFilteredFiles returns files grouped by findings, filtered by current filter.
// Files left without findings are dropped.
func (m *ReviewModel) getFilteredFiles() map[string][]issue.Issue {
	filtered := make(map[string][]issue.Issue)
	for path, findings := range m.files {
		kept := issue.Filter(findings, m.filter.minSeverity())
		if len(kept) > 0 {
			filtered[path] = kept
		}
	}
	return filtered
}

// current returns the selected finding under the active filter.
func (m *ReviewModel) current() (issue.Issue, bool) {
	filtered := m.getFilteredFindings()
	if m.currentFinding < 0 || m.currentFinding >= len(filtered) {
		return issue.Issue{}, false
	}
	return filtered[m.currentFinding], true
}
