package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/store"
)

// MarkdownFormatter renders GitHub-flavored Markdown for PR comments, with
// one collapsible section per finding.
type MarkdownFormatter struct{}

func severityEmoji(sev issue.Severity) string {
	switch sev {
	case issue.Critical:
		return ":red_circle:"
	case issue.Warning:
		return ":warning:"
	case issue.Suggestion:
		return ":information_source:"
	default:
		return ":grey_question:"
	}
}

func decisionBanner(decision string) string {
	switch decision {
	case store.DecisionMerge:
		return ":white_check_mark: Merge"
	case store.DecisionReject:
		return ":x: Reject"
	case store.DecisionReview:
		return ":warning: Review Required"
	default:
		return decision
	}
}

func (f *MarkdownFormatter) Format(result *AnalysisOutput) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("markdown formatter: result is required")
	}

	var b strings.Builder
	s := result.Summary()

	b.WriteString("## ctrap Analysis Summary\n\n")
	if result.Verdict != nil {
		fmt.Fprintf(&b, "**Decision:** %s | ", decisionBanner(result.Verdict.Decision))
	}
	fmt.Fprintf(&b, "**Findings:** %d | **Files:** %d | **Score:** %d/100\n",
		s.Total, result.Files, s.Score)

	if s.Total == 0 {
		b.WriteString("\nNo findings detected.\n")
	} else {
		b.WriteString("\n### Findings by Severity\n")
		b.WriteString("| Severity | Count |\n")
		b.WriteString("|----------|-------|\n")
		for _, sev := range issue.Severities() {
			if n := s.BySeverity[sev.String()]; n > 0 {
				fmt.Fprintf(&b, "| %s | %d |\n", sev, n)
			}
		}

		sorted := append([]issue.Issue(nil), result.Issues...)
		sort.SliceStable(sorted, func(i, j int) bool {
			if ri, rj := sorted[i].Severity.Rank(), sorted[j].Severity.Rank(); ri != rj {
				return ri > rj
			}
			if sorted[i].File != sorted[j].File {
				return sorted[i].File < sorted[j].File
			}
			return sorted[i].Line < sorted[j].Line
		})

		b.WriteString("\n### Findings\n\n")
		for _, is := range sorted {
			writeMarkdownIssue(&b, is)
		}
	}

	if len(result.Failures) > 0 {
		b.WriteString("### Rule failures\n\n")
		for _, fl := range result.Failures {
			fmt.Fprintf(&b, "- `%s`\n", fl.Error())
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	if result.Template != "" {
		fmt.Fprintf(&b, "*Generated by ctrap · template `%s`*\n", result.Template)
	} else {
		b.WriteString("*Generated by ctrap*\n")
	}
	return []byte(b.String()), nil
}

func writeMarkdownIssue(b *strings.Builder, is issue.Issue) {
	b.WriteString("<details>\n")
	fmt.Fprintf(b, "<summary>%s <strong>%s</strong> %s: %s in <code>%s:%d</code></summary>\n\n",
		severityEmoji(is.Severity), is.Severity, is.RuleID, truncate(is.Message, 80), is.File, is.Line)

	if is.RuleName != "" {
		fmt.Fprintf(b, "**Rule:** %s (%s)\n", is.RuleID, is.RuleName)
	} else {
		fmt.Fprintf(b, "**Rule:** %s\n", is.RuleID)
	}
	fmt.Fprintf(b, "**File:** `%s` line %d\n", is.File, is.Line)
	fmt.Fprintf(b, "\n> %s\n", is.Message)
	if is.Snippet != "" {
		fmt.Fprintf(b, "\n```c\n%s\n```\n", is.Snippet)
	}
	if is.Suggestion != "" {
		fmt.Fprintf(b, "\n**Suggestion:** %s\n", is.Suggestion)
	}
	if is.Reference != "" {
		fmt.Fprintf(b, "\n**Reference:** %s\n", is.Reference)
	}
	b.WriteString("\n</details>\n\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
