package output

import (
	"fmt"
	"strings"

	"github.com/chris-regnier/ctrap/internal/issue"
)

// TextFormatter writes one compiler-style line per issue followed by a
// summary line, for editors and grep.
type TextFormatter struct{}

func (f *TextFormatter) Format(result *AnalysisOutput) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("text formatter: result is required")
	}
	var b strings.Builder
	for _, is := range result.Issues {
		fmt.Fprintf(&b, "%s:%d:%d: %s [%s] %s\n",
			is.File, is.Line, is.Column+1, strings.ToLower(is.Severity.String()), is.RuleID, is.Message)
	}
	for _, fl := range result.Failures {
		fmt.Fprintf(&b, "%s: failure: %s\n", fl.File, fl.Error())
	}

	s := result.Summary()
	fmt.Fprintf(&b, "%d issues (%d critical, %d warning, %d suggestion) in %d files",
		s.Total,
		s.BySeverity[issue.Critical.String()],
		s.BySeverity[issue.Warning.String()],
		s.BySeverity[issue.Suggestion.String()],
		result.Files)
	if result.Suppressed > 0 {
		fmt.Fprintf(&b, ", %d suppressed", result.Suppressed)
	}
	if result.Verdict != nil {
		fmt.Fprintf(&b, "; decision: %s", result.Verdict.Decision)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
