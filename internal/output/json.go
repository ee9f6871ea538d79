package output

import (
	"encoding/json"
	"fmt"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

// JSONFormatter renders the issues, summary and verdict as one document.
type JSONFormatter struct{}

type jsonDocument struct {
	Decision   string          `json:"decision,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Template   string          `json:"template,omitempty"`
	Files      int             `json:"files"`
	Suppressed int             `json:"suppressed"`
	CacheHits  int             `json:"cache_hits"`
	DurationMS int64           `json:"duration_ms"`
	Summary    issue.Summary   `json:"summary"`
	Issues     []issue.Issue   `json:"issues"`
	Failures   []rules.Failure `json:"failures,omitempty"`
}

func (f *JSONFormatter) Format(result *AnalysisOutput) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("json formatter: result is required")
	}
	doc := jsonDocument{
		Template:   result.Template,
		Files:      result.Files,
		Suppressed: result.Suppressed,
		CacheHits:  result.CacheHits,
		DurationMS: result.Duration.Milliseconds(),
		Summary:    result.Summary(),
		Issues:     result.Issues,
		Failures:   result.Failures,
	}
	if doc.Issues == nil {
		doc.Issues = []issue.Issue{}
	}
	if result.Verdict != nil {
		doc.Decision = result.Verdict.Decision
		doc.Reason = result.Verdict.Reason
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json formatter: %w", err)
	}
	return append(data, '\n'), nil
}
