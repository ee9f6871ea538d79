package review

import (
	"testing"

	"github.com/chris-regnier/ctrap/internal/issue"
)

func sampleIssues() []issue.Issue {
	return []issue.Issue{
		{RuleID: "S001", RuleName: "Magic Number", File: "b.c", Line: 2, Severity: issue.Suggestion, Message: "magic number 42",
			Snippet: "       1: int main(void) {\n>>>    2:     return 42;\n       3: }"},
		{RuleID: "C001", RuleName: "Array Bounds Check", Category: "memory", File: "a.c", Line: 6, Column: 4,
			Severity: issue.Critical, Message: "index 10 is out of range", Suggestion: "use an index between 0 and 9",
			Snippet: ">>>    6:     arr[10] = 1;"},
		{RuleID: "L001", RuleName: "Assignment In Condition", File: "a.c", Line: 7, Column: 8,
			Severity: issue.Warning, Message: "assignment in condition", Snippet: ">>>    7:     if (x = 5) {"},
	}
}

func TestNewReviewModel(t *testing.T) {
	m := NewReviewModel("run-1", sampleIssues())

	if len(m.findings) != 3 {
		t.Fatalf("expected 3 findings, got %d", len(m.findings))
	}
	if len(m.files) != 2 {
		t.Errorf("expected 2 files, got %d", len(m.files))
	}
	if m.findings[0].File != "a.c" || m.findings[0].Line != 6 {
		t.Errorf("findings should be sorted by location, first is %s", m.findings[0].Location())
	}
	if m.activePane != PaneFiles || m.filter != FilterAll {
		t.Error("unexpected initial pane or filter")
	}
}

func TestFindingID_StableAcrossLineMoves(t *testing.T) {
	is := sampleIssues()[2]
	moved := is
	moved.Line = 40
	moved.Snippet = ">>>   40:     if (x = 5) {"
	if FindingID(is) != FindingID(moved) {
		t.Error("moving a finding should not change its id")
	}
	if FindingID(is) == FindingID(sampleIssues()[1]) {
		t.Error("different findings should have different ids")
	}
}

func TestMarkedLine(t *testing.T) {
	tests := []struct {
		snippet string
		want    string
	}{
		{"       1: a\n>>>    2:     b;\n       3: c", "    b;"},
		{"", ""},
		{"no marker", ""},
	}
	for _, tt := range tests {
		if got := markedLine(tt.snippet); got != tt.want {
			t.Errorf("markedLine(%q) = %q, want %q", tt.snippet, got, tt.want)
		}
	}
}
