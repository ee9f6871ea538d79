package sarif

import (
	"bytes"
	"testing"

	"github.com/chris-regnier/ctrap/internal/issue"
)

func TestLevelRoundTrip(t *testing.T) {
	for _, sev := range issue.Severities() {
		if got := SeverityFromLevel(Level(sev)); got != sev {
			t.Errorf("%v: round trip gave %v", sev, got)
		}
	}
	if Level(issue.Critical) != "error" || Level(issue.Warning) != "warning" || Level(issue.Suggestion) != "note" {
		t.Error("unexpected level mapping")
	}
	if SeverityFromLevel("none") != issue.Suggestion {
		t.Error("unknown levels should read back as suggestions")
	}
}

func TestFingerprint_IgnoresLineNumberAndWhitespace(t *testing.T) {
	a := issue.Issue{RuleID: "L001", File: "main.c", Line: 7, Message: "assignment"}
	b := a
	b.Line = 42
	if Fingerprint(a, "if (x = 5) {") != Fingerprint(b, "    if (x  =  5) {") {
		t.Error("fingerprint should survive moves and reindentation")
	}
	b.Message = "other"
	if Fingerprint(a, "if (x = 5) {") == Fingerprint(b, "if (x = 5) {") {
		t.Error("different messages should give different fingerprints")
	}
}

func TestWriteAndRead(t *testing.T) {
	in := []issue.Issue{{
		RuleID:     "C001",
		RuleName:   "Array Bounds Check",
		Category:   "memory",
		File:       "src/main.c",
		Line:       6,
		Column:     4,
		Severity:   issue.Critical,
		Message:    "array 'arr' has size 10 but index 10 is out of range",
		Suggestion: "use an index between 0 and 9",
		Reference:  "C Traps and Pitfalls - Chapter 2 - P23-P27",
		Snippet:    "arr[10] = 1;",
	}}
	log, err := NewAssembler("1.0.0").AddIssues(in).Build()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := log.PrettyWrite(&buf); err != nil {
		t.Fatal(err)
	}
	parsed, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}

	out := ToIssues(parsed)
	if len(out) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(out))
	}
	if out[0] != in[0] {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out[0], in[0])
	}
}

func TestRead_Invalid(t *testing.T) {
	if _, err := Read(bytes.NewBufferString("{not json")); err == nil {
		t.Error("expected a parse error")
	}
}
