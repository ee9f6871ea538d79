package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/chris-regnier/ctrap/internal/sarif"
	"github.com/chris-regnier/ctrap/internal/store"
)

func TestJSONFormatter(t *testing.T) {
	data, err := (&JSONFormatter{}).Format(sampleOutput(t))
	if err != nil {
		t.Fatal(err)
	}
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if doc.Decision != store.DecisionReject || doc.Template != "c_traps" {
		t.Errorf("unexpected header fields %+v", doc)
	}
	if len(doc.Issues) != 3 || doc.Summary.Total != 3 || doc.Summary.ByRule["C001"] != 1 {
		t.Errorf("unexpected issues/summary %+v", doc.Summary)
	}
	if len(doc.Failures) != 1 || doc.Failures[0].RuleID != "L003" {
		t.Errorf("unexpected failures %+v", doc.Failures)
	}
}

func TestJSONFormatter_EmptyIssuesIsArray(t *testing.T) {
	data, err := (&JSONFormatter{}).Format(&AnalysisOutput{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"issues": []`) {
		t.Errorf("expected an empty issues array, got:\n%s", data)
	}
}

func TestSARIFFormatter(t *testing.T) {
	data, err := (&SARIFFormatter{}).Format(sampleOutput(t))
	if err != nil {
		t.Fatal(err)
	}
	log, err := sarif.Read(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(sarif.ToIssues(log)); got != 3 {
		t.Errorf("expected 3 results, got %d", got)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Error("expected a trailing newline")
	}
}

func TestSARIFFormatter_RequiresLog(t *testing.T) {
	if _, err := (&SARIFFormatter{}).Format(&AnalysisOutput{}); err == nil {
		t.Error("expected an error without a SARIF log")
	}
}

func TestTextFormatter(t *testing.T) {
	data, err := (&TextFormatter{}).Format(sampleOutput(t))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), data)
	}
	want := "src/main.c:6:5: critical [C001] array 'arr' has size 10 but index 10 is out of range"
	if lines[0] != want {
		t.Errorf("first line:\n got %q\nwant %q", lines[0], want)
	}
	if lines[3] != "src/util.c: failure: rule L003 on src/util.c: panic: boom" {
		t.Errorf("unexpected failure line %q", lines[3])
	}
	summary := "3 issues (1 critical, 1 warning, 1 suggestion) in 2 files, 1 suppressed; decision: reject"
	if lines[4] != summary {
		t.Errorf("summary:\n got %q\nwant %q", lines[4], summary)
	}
}

func TestMarkdownFormatter(t *testing.T) {
	data, err := (&MarkdownFormatter{}).Format(sampleOutput(t))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		"## ctrap Analysis Summary",
		"**Decision:** :x: Reject",
		"**Findings:** 3 | **Files:** 2",
		"| Critical | 1 |",
		"<summary>:red_circle: <strong>Critical</strong> C001:",
		"**Rule:** C001 (Array Bounds Check)",
		"```c\narr[10] = 1;\n```",
		"**Suggestion:** use an index between 0 and 9",
		"### Rule failures",
		"template `c_traps`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
	if strings.Index(out, "C001:") > strings.Index(out, "E001:") || strings.Index(out, "E001:") > strings.Index(out, "S001:") {
		t.Error("expected findings ordered by severity")
	}
}

func TestMarkdownFormatter_NoFindings(t *testing.T) {
	data, err := (&MarkdownFormatter{}).Format(&AnalysisOutput{Files: 4})
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "No findings detected.") {
		t.Error("expected the empty message")
	}
	if strings.Contains(out, "**Decision:**") {
		t.Error("no verdict means no decision banner")
	}
}

func TestPrettyFormatter(t *testing.T) {
	data, err := (&PrettyFormatter{Plain: true}).Format(sampleOutput(t))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{"src/main.c", "src/util.c", "magic number 42", "arr[10] = 1;", "use an index between 0 and 9", "rule failure:", "3 issues in 2 files"} {
		if !strings.Contains(out, want) {
			t.Errorf("pretty output missing %q", want)
		}
	}
	if strings.Count(out, "src/main.c") != 1 {
		t.Error("expected issues grouped under one header per file")
	}
}

func TestPrettyFormatter_Empty(t *testing.T) {
	data, err := (&PrettyFormatter{}).Format(&AnalysisOutput{Files: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "No issues in 3 files") {
		t.Errorf("unexpected output %q", data)
	}
}
