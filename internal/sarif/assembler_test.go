package sarif

import (
	"errors"
	"testing"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

type stubRule struct{ rules.Base }

func (stubRule) Check(*rules.Pass) {}

func newStub(id, category string, sev issue.Severity) rules.Rule {
	r := &stubRule{}
	r.Metadata = rules.Metadata{
		ID:          id,
		Name:        id + " name",
		Category:    category,
		Severity:    sev,
		Description: id + " description",
		Why:         "because",
		Reference:   rules.Reference{Book: "Book", Chapter: "Chapter 1", URL: "https://example.com/" + id},
	}
	return r
}

var _ rules.Rule = (*stubRule)(nil)

func TestAssemble(t *testing.T) {
	rs := []rules.Rule{
		newStub("C001", "memory", issue.Critical),
		newStub("S001", "style", issue.Suggestion),
	}
	report := &rules.Report{
		Issues: []issue.Issue{
			{RuleID: "C001", File: "a.c", Line: 3, Column: 2, Severity: issue.Critical, Message: "A"},
			{RuleID: "S001", File: "a.c", Line: 5, Column: 0, Severity: issue.Suggestion, Message: "B"},
		},
	}

	log, err := Assemble("0.1.0", rs, report, "dir")
	if err != nil {
		t.Fatal(err)
	}
	if len(log.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(log.Runs))
	}
	run := log.Runs[0]
	if run.Tool.Driver.Name != ToolName {
		t.Errorf("expected tool name %q, got %q", ToolName, run.Tool.Driver.Name)
	}
	if len(run.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(run.Results))
	}
	if len(run.Tool.Driver.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(run.Tool.Driver.Rules))
	}
	rule := run.Tool.Driver.Rules[0]
	if rule.DefaultConfiguration == nil || rule.DefaultConfiguration.Level != "error" {
		t.Errorf("expected default level error for C001")
	}
	if rule.Properties[PropReference] != "Book - Chapter 1" {
		t.Errorf("unexpected reference property %v", rule.Properties[PropReference])
	}
	if rule.HelpURI == nil || *rule.HelpURI != "https://example.com/C001" {
		t.Errorf("expected help URI from the reference")
	}
	if run.Properties[PropInputScope] != "dir" {
		t.Errorf("expected inputScope 'dir', got %v", run.Properties[PropInputScope])
	}
	if len(run.Invocations) != 1 || !*run.Invocations[0].ExecutionSuccessful {
		t.Error("expected one successful invocation")
	}

	col := run.Results[0].Locations[0].PhysicalLocation.Region.StartColumn
	if col == nil || *col != 3 {
		t.Errorf("expected 1-based column 3, got %v", col)
	}
}

func TestAssemble_Failures(t *testing.T) {
	report := &rules.Report{
		Failures: []rules.Failure{{RuleID: "C003", File: "b.c", Err: errors.New("boom"), Reason: "panic: boom"}},
	}
	log, err := Assemble("", nil, report, "files")
	if err != nil {
		t.Fatal(err)
	}
	inv := log.Runs[0].Invocations[0]
	if *inv.ExecutionSuccessful {
		t.Error("a failed rule should mark the invocation unsuccessful")
	}
	if len(inv.ToolExecutionNotifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(inv.ToolExecutionNotifications))
	}
	n := inv.ToolExecutionNotifications[0]
	if n.AssociatedRule == nil || *n.AssociatedRule.Id != "C003" {
		t.Error("expected the notification to name the failed rule")
	}
	if *n.Message.Text != "rule C003 on b.c: panic: boom" {
		t.Errorf("unexpected message %q", *n.Message.Text)
	}
}

func TestAssemble_Dedup(t *testing.T) {
	dup := issue.Issue{RuleID: "L001", File: "a.c", Line: 2, Column: 8, Severity: issue.Critical, Message: "assignment"}
	other := dup
	other.Line = 9

	log, err := NewAssembler("").AddIssues([]issue.Issue{dup, dup, other}).Build()
	if err != nil {
		t.Fatal(err)
	}
	if n := len(log.Runs[0].Results); n != 2 {
		t.Errorf("expected 2 results after dedup, got %d", n)
	}
}

func TestAssembler_FingerprintUsesSource(t *testing.T) {
	is := issue.Issue{RuleID: "L001", File: "a.c", Line: 2, Severity: issue.Critical, Message: "m"}
	log, err := NewAssembler("").
		WithSource("a.c", []string{"int x;", "if (x = 1) {"}).
		AddIssues([]issue.Issue{is}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	got := log.Runs[0].Results[0].PartialFingerprints[PropFingerprint]
	if got != Fingerprint(is, "if (x = 1) {") {
		t.Errorf("unexpected fingerprint %v", got)
	}
}
