package rules

import (
	"testing"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/query"
	"github.com/chris-regnier/ctrap/internal/source"
)

// fakeRule reports every node of one type, or panics when asked to.
type fakeRule struct {
	Base
	nodeType string
	panics   bool
}

func newFakeRule(id, category string, sev issue.Severity, nodeType string) *fakeRule {
	return &fakeRule{
		Base: Base{Metadata: Metadata{
			ID:          id,
			Name:        "fake " + id,
			Category:    category,
			Severity:    sev,
			Description: "reports " + nodeType + " nodes",
			Config:      map[string]any{"limit": 3},
		}},
		nodeType: nodeType,
	}
}

func (f *fakeRule) Check(pass *Pass) {
	if f.panics {
		panic("unexpected node shape")
	}
	for _, n := range query.FindByType(pass.Root(), f.nodeType) {
		pass.Report(n, "found "+query.Text(n, pass.Source()), "")
	}
}

func parseFile(t *testing.T, path, text string) *source.File {
	t.Helper()
	f, err := source.ParseString(path, text)
	if err != nil {
		t.Fatalf("parsing %s: %v", path, err)
	}
	t.Cleanup(f.Close)
	return f
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, rule := range []Rule{
		newFakeRule("C001", "memory", issue.Critical, "number_literal"),
		newFakeRule("C002", "memory", issue.Critical, "call_expression"),
		newFakeRule("L001", "logic", issue.Warning, "if_statement"),
		newFakeRule("S001", "style", issue.Suggestion, "comment"),
	} {
		if err := r.Register(rule); err != nil {
			t.Fatal(err)
		}
	}
	return r
}
