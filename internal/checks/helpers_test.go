package checks

import (
	"maps"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
	"github.com/chris-regnier/ctrap/internal/source"
)

// run executes rule against src with its default settings.
func run(t *testing.T, rule rules.Rule, src string) []issue.Issue {
	t.Helper()
	return runWith(t, rule, src, nil)
}

// runWith executes rule against src with overrides merged over the rule's
// default configuration.
func runWith(t *testing.T, rule rules.Rule, src string, overrides map[string]any) []issue.Issue {
	t.Helper()
	f, err := source.ParseString("test.c", src)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	meta := rule.Meta()
	cfg := maps.Clone(meta.Config)
	if cfg == nil {
		cfg = map[string]any{}
	}
	maps.Copy(cfg, overrides)
	pass := rules.NewPass(f, meta, rules.Settings{Enabled: true, Severity: meta.Severity, Config: cfg})
	rule.Check(pass)
	return pass.Issues()
}

func issueLines(issues []issue.Issue) []int {
	out := make([]int, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Line)
	}
	return out
}
