package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/issue"
)

func TestBuiltinTemplates(t *testing.T) {
	r := NewRegistry()
	var keys []string
	for _, tpl := range r.Templates() {
		keys = append(keys, tpl.Key)
	}
	assert.Equal(t, []string{"beginner", "c_traps", "embedded", "enterprise", "misra_c"}, keys)

	beginner, ok := r.Template("beginner")
	require.True(t, ok)
	assert.Equal(t, []string{"C001", "C002", "L001", "L002", "L005"}, beginner.Rules)
}

func TestApplyTemplate_TotalOverwrite(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.ApplyTemplate("beginner"))

	tpl, _ := r.Template("beginner")
	for _, id := range r.IDs() {
		s, _ := r.Settings(id)
		assert.Equal(t, tpl.Includes(id), s.Enabled, "rule %s", id)
	}
	assert.Equal(t, []string{"C001", "C002", "L001"}, ids(r.Enabled()))
}

func TestApplyTemplate_All(t *testing.T) {
	r := newTestRegistry(t)
	r.SetAllEnabled(false)
	require.NoError(t, r.ApplyTemplate("enterprise"))
	assert.Len(t, r.Enabled(), 4)
}

func TestApplyTemplate_Unknown(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetEnabled("S001", false))
	err := r.ApplyTemplate("does-not-exist")
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
	assert.Equal(t, []string{"C001", "C002", "L001"}, ids(r.Enabled()), "state unchanged")
}

func TestApplyTemplate_SeverityOverrides(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetSeverity("L001", issue.Suggestion))
	r.AddTemplate(&Template{
		Key:   "strict",
		Name:  "Strict",
		Rules: []string{"C001", "L001", "GHOST"},
		Settings: map[string]TemplateSetting{
			"C001": {Severity: "Warning"},
			"C002": {Severity: "nonsense"},
		},
	})
	require.NoError(t, r.ApplyTemplate("strict"))

	c1, _ := r.Settings("C001")
	assert.Equal(t, issue.Warning, c1.Severity)
	c2, _ := r.Settings("C002")
	assert.Equal(t, issue.Critical, c2.Severity, "invalid override leaves severity alone")
	assert.False(t, c2.Enabled)
	l1, _ := r.Settings("L001")
	assert.Equal(t, issue.Suggestion, l1.Severity, "rules without overrides keep their severity")
	assert.True(t, l1.Enabled)
}

func TestCreateCustomTemplate(t *testing.T) {
	r := newTestRegistry(t)
	tpl, dropped := r.CreateCustomTemplate("My Team Rules", "ours", []string{"C001", "X999", "L001"})

	assert.Equal(t, "my_team_rules", tpl.Key)
	assert.Equal(t, []string{"C001", "L001"}, tpl.Rules)
	assert.Equal(t, []string{"X999"}, dropped)
	assert.True(t, tpl.Custom)

	stored, ok := r.Template("my_team_rules")
	require.True(t, ok)
	assert.Same(t, tpl, stored)

	require.NoError(t, r.ApplyTemplate("my_team_rules"))
	assert.Equal(t, []string{"C001", "L001"}, ids(r.Enabled()))
}

func TestCustomTemplate_LookupByDisplayName(t *testing.T) {
	r := newTestRegistry(t)
	tpl, _ := r.CreateCustomTemplate("My Template", "", []string{"S001"})

	stored, ok := r.Template("My Template")
	require.True(t, ok)
	assert.Same(t, tpl, stored)

	require.NoError(t, r.ApplyTemplate("My Template"))
	assert.Equal(t, []string{"S001"}, ids(r.Enabled()))

	info, err := r.TemplateInfo(" my template ")
	require.NoError(t, err)
	assert.Equal(t, "my_template", info.Key)
	assert.Equal(t, 1, info.RuleCount)
}

func TestTemplateInfo(t *testing.T) {
	r := newTestRegistry(t)
	info, err := r.TemplateInfo("c_traps")
	require.NoError(t, err)
	assert.Equal(t, 3, info.RuleCount)
	assert.Equal(t, []string{"logic", "memory"}, info.Categories)
	assert.Equal(t, 2, info.SeverityDistribution["Critical"])
	assert.Equal(t, 1, info.SeverityDistribution["Warning"])

	_, err = r.TemplateInfo("missing")
	assert.True(t, errors.Is(err, ErrUnknownTemplate))
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "team.json", `{"name": "Team", "description": "d", "enabled_rules": ["S001"], "rule_settings": {"S001": {"severity": "Critical"}}}`)
	writeFile(t, dir, "night.yaml", "name: Night\nenabled_rules: [C002]\n")
	writeFile(t, dir, "notes.txt", "ignored")

	r := newTestRegistry(t)
	n, err := r.LoadTemplates(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.ApplyTemplate("team"))
	assert.Equal(t, []string{"S001"}, ids(r.Enabled()))
	s, _ := r.Settings("S001")
	assert.Equal(t, issue.Critical, s.Severity)

	require.NoError(t, r.ApplyTemplate("night"))
	assert.Equal(t, []string{"C002"}, ids(r.Enabled()))
}

func TestLoadTemplates_MissingDir(t *testing.T) {
	r := NewRegistry()
	n, err := r.LoadTemplates(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadTemplates_BadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", "{not json")
	_, err := NewRegistry().LoadTemplates(dir)
	assert.Error(t, err)
}

func TestSaveTemplate_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t)
	tpl, _ := r.CreateCustomTemplate("Saved", "", []string{"L001"})
	_, err := SaveTemplate(dir, tpl)
	require.NoError(t, err)

	other := newTestRegistry(t)
	_, err = other.LoadTemplates(dir)
	require.NoError(t, err)
	require.NoError(t, other.ApplyTemplate("saved"))
	assert.Equal(t, []string{"L001"}, ids(other.Enabled()))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating dir %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}
