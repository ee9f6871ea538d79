package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-regnier/ctrap/internal/issue"
)

func ids(rules []Rule) []string {
	var out []string
	for _, r := range rules {
		out = append(out, r.Meta().ID)
	}
	return out
}

func TestRegister_PreservesOrder(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{"C001", "C002", "L001", "S001"}, ids(r.Rules()))
	assert.Equal(t, []string{"C001", "C002", "L001", "S001"}, ids(r.Enabled()))
}

func TestRegister_ReplacesInPlace(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetSeverity("C002", issue.Suggestion))

	replacement := newFakeRule("C002", "memory", issue.Warning, "identifier")
	require.NoError(t, r.Register(replacement))

	assert.Equal(t, []string{"C001", "C002", "L001", "S001"}, ids(r.Rules()))
	got, ok := r.Get("C002")
	require.True(t, ok)
	assert.Same(t, replacement, got)

	s, _ := r.Settings("C002")
	assert.Equal(t, issue.Warning, s.Severity, "settings reset to the new rule's defaults")
}

func TestRegister_MissingID(t *testing.T) {
	r := NewRegistry()
	err := r.Register(newFakeRule("", "x", issue.Warning, "identifier"))
	assert.Error(t, err)
	assert.Empty(t, r.Rules())
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t)
	assert.True(t, r.Remove("C002"))
	assert.False(t, r.Remove("C002"))
	assert.Equal(t, []string{"C001", "L001", "S001"}, ids(r.Rules()))
	_, ok := r.Settings("C002")
	assert.False(t, ok)
}

func TestEnabled_Filter(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetEnabled("C002", false))
	assert.Equal(t, []string{"C001", "L001", "S001"}, ids(r.Enabled()))

	err := r.SetEnabled("NOPE", true)
	assert.True(t, errors.Is(err, ErrUnknownRule))
}

func TestSetSeverity_Invalid(t *testing.T) {
	r := newTestRegistry(t)
	err := r.SetSeverity("C001", issue.Severity(42))
	assert.True(t, errors.Is(err, issue.ErrInvalidSeverity))
	s, _ := r.Settings("C001")
	assert.Equal(t, issue.Critical, s.Severity)
}

func TestSettings_AreCopies(t *testing.T) {
	r := newTestRegistry(t)
	s, _ := r.Settings("C001")
	s.Config["limit"] = 99
	again, _ := r.Settings("C001")
	assert.Equal(t, 3, again.Config["limit"])
}

func TestSettings_IsolatedBetweenRegistries(t *testing.T) {
	shared := newFakeRule("C001", "memory", issue.Critical, "identifier")
	a, b := NewRegistry(), NewRegistry()
	require.NoError(t, a.Register(shared))
	require.NoError(t, b.Register(shared))

	require.NoError(t, a.SetEnabled("C001", false))
	require.NoError(t, a.SetConfig("C001", map[string]any{"limit": 7}))

	sb, _ := b.Settings("C001")
	assert.True(t, sb.Enabled)
	assert.Equal(t, 3, sb.Config["limit"])
}

func TestByCategoryAndSearch(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{"C001", "C002"}, ids(r.ByCategory("Memory")))
	assert.Equal(t, []string{"logic", "memory", "style"}, r.Categories())

	assert.Equal(t, []string{"L001"}, ids(r.Search("if_statement")))
	assert.Equal(t, []string{"S001"}, ids(r.Search("STYLE")))
	assert.Empty(t, r.Search("nothing matches this"))
}

func TestValidate(t *testing.T) {
	r := newTestRegistry(t)
	assert.Empty(t, r.Validate())

	broken := newFakeRule("X001", "", issue.Warning, "identifier")
	broken.Name = ""
	dup := newFakeRule("X001", "logic", issue.Warning, "identifier")
	problems := ValidateRules([]Rule{broken, dup})
	assert.Contains(t, problems, "rule X001: missing name")
	assert.Contains(t, problems, "rule X001: missing category")
	assert.Contains(t, problems, "duplicate rule id: X001")
}

func TestStatistics(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SetEnabled("S001", false))
	st := r.Statistics()

	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.Enabled)
	assert.Equal(t, CategoryStats{Total: 2, Enabled: 2}, st.Categories["memory"])
	assert.Equal(t, CategoryStats{Total: 1, Enabled: 0}, st.Categories["style"])
	assert.Equal(t, 2, st.SeverityBreakdown["Critical"])
	assert.Equal(t, 1, st.SeverityBreakdown["Warning"])
	assert.Equal(t, 0, st.SeverityBreakdown["Suggestion"])
	assert.Contains(t, st.TemplatesAvailable, "beginner")
}

func TestFingerprint_ChangesWithSettings(t *testing.T) {
	r := newTestRegistry(t)
	before := r.Fingerprint()
	assert.Equal(t, before, r.Fingerprint())
	require.NoError(t, r.SetConfig("C001", map[string]any{"limit": 4}))
	assert.NotEqual(t, before, r.Fingerprint())
}

func TestReferenceFormat(t *testing.T) {
	tests := []struct {
		ref  Reference
		want string
	}{
		{Reference{}, ""},
		{Reference{Chapter: "3"}, ""},
		{Reference{Book: "C Traps and Pitfalls"}, "C Traps and Pitfalls"},
		{Reference{Book: "B", Chapter: "Ch 2", Page: "p. 14"}, "B - Ch 2 - p. 14"},
		{Reference{Book: "B", Page: "p. 14"}, "B - p. 14"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ref.Format())
	}
}
