package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chris-regnier/ctrap/internal/issue"
)

// Info is a rule's metadata together with its current settings.
type Info struct {
	Metadata
	Enabled           bool           `json:"enabled"`
	EffectiveSeverity issue.Severity `json:"effective_severity"`
	EffectiveConfig   map[string]any `json:"effective_config,omitempty"`
}

// Info describes one rule.
func (r *Registry) Info(id string) (Info, error) {
	rule, ok := r.Get(id)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	s, _ := r.Settings(id)
	return Info{
		Metadata:          *rule.Meta(),
		Enabled:           s.Enabled,
		EffectiveSeverity: s.Severity,
		EffectiveConfig:   s.Config,
	}, nil
}

// Infos describes every rule in registration order.
func (r *Registry) Infos() []Info {
	snap := r.Snapshot()
	rs := r.Rules()
	out := make([]Info, 0, len(rs))
	for _, rule := range rs {
		m := rule.Meta()
		s := snap[m.ID]
		out = append(out, Info{Metadata: *m, Enabled: s.Enabled, EffectiveSeverity: s.Severity, EffectiveConfig: s.Config})
	}
	return out
}

// Markdown renders the rule's explanation: description, rationale,
// examples and reference.
func (i Info) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", i.ID, i.Name)
	state := "disabled"
	if i.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(&b, "**Category:** %s | **Severity:** %s | **Status:** %s\n\n", i.Category, i.EffectiveSeverity, state)
	b.WriteString(i.Description)
	b.WriteString("\n")
	if i.Why != "" {
		fmt.Fprintf(&b, "\n## Why it matters\n\n%s\n", i.Why)
	}
	if i.Suggestion != "" {
		fmt.Fprintf(&b, "\n## Suggestion\n\n%s\n", i.Suggestion)
	}
	writeExamples(&b, "Bad", i.BadExamples())
	writeExamples(&b, "Good", i.GoodExamples())
	if ref := i.Reference.Format(); ref != "" {
		fmt.Fprintf(&b, "\n## Reference\n\n%s\n", ref)
		if i.Reference.Quote != "" {
			fmt.Fprintf(&b, "\n> %s\n", i.Reference.Quote)
		}
		if i.Reference.URL != "" {
			fmt.Fprintf(&b, "\n%s\n", i.Reference.URL)
		}
	}
	if len(i.EffectiveConfig) > 0 {
		b.WriteString("\n## Configuration\n\n")
		for _, k := range sortedKeys(i.EffectiveConfig) {
			fmt.Fprintf(&b, "- `%s`: %v\n", k, i.EffectiveConfig[k])
		}
	}
	return b.String()
}

func writeExamples(b *strings.Builder, title string, examples []Example) {
	for _, e := range examples {
		fmt.Fprintf(b, "\n## %s example\n\n", title)
		if e.Description != "" {
			fmt.Fprintf(b, "%s\n\n", e.Description)
		}
		fmt.Fprintf(b, "```c\n%s\n```\n", strings.TrimRight(e.Code, "\n"))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
