package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/chris-regnier/ctrap/internal/issue"
)

var (
	// ErrUnknownRule is returned for operations naming an unregistered rule.
	ErrUnknownRule = errors.New("unknown rule")
	// ErrUnknownTemplate is returned when applying a template that does not
	// exist.
	ErrUnknownTemplate = errors.New("unknown template")
)

// Settings holds the mutable axes of one rule.
type Settings struct {
	Enabled  bool           `json:"enabled" yaml:"enabled"`
	Severity issue.Severity `json:"severity" yaml:"severity"`
	Config   map[string]any `json:"config" yaml:"config"`
}

func (s Settings) clone() Settings {
	s.Config = maps.Clone(s.Config)
	if s.Config == nil {
		s.Config = map[string]any{}
	}
	return s
}

func defaultSettings(r Rule) Settings {
	m := r.Meta()
	sev := m.Severity
	if !sev.Valid() {
		sev = issue.Warning
	}
	return Settings{Enabled: true, Severity: sev, Config: maps.Clone(m.Config)}.clone()
}

// Registry owns the rule set, the per-rule settings and the templates. It
// is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	order     []string
	rules     map[string]Rule
	settings  map[string]Settings
	templates map[string]*Template

	// Workers bounds how many files Check analyzes at once. Zero means
	// GOMAXPROCS.
	Workers int
}

// NewRegistry creates an empty Registry with the built-in templates loaded.
func NewRegistry() *Registry {
	r := &Registry{
		rules:     make(map[string]Rule),
		settings:  make(map[string]Settings),
		templates: make(map[string]*Template),
	}
	for _, t := range builtinTemplates() {
		r.templates[t.Key] = t
	}
	return r
}

// Register adds rule, keyed by its ID. A rule with the same ID is replaced
// in place and its settings reset to the new rule's defaults.
func (r *Registry) Register(rule Rule) error {
	id := rule.Meta().ID
	if id == "" {
		return fmt.Errorf("registering rule: missing required field: id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[id]; exists {
		slog.Info("replacing existing rule", "rule", id)
	} else {
		r.order = append(r.order, id)
	}
	r.rules[id] = rule
	r.settings[id] = defaultSettings(rule)
	return nil
}

// Remove deletes a rule and its settings.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return false
	}
	delete(r.rules, id)
	delete(r.settings, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get retrieves a rule by ID.
func (r *Registry) Get(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	return rule, ok
}

// Rules returns every rule in registration order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rules[id])
	}
	return out
}

// IDs returns every rule ID in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Enabled returns the enabled rules in registration order.
func (r *Registry) Enabled() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rule
	for _, id := range r.order {
		if r.settings[id].Enabled {
			out = append(out, r.rules[id])
		}
	}
	return out
}

// ByCategory returns the rules in category, in registration order.
func (r *Registry) ByCategory(category string) []Rule {
	var out []Rule
	for _, rule := range r.Rules() {
		if strings.EqualFold(rule.Meta().Category, category) {
			out = append(out, rule)
		}
	}
	return out
}

// Categories returns the distinct categories in sorted order.
func (r *Registry) Categories() []string {
	seen := map[string]bool{}
	for _, rule := range r.Rules() {
		seen[rule.Meta().Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Search matches query case-insensitively against ID, name, description and
// category.
func (r *Registry) Search(query string) []Rule {
	q := strings.ToLower(query)
	var out []Rule
	for _, rule := range r.Rules() {
		m := rule.Meta()
		for _, field := range []string{m.ID, m.Name, m.Description, m.Category} {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

// Settings returns a copy of the settings for id.
func (r *Registry) Settings(id string) (Settings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[id]
	if !ok {
		return Settings{}, false
	}
	return s.clone(), true
}

// Snapshot copies every rule's settings. Check uses it so that changes made
// during a batch do not affect that batch.
func (r *Registry) Snapshot() map[string]Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Settings, len(r.settings))
	for id, s := range r.settings {
		out[id] = s.clone()
	}
	return out
}

// batch returns the enabled rules together with a snapshot of the settings
// they run with, both taken under one lock.
func (r *Registry) batch() ([]Rule, map[string]Settings) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]Settings, len(r.settings))
	for id, s := range r.settings {
		snap[id] = s.clone()
	}
	var enabled []Rule
	for _, id := range r.order {
		if snap[id].Enabled {
			enabled = append(enabled, r.rules[id])
		}
	}
	return enabled, snap
}

func (r *Registry) update(id string, fn func(*Settings)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRule, id)
	}
	fn(&s)
	r.settings[id] = s
	return nil
}

// SetEnabled toggles a rule.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	return r.update(id, func(s *Settings) { s.Enabled = enabled })
}

// SetSeverity overrides a rule's severity.
func (r *Registry) SetSeverity(id string, sev issue.Severity) error {
	if !sev.Valid() {
		return fmt.Errorf("rule %s: %w: %d", id, issue.ErrInvalidSeverity, int(sev))
	}
	return r.update(id, func(s *Settings) { s.Severity = sev })
}

// SetConfig replaces a rule's configuration.
func (r *Registry) SetConfig(id string, config map[string]any) error {
	return r.update(id, func(s *Settings) { s.Config = maps.Clone(config) })
}

// SetAllEnabled enables or disables every rule.
func (r *Registry) SetAllEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.settings {
		s.Enabled = enabled
		r.settings[id] = s
	}
}

// Fingerprint is a stable string covering every rule's settings. Result
// caches key on it so cached findings are invalidated when the
// configuration changes.
func (r *Registry) Fingerprint() string {
	snap := r.Snapshot()
	var sb strings.Builder
	for _, id := range r.IDs() {
		s := snap[id]
		fmt.Fprintf(&sb, "%s:%t:%s:", id, s.Enabled, s.Severity)
		keys := make([]string, 0, len(s.Config))
		for k := range s.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "%s=%v,", k, s.Config[k])
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

// Validate checks the rule set for duplicate IDs and missing metadata and
// returns a human-readable problem list, empty when clean.
func (r *Registry) Validate() []string {
	return ValidateRules(r.Rules())
}

// ValidateRules checks an arbitrary rule list.
func ValidateRules(rules []Rule) []string {
	var problems []string
	seen := map[string]bool{}
	for i, rule := range rules {
		m := rule.Meta()
		label := m.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			problems = append(problems, fmt.Sprintf("rule %s: missing id", label))
		}
		if m.ID != "" && seen[m.ID] {
			problems = append(problems, fmt.Sprintf("duplicate rule id: %s", m.ID))
		}
		seen[m.ID] = true
		if m.Name == "" {
			problems = append(problems, fmt.Sprintf("rule %s: missing name", label))
		}
		if m.Description == "" {
			problems = append(problems, fmt.Sprintf("rule %s: missing description", label))
		}
		if m.Category == "" {
			problems = append(problems, fmt.Sprintf("rule %s: missing category", label))
		}
	}
	return problems
}

// CategoryStats counts rules in one category.
type CategoryStats struct {
	Total   int `json:"total"`
	Enabled int `json:"enabled"`
}

// Statistics summarizes the registry.
type Statistics struct {
	Total              int                      `json:"total"`
	Enabled            int                      `json:"enabled"`
	Categories         map[string]CategoryStats `json:"categories"`
	SeverityBreakdown  map[string]int           `json:"severity_distribution"`
	TemplatesAvailable []string                 `json:"templates_available"`
}

// Statistics counts rules by category and the severities of enabled rules.
func (r *Registry) Statistics() Statistics {
	snap := r.Snapshot()
	st := Statistics{
		Categories:        map[string]CategoryStats{},
		SeverityBreakdown: map[string]int{},
	}
	for _, sev := range issue.Severities() {
		st.SeverityBreakdown[sev.String()] = 0
	}
	for _, rule := range r.Rules() {
		m := rule.Meta()
		s := snap[m.ID]
		st.Total++
		cs := st.Categories[m.Category]
		cs.Total++
		if s.Enabled {
			st.Enabled++
			cs.Enabled++
			st.SeverityBreakdown[s.Severity.String()]++
		}
		st.Categories[m.Category] = cs
	}
	for _, t := range r.Templates() {
		st.TemplatesAvailable = append(st.TemplatesAvailable, t.Key)
	}
	return st
}
