package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chris-regnier/ctrap/internal/issue"
)

// Template is a named bundle of enabled rules and severity overrides.
// Rule IDs are not checked against the registry until the template is
// applied.
type Template struct {
	Key         string                     `json:"-" yaml:"-"`
	Name        string                     `json:"name" yaml:"name"`
	Description string                     `json:"description" yaml:"description"`
	Rules       []string                   `json:"enabled_rules" yaml:"enabled_rules"`
	AllRules    bool                       `json:"all_rules,omitempty" yaml:"all_rules,omitempty"`
	Settings    map[string]TemplateSetting `json:"rule_settings,omitempty" yaml:"rule_settings,omitempty"`
	Custom      bool                       `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// TemplateSetting overrides one rule's severity when the template is
// applied.
type TemplateSetting struct {
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// Includes reports whether the template enables id.
func (t *Template) Includes(id string) bool {
	if t.AllRules {
		return true
	}
	for _, r := range t.Rules {
		if r == id {
			return true
		}
	}
	return false
}

// NormalizeTemplateName lowercases name and replaces spaces with
// underscores.
func NormalizeTemplateName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// Templates returns every template sorted by key.
func (r *Registry) Templates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Template looks up a template by key, falling back to the normalized
// form of name so that "My Rules" finds the template stored as my_rules.
func (r *Registry) Template(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.templates[name]; ok {
		return t, true
	}
	t, ok := r.templates[NormalizeTemplateName(name)]
	return t, ok
}

// AddTemplate stores t under its key, replacing any existing template.
func (r *Registry) AddTemplate(t *Template) {
	if t.Key == "" {
		t.Key = NormalizeTemplateName(t.Name)
	}
	r.mu.Lock()
	r.templates[t.Key] = t
	r.mu.Unlock()
}

// ApplyTemplate enables exactly the template's rules and applies its
// severity overrides. Rules without an override keep their severity, and
// IDs the registry does not know are ignored.
func (r *Registry) ApplyTemplate(name string) error {
	t, ok := r.Template(name)
	if !ok {
		slog.Warn("template not found", "template", name)
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, id := range r.order {
		s := r.settings[id]
		s.Enabled = t.Includes(id)
		if s.Enabled {
			count++
		}
		if ts, ok := t.Settings[id]; ok && ts.Severity != "" {
			sev, err := issue.ParseSeverity(ts.Severity)
			if err != nil {
				slog.Warn("ignoring template severity", "template", name, "rule", id, "err", err)
			} else {
				s.Severity = sev
			}
		}
		r.settings[id] = s
	}
	slog.Info("applied template", "template", name, "rules", count)
	return nil
}

// CreateCustomTemplate stores a template built from ids, dropping IDs that
// are not registered. The dropped IDs are returned.
func (r *Registry) CreateCustomTemplate(name, description string, ids []string) (*Template, []string) {
	var valid, dropped []string
	for _, id := range ids {
		if _, ok := r.Get(id); ok {
			valid = append(valid, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	if len(dropped) > 0 {
		slog.Warn("dropping unknown rule ids from template", "template", name, "ids", dropped)
	}
	t := &Template{
		Key:         NormalizeTemplateName(name),
		Name:        name,
		Description: description,
		Rules:       valid,
		Settings:    map[string]TemplateSetting{},
		Custom:      true,
	}
	r.AddTemplate(t)
	return t, dropped
}

// TemplateInfo describes what applying a template would enable.
type TemplateInfo struct {
	Key                  string         `json:"key"`
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	RuleCount            int            `json:"rule_count"`
	Categories           []string       `json:"categories"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	Custom               bool           `json:"custom,omitempty"`
}

// TemplateInfo reports the rule count, categories and default severity
// distribution of the registered rules a template enables.
func (r *Registry) TemplateInfo(name string) (TemplateInfo, error) {
	t, ok := r.Template(name)
	if !ok {
		return TemplateInfo{}, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	info := TemplateInfo{
		Key:                  t.Key,
		Name:                 t.Name,
		Description:          t.Description,
		SeverityDistribution: map[string]int{},
		Custom:               t.Custom,
	}
	cats := map[string]bool{}
	for _, rule := range r.Rules() {
		m := rule.Meta()
		if !t.Includes(m.ID) {
			continue
		}
		info.RuleCount++
		cats[m.Category] = true
		info.SeverityDistribution[m.Severity.String()]++
	}
	for c := range cats {
		info.Categories = append(info.Categories, c)
	}
	sort.Strings(info.Categories)
	return info, nil
}

// LoadTemplates reads every .json, .yaml and .yml file in dir as a template
// keyed by the file stem. A missing directory is not an error.
func (r *Registry) LoadTemplates(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading template dir %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		var t Template
		if ext == ".json" {
			err = json.Unmarshal(data, &t)
		} else {
			err = yaml.Unmarshal(data, &t)
		}
		if err != nil {
			return loaded, fmt.Errorf("parsing template %s: %w", entry.Name(), err)
		}
		t.Key = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if t.Name == "" {
			t.Name = t.Key
		}
		r.AddTemplate(&t)
		loaded++
	}
	return loaded, nil
}

// SaveTemplate writes t to dir as <key>.yaml so LoadTemplates can read it
// back.
func SaveTemplate(dir string, t *Template) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating template dir: %w", err)
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encoding template: %w", err)
	}
	path := filepath.Join(dir, t.Key+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing template: %w", err)
	}
	return path, nil
}
