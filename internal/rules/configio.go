package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chris-regnier/ctrap/internal/issue"
)

// ConfigVersion is written into exported configuration documents.
const ConfigVersion = "1.0"

// Format selects the encoding of an exported configuration.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks YAML for .yaml/.yml paths and JSON otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// ConfigDocument is the persisted form of the registry's settings.
type ConfigDocument struct {
	Version      string                 `json:"version" yaml:"version"`
	EnabledRules []string               `json:"enabled_rules" yaml:"enabled_rules"`
	RuleSettings map[string]RuleSetting `json:"rule_settings" yaml:"rule_settings"`
}

// RuleSetting is one rule's entry in a ConfigDocument.
type RuleSetting struct {
	Enabled  *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Severity string         `json:"severity,omitempty" yaml:"severity,omitempty"`
	Category string         `json:"category,omitempty" yaml:"category,omitempty"`
	Config   map[string]any `json:"config" yaml:"config"`
}

// Document captures the current settings of every rule.
func (r *Registry) Document() *ConfigDocument {
	snap := r.Snapshot()
	doc := &ConfigDocument{
		Version:      ConfigVersion,
		EnabledRules: []string{},
		RuleSettings: map[string]RuleSetting{},
	}
	for _, rule := range r.Rules() {
		m := rule.Meta()
		s := snap[m.ID]
		if s.Enabled {
			doc.EnabledRules = append(doc.EnabledRules, m.ID)
		}
		enabled := s.Enabled
		doc.RuleSettings[m.ID] = RuleSetting{
			Enabled:  &enabled,
			Severity: s.Severity.String(),
			Category: m.Category,
			Config:   s.Config,
		}
	}
	return doc
}

// ExportConfig writes the settings of every rule to w.
func (r *Registry) ExportConfig(w io.Writer, format Format) error {
	doc := exportDocument(r.Document())
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported config format %q", format)
}

// ImportConfig reads a document written by ExportConfig and applies it.
// A document that cannot be decoded returns err and changes nothing.
// Per-rule problems (unknown IDs, invalid severities) are returned as
// problems; the affected fields are left unchanged and the rest of the
// document is applied.
func (r *Registry) ImportConfig(src io.Reader, format Format) (problems []error, err error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var doc ConfigDocument
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&doc)
	default:
		err = fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return r.ApplyDocument(&doc), nil
}

// ApplyDocument applies a decoded configuration document. When
// enabled_rules is present, membership in it decides every rule's enabled
// flag; otherwise each rule setting's enabled field is used.
func (r *Registry) ApplyDocument(doc *ConfigDocument) []error {
	var problems []error
	for id := range doc.RuleSettings {
		if _, ok := r.Get(id); !ok {
			problems = append(problems, fmt.Errorf("%w: %s", ErrUnknownRule, id))
		}
	}

	enabled := map[string]bool{}
	for _, id := range doc.EnabledRules {
		enabled[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		s := r.settings[id]
		rs, hasSettings := doc.RuleSettings[id]
		switch {
		case doc.EnabledRules != nil:
			s.Enabled = enabled[id]
		case hasSettings && rs.Enabled != nil:
			s.Enabled = *rs.Enabled
		}
		if hasSettings {
			if rs.Severity != "" {
				sev, err := issue.ParseSeverity(rs.Severity)
				if err != nil {
					problems = append(problems, fmt.Errorf("rule %s: %w", id, err))
				} else {
					s.Severity = sev
				}
			}
			if rs.Config != nil {
				s.Config = normalizeConfig(rs.Config)
			}
		}
		r.settings[id] = s
	}
	return problems
}

// exportDocument copies doc with every float in the rule configs wrapped so
// that it is written with a decimal point and decodes as a float again.
func exportDocument(doc *ConfigDocument) *ConfigDocument {
	out := *doc
	out.RuleSettings = make(map[string]RuleSetting, len(doc.RuleSettings))
	for id, rs := range doc.RuleSettings {
		if rs.Config != nil {
			cfg := make(map[string]any, len(rs.Config))
			for k, v := range rs.Config {
				cfg[k] = exportValue(v)
			}
			rs.Config = cfg
		}
		out.RuleSettings[id] = rs
	}
	return &out
}

func exportValue(v any) any {
	switch val := v.(type) {
	case float64:
		return floatValue(val)
	case float32:
		return floatValue(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = exportValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = exportValue(e)
		}
		return out
	}
	return v
}

// floatValue is a float64 that always encodes with a fraction or exponent.
type floatValue float64

func (f floatValue) text() string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (f floatValue) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return nil, fmt.Errorf("unsupported float value %v", float64(f))
	}
	return []byte(f.text()), nil
}

func (f floatValue) MarshalYAML() (any, error) {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return float64(f), nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: f.text()}, nil
}

// normalizeConfig turns json.Number values into int or float64 so that a
// JSON import produces the same values as the YAML decoder. A literal with
// a fraction or exponent stays a float even when its value is integral.
func normalizeConfig(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			if i, err := val.Int64(); err == nil {
				return int(i)
			}
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		return normalizeConfig(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	}
	return v
}
