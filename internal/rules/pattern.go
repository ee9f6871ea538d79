package rules

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/query"
)

// Pattern is one regex tested against the text of candidate nodes. The
// message may contain {text}, replaced by the node's source text.
type Pattern struct {
	Regex   *regexp.Regexp `yaml:"-"`
	Raw     string         `yaml:"regex"`
	Message string         `yaml:"message"`
}

// PatternRule is a data-driven rule: for every node of the listed types,
// each pattern that matches the node's text produces an issue.
type PatternRule struct {
	Base      `yaml:",inline"`
	NodeTypes []string  `yaml:"node_types"`
	Patterns  []Pattern `yaml:"patterns"`
}

func (p *PatternRule) Check(pass *Pass) {
	src := pass.Source()
	for _, node := range query.FindByType(pass.Root(), p.NodeTypes...) {
		text := query.Text(node, src)
		for _, pat := range p.Patterns {
			if pat.Regex == nil || !pat.Regex.MatchString(text) {
				continue
			}
			msg := strings.ReplaceAll(pat.Message, "{text}", text)
			pass.Report(node, msg, "")
		}
	}
}

// RuleFile is the YAML document holding pattern rules.
type RuleFile struct {
	Rules []*PatternRule `yaml:"rules"`
}

// ParseRuleFile decodes, validates and compiles a pattern rule file.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}

	seen := make(map[string]bool)
	for i, r := range rf.Rules {
		if err := validatePatternRule(r); err != nil {
			return nil, fmt.Errorf("rule %q (index %d): %w", r.ID, i, err)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule ID %q", r.ID)
		}
		seen[r.ID] = true

		for j := range r.Patterns {
			compiled, err := regexp.Compile(r.Patterns[j].Raw)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid regex pattern: %w", r.ID, err)
			}
			r.Patterns[j].Regex = compiled
		}
		if !r.Severity.Valid() {
			r.Severity = issue.Warning
		}
		if r.Category == "" {
			r.Category = "custom"
		}
	}

	return &rf, nil
}

func validatePatternRule(r *PatternRule) error {
	if r.ID == "" {
		return fmt.Errorf("missing required field: id")
	}
	if r.Name == "" {
		return fmt.Errorf("missing required field: name")
	}
	if len(r.NodeTypes) == 0 {
		return fmt.Errorf("missing required field: node_types")
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("missing required field: patterns")
	}
	for _, p := range r.Patterns {
		if p.Raw == "" {
			return fmt.Errorf("pattern missing required field: regex")
		}
		if p.Message == "" {
			return fmt.Errorf("pattern missing required field: message")
		}
	}
	return nil
}
