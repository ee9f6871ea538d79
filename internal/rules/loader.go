package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadPatternRules reads pattern rules from the user and project rule
// directories. Project rules override user rules with the same ID. The
// result is sorted by ID.
func LoadPatternRules(userDir, projectDir string) ([]*PatternRule, error) {
	merged := map[string]*PatternRule{}

	userRules, err := loadDir(userDir)
	if err != nil {
		return nil, fmt.Errorf("loading user rules from %s: %w", userDir, err)
	}
	for _, r := range userRules {
		merged[r.ID] = r
	}

	projectRules, err := loadDir(projectDir)
	if err != nil {
		return nil, fmt.Errorf("loading project rules from %s: %w", projectDir, err)
	}
	for _, r := range projectRules {
		merged[r.ID] = r
	}

	result := make([]*PatternRule, 0, len(merged))
	for _, r := range merged {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// RegisterPatternRules loads pattern rules and registers them, replacing
// built-in rules with the same ID.
func (r *Registry) RegisterPatternRules(userDir, projectDir string) (int, error) {
	loaded, err := LoadPatternRules(userDir, projectDir)
	if err != nil {
		return 0, err
	}
	for _, pr := range loaded {
		if err := r.Register(pr); err != nil {
			return 0, err
		}
	}
	return len(loaded), nil
}

func loadDir(dir string) ([]*PatternRule, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var allRules []*PatternRule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		rf, err := ParseRuleFile(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}

		allRules = append(allRules, rf.Rules...)
	}
	return allRules, nil
}
