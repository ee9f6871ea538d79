package issue

import (
	"sort"
)

// Count pairs a key with the number of issues attributed to it.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary aggregates an issue list. Everything in it is derivable from the
// list itself.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByRule     map[string]int `json:"by_rule"`
	ByCategory map[string]int `json:"by_category"`
	ByFile     map[string]int `json:"by_file"`
	TopRules   []Count        `json:"top_rules"`
	TopFiles   []Count        `json:"top_files"`
	Score      int            `json:"score"`
}

const topN = 10

// Summarize counts issues by severity, rule, category and file.
func Summarize(issues []Issue) Summary {
	s := Summary{
		Total:      len(issues),
		BySeverity: map[string]int{},
		ByRule:     map[string]int{},
		ByCategory: map[string]int{},
		ByFile:     map[string]int{},
	}
	for _, sev := range Severities() {
		s.BySeverity[sev.String()] = 0
	}
	for _, is := range issues {
		s.BySeverity[is.Severity.String()]++
		s.ByRule[is.RuleID]++
		if is.Category != "" {
			s.ByCategory[is.Category]++
		}
		s.ByFile[is.File]++
	}
	s.TopRules = top(s.ByRule, topN)
	s.TopFiles = top(s.ByFile, topN)
	s.Score = Score(s.BySeverity)
	return s
}

// Score is a 0-100 quality score: each critical issue costs 10 points, each
// warning 3, each suggestion 1.
func Score(bySeverity map[string]int) int {
	penalty := bySeverity[Critical.String()]*10 +
		bySeverity[Warning.String()]*3 +
		bySeverity[Suggestion.String()]
	if penalty >= 100 {
		return 0
	}
	return 100 - penalty
}

func top(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
