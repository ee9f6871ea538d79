package rules

import (
	"regexp"
	"strings"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/source"
)

// SuppressMarker is the comment directive that silences findings on its own
// line and the line that follows it.
const SuppressMarker = "ctrap:ignore"

var suppressRe = regexp.MustCompile(`(?://|/\*).*?ctrap:ignore\b([ \t]+[A-Za-z0-9_]+(?:[ \t]*,[ \t]*[A-Za-z0-9_]+)*)?`)

// suppression lists the rule IDs silenced on a line. An empty list silences
// every rule.
type suppression []string

func (s suppression) covers(id string) bool {
	if len(s) == 0 {
		return true
	}
	for _, r := range s {
		if strings.EqualFold(r, id) {
			return true
		}
	}
	return false
}

func parseSuppression(line string) (suppression, bool) {
	m := suppressRe.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	var ids suppression
	for _, part := range strings.Split(m[1], ",") {
		if p := strings.TrimSpace(part); p != "" {
			ids = append(ids, p)
		}
	}
	return ids, true
}

// Suppress drops issues covered by a ctrap:ignore comment on the same line
// or the line above. It returns the kept issues and how many were dropped.
func Suppress(f *source.File, issues []issue.Issue) ([]issue.Issue, int) {
	if len(issues) == 0 || !strings.Contains(string(f.Text), SuppressMarker) {
		return issues, 0
	}
	cache := map[int]suppression{}
	present := map[int]bool{}
	lookup := func(line int) (suppression, bool) {
		if ok, seen := present[line]; seen {
			return cache[line], ok
		}
		s, ok := parseSuppression(f.Line(line))
		cache[line], present[line] = s, ok
		return s, ok
	}

	kept := issues[:0:0]
	dropped := 0
	for _, is := range issues {
		if s, ok := lookup(is.Line); ok && s.covers(is.RuleID) {
			dropped++
			continue
		}
		if s, ok := lookup(is.Line - 1); ok && s.covers(is.RuleID) {
			dropped++
			continue
		}
		kept = append(kept, is)
	}
	return kept, dropped
}

// SuppressComment returns the comment text that silences ids.
func SuppressComment(ids ...string) string {
	if len(ids) == 0 {
		return "// " + SuppressMarker
	}
	return "// " + SuppressMarker + " " + strings.Join(ids, ",")
}
