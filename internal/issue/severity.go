package issue

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Severity ranks how urgently an issue needs attention.
type Severity int

const (
	Suggestion Severity = iota + 1
	Warning
	Critical
)

// ErrInvalidSeverity is returned when a severity string is not recognized.
var ErrInvalidSeverity = errors.New("invalid severity")

// Severities lists every severity from most to least urgent.
func Severities() []Severity {
	return []Severity{Critical, Warning, Suggestion}
}

func (s Severity) String() string {
	switch s {
	case Critical:
		return "Critical"
	case Warning:
		return "Warning"
	case Suggestion:
		return "Suggestion"
	default:
		return "Unknown"
	}
}

// Rank orders severities: Critical > Warning > Suggestion. Unknown is 0.
func (s Severity) Rank() int {
	if s.Valid() {
		return int(s)
	}
	return 0
}

// Valid reports whether s is one of the three defined severities.
func (s Severity) Valid() bool {
	return s >= Suggestion && s <= Critical
}

// Level maps the severity onto a SARIF result level.
func (s Severity) Level() string {
	switch s {
	case Critical:
		return "error"
	case Warning:
		return "warning"
	default:
		return "note"
	}
}

// ParseSeverity accepts the severity names case-insensitively, and the
// SARIF levels error, warning and note.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "error":
		return Critical, nil
	case "warning":
		return Warning, nil
	case "suggestion", "note", "info":
		return Suggestion, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSeverity, s)
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSeverity, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Severity) MarshalYAML() (interface{}, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSeverity, int(s))
	}
	return s.String(), nil
}

func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(str))
}
