package checks

import (
	"fmt"

	"github.com/chris-regnier/ctrap/internal/rules"
)

// All returns a fresh instance of every built-in rule in ID order.
func All() []rules.Rule {
	return []rules.Rule{
		NewArrayBounds(),
		NewNullCheck(),
		NewMemoryLeak(),
		NewBufferOverflow(),
		NewUseAfterFree(),
		NewVolatileUsage(),
		NewISRRestrictions(),
		NewRegisterAccess(),
		NewTaskStack(),
		NewPowerManagement(),
		NewAssignmentInCondition(),
		NewSwitchFallthrough(),
		NewUnusedVariable(),
		NewIgnoredReturn(),
		NewDivisionByZero(),
		NewMagicNumber(),
		NewFunctionLength(),
		NewNaming(),
		NewCommentQuality(),
		NewIndentation(),
	}
}

// Register adds every built-in rule to reg.
func Register(reg *rules.Registry) error {
	for _, r := range All() {
		if err := reg.Register(r); err != nil {
			return fmt.Errorf("registering built-in rule %s: %w", r.Meta().ID, err)
		}
	}
	return nil
}

// NewRegistry returns a registry pre-loaded with all built-in rules and
// templates.
func NewRegistry() *rules.Registry {
	reg := rules.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
