package sarif

import (
	"fmt"

	gosarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

// Assembler provides a builder pattern for constructing SARIF logs from
// engine output.
type Assembler struct {
	version    string
	rules      []*rules.Metadata
	issues     []issue.Issue
	failures   []rules.Failure
	lines      map[string][]string
	inputScope string
	template   string
}

// NewAssembler creates a new Assembler with default values.
func NewAssembler(version string) *Assembler {
	return &Assembler{version: version, lines: map[string][]string{}}
}

// WithRules adds a reporting descriptor for every rule, in order.
func (a *Assembler) WithRules(rs []rules.Rule) *Assembler {
	for _, r := range rs {
		a.rules = append(a.rules, r.Meta())
	}
	return a
}

// AddIssues adds findings as results.
func (a *Assembler) AddIssues(issues []issue.Issue) *Assembler {
	a.issues = append(a.issues, issues...)
	return a
}

// AddFailures records rule failures as tool execution notifications.
func (a *Assembler) AddFailures(failures []rules.Failure) *Assembler {
	a.failures = append(a.failures, failures...)
	return a
}

// WithSource registers the lines of a file so results can carry stable
// fingerprints.
func (a *Assembler) WithSource(path string, lines []string) *Assembler {
	a.lines[path] = lines
	return a
}

// WithInputScope sets the input scope ("files", "dir" or "diff").
func (a *Assembler) WithInputScope(scope string) *Assembler {
	a.inputScope = scope
	return a
}

// WithTemplate records the rule template the run used.
func (a *Assembler) WithTemplate(name string) *Assembler {
	a.template = name
	return a
}

// Build constructs the final SARIF log.
func (a *Assembler) Build() (*Log, error) {
	report, err := gosarif.New(gosarif.Version210)
	if err != nil {
		return nil, fmt.Errorf("creating sarif report: %w", err)
	}
	run := gosarif.NewRunWithInformationURI(ToolName, InformationURI)
	if a.version != "" {
		run.Tool.Driver.WithVersion(a.version)
	}

	for _, m := range a.rules {
		addRule(run, m)
	}

	for _, is := range dedup(a.issues) {
		addResult(run, is, a.lineText(is))
	}

	inv := run.AddInvocation(len(a.failures) == 0)
	for _, f := range a.failures {
		n := gosarif.NewNotification().
			WithLevel("error").
			WithTextMessage(f.Error()).
			WithLocations([]*gosarif.Location{location(f.File, 0, -1, "")})
		if f.RuleID != "" {
			n.WithAssociatedRule(gosarif.NewReportingDescriptorReference().WithId(f.RuleID))
		}
		inv.AddTToolExecutionNotification(n)
	}

	props := gosarif.NewPropertyBag()
	if a.inputScope != "" {
		props.Add(PropInputScope, a.inputScope)
	}
	if a.template != "" {
		props.Add(PropTemplate, a.template)
	}
	if len(props.Properties) > 0 {
		run.AttachPropertyBag(props)
	}

	report.AddRun(run)
	return report, nil
}

func (a *Assembler) lineText(is issue.Issue) string {
	lines := a.lines[is.File]
	if is.Line < 1 || is.Line > len(lines) {
		return ""
	}
	return lines[is.Line-1]
}

func addRule(run *gosarif.Run, m *rules.Metadata) {
	help := m.Description
	if m.Why != "" {
		help += "\n\n" + m.Why
	}
	if m.Suggestion != "" {
		help += "\n\nSuggestion: " + m.Suggestion
	}
	props := gosarif.Properties{PropCategory: m.Category}
	if ref := m.Reference.Format(); ref != "" {
		props[PropReference] = ref
	}
	rule := run.AddRule(m.ID).
		WithName(m.Name).
		WithDescription(m.Description).
		WithHelp(gosarif.NewMultiformatMessageString(help)).
		WithDefaultConfiguration(gosarif.NewReportingConfiguration().WithLevel(Level(m.Severity))).
		WithProperties(props)
	if m.Reference.URL != "" {
		rule.WithHelpURI(m.Reference.URL)
	}
}

func addResult(run *gosarif.Run, is issue.Issue, lineText string) {
	res := run.CreateResultForRule(is.RuleID).
		WithLevel(Level(is.Severity)).
		WithMessage(gosarif.NewTextMessage(is.Message)).
		WithLocations([]*gosarif.Location{location(is.File, is.Line, is.Column, is.Snippet)}).
		WithPartialFingerPrints(map[string]interface{}{PropFingerprint: Fingerprint(is, lineText)})

	props := gosarif.NewPropertyBag()
	props.Add(PropRuleName, is.RuleName)
	if is.Category != "" {
		props.Add(PropCategory, is.Category)
	}
	if is.Suggestion != "" {
		props.Add(PropSuggestion, is.Suggestion)
	}
	if is.Reference != "" {
		props.Add(PropReference, is.Reference)
	}
	res.AttachPropertyBag(props)
}

// location builds a physical location. A negative column omits the
// region; SARIF columns are 1-based.
func location(file string, line, column int, snippet string) *gosarif.Location {
	pl := gosarif.NewPhysicalLocation().
		WithArtifactLocation(gosarif.NewSimpleArtifactLocation(file))
	if column >= 0 && line > 0 {
		region := gosarif.NewRegion().WithStartLine(line).WithStartColumn(column + 1)
		if snippet != "" {
			region.WithSnippet(gosarif.NewArtifactContent().WithText(snippet))
		}
		pl.WithRegion(region)
	}
	return gosarif.NewLocationWithPhysicalLocation(pl)
}
