package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/config"
	"github.com/chris-regnier/ctrap/internal/rules"
)

type wizardStep int

const (
	stepTemplate wizardStep = iota
	stepFormat
	stepExclude
	stepConfirm
	stepDone
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginLeft(2)

	descriptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				MarginLeft(4)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)
)

type choice struct {
	key         string
	title       string
	description string
}

func (c choice) FilterValue() string { return c.title }
func (c choice) Title() string       { return c.title }
func (c choice) Description() string { return c.description }

var formatChoices = []list.Item{
	choice{"pretty", "pretty", "Colored terminal output, plain when piped"},
	choice{"text", "text", "One line per finding, compiler style"},
	choice{"json", "json", "Machine readable results"},
	choice{"sarif", "sarif", "SARIF 2.1.0 log"},
	choice{"markdown", "markdown", "Report for pull request comments"},
}

// initModel walks through the settings of a new project configuration.
type initModel struct {
	step      wizardStep
	templates list.Model
	formats   list.Model
	exclude   textinput.Model

	template string
	format   string
	patterns []string

	cancelled bool
	width     int
}

func newInitModel(reg *rules.Registry) initModel {
	var items []list.Item
	for _, t := range reg.Templates() {
		info, err := reg.TemplateInfo(t.Key)
		if err != nil {
			continue
		}
		items = append(items, choice{
			key:         t.Key,
			title:       t.Name,
			description: fmt.Sprintf("%d rules: %s", info.RuleCount, t.Description),
		})
	}

	tl := list.New(items, list.NewDefaultDelegate(), 0, 0)
	tl.Title = "Rule template"
	tl.SetShowStatusBar(false)
	tl.SetFilteringEnabled(false)
	for i, it := range items {
		if it.(choice).key == config.SystemDefaults().Template {
			tl.Select(i)
		}
	}

	fl := list.New(formatChoices, list.NewDefaultDelegate(), 0, 0)
	fl.Title = "Output format"
	fl.SetShowStatusBar(false)
	fl.SetFilteringEnabled(false)

	ti := textinput.New()
	ti.Placeholder = "vendor/**, build/**"
	ti.Focus()

	return initModel{templates: tl, formats: fl, exclude: ti}
}

func (m initModel) Init() tea.Cmd { return nil }

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.templates.SetSize(msg.Width-4, msg.Height-6)
		m.formats.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "esc":
			if m.step > stepTemplate {
				m.step--
			}
			return m, nil
		case "enter":
			return m.advance()
		}
		if m.step == stepConfirm {
			switch msg.String() {
			case "y":
				m.step = stepDone
				return m, tea.Quit
			case "n", "q":
				m.cancelled = true
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	switch m.step {
	case stepTemplate:
		m.templates, cmd = m.templates.Update(msg)
	case stepFormat:
		m.formats, cmd = m.formats.Update(msg)
	case stepExclude:
		m.exclude, cmd = m.exclude.Update(msg)
	}
	return m, cmd
}

func (m initModel) advance() (tea.Model, tea.Cmd) {
	switch m.step {
	case stepTemplate:
		if c, ok := m.templates.SelectedItem().(choice); ok {
			m.template = c.key
			m.step = stepFormat
		}
	case stepFormat:
		if c, ok := m.formats.SelectedItem().(choice); ok {
			m.format = c.key
			m.step = stepExclude
			return m, textinput.Blink
		}
	case stepExclude:
		m.patterns = splitPatterns(m.exclude.Value())
		m.step = stepConfirm
	case stepConfirm:
		m.step = stepDone
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) View() string {
	help := helpStyle.Render("↑/↓: navigate • enter: select • esc: back • ctrl+c: quit")
	switch m.step {
	case stepTemplate:
		return fmt.Sprintf("%s\n\n%s\n%s", titleStyle.Render("ctrap init"), m.templates.View(), help)
	case stepFormat:
		return fmt.Sprintf("%s\n\n%s\n%s", titleStyle.Render("ctrap init"), m.formats.View(), help)
	case stepExclude:
		return fmt.Sprintf("%s\n\n%s\n\n  %s\n%s",
			titleStyle.Render("Exclude patterns"),
			descriptionStyle.Render("Comma separated globs of paths to skip (optional):"),
			m.exclude.View(),
			helpStyle.Render("enter: continue • esc: back • ctrl+c: quit"))
	case stepConfirm:
		preview := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Render(m.summary())
		return fmt.Sprintf("%s\n\n%s\n%s",
			titleStyle.Render("Write configuration?"),
			preview,
			helpStyle.Render("y/enter: write • n: cancel • esc: back"))
	}
	return ""
}

func (m initModel) summary() string {
	exclude := "none"
	if len(m.patterns) > 0 {
		exclude = strings.Join(m.patterns, ", ")
	}
	return fmt.Sprintf("template: %s\nformat:   %s\nexclude:  %s", m.template, m.format, exclude)
}

func (m initModel) config() *config.Config {
	return newProjectConfig(m.template, m.format, m.patterns)
}

func newProjectConfig(template, format string, exclude []string) *config.Config {
	defaults := config.SystemDefaults()
	return &config.Config{
		Template: template,
		Exclude:  exclude,
		Output:   config.OutputConfig{Format: format, Dir: defaults.Output.Dir},
		Cache:    config.CacheConfig{Dir: defaults.Cache.Dir, TTL: defaults.Cache.TTL},
	}
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var errInitCancelled = errors.New("init cancelled")

func newInitCmd() *cobra.Command {
	var (
		template string
		format   string
		exclude  []string
		yes      bool
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .ctrap/config.yaml for this project",
		Long: `Create a project configuration. Without --yes an interactive wizard asks for
the rule template, the output format and exclude patterns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ProjectPath(flagRoot)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}

			var cfg *config.Config
			if yes || !stdoutIsTTY() {
				if template == "" {
					template = config.SystemDefaults().Template
				}
				if _, ok := p.reg.Template(template); !ok {
					return fmt.Errorf("%w: %s", rules.ErrUnknownTemplate, template)
				}
				cfg = newProjectConfig(rules.NormalizeTemplateName(template), format, exclude)
			} else {
				final, err := tea.NewProgram(newInitModel(p.reg), tea.WithAltScreen()).Run()
				if err != nil {
					return fmt.Errorf("TUI error: %w", err)
				}
				m := final.(initModel)
				if m.cancelled || m.step != stepDone {
					return errInitCancelled
				}
				cfg = m.config()
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.WriteFile(path, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("wrote "+path))
			return nil
		},
	}
	cmd.Flags().StringVarP(&template, "template", "t", "", "Rule template (with --yes)")
	cmd.Flags().StringVar(&format, "format", "", "Default output format (with --yes)")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Exclude globs (with --yes)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the wizard and write the config from flags")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func init() {
	rootCmd.AddCommand(newInitCmd())
}
