package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	enabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	problemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6666"))
)

func severityCell(sev issue.Severity) string {
	switch sev {
	case issue.Critical:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Render(sev.String())
	case issue.Warning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")).Render(sev.String())
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFFF")).Render(sev.String())
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(disabledStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the rule catalogue",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesExplainCmd(), newRulesValidateCmd(), newRulesStatsCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	var (
		category    string
		search      string
		enabledOnly bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules with their current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			infos := filterInfos(p.reg, category, search, enabledOnly)
			if asJSON {
				return writeJSONTo(cmd.OutOrStdout(), infos)
			}
			t := newTable("ID", "Name", "Category", "Severity", "Status")
			for _, i := range infos {
				status := enabledStyle.Render("enabled")
				if !i.Enabled {
					status = disabledStyle.Render("disabled")
				}
				t.Row(i.ID, i.Name, i.Category, severityCell(i.EffectiveSeverity), status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			fmt.Fprintf(cmd.OutOrStdout(), "%d rule(s)\n", len(infos))
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only rules of this category")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Search id, name, description and category")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only enabled rules")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func filterInfos(reg *rules.Registry, category, search string, enabledOnly bool) []rules.Info {
	var matches map[string]bool
	if search != "" {
		matches = map[string]bool{}
		for _, r := range reg.Search(search) {
			matches[r.Meta().ID] = true
		}
	}
	out := []rules.Info{}
	for _, i := range reg.Infos() {
		if category != "" && !strings.EqualFold(i.Category, category) {
			continue
		}
		if matches != nil && !matches[i.ID] {
			continue
		}
		if enabledOnly && !i.Enabled {
			continue
		}
		out = append(out, i)
	}
	return out
}

func newRulesExplainCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "explain RULE_ID",
		Short: "Explain a rule with examples and its reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			info, err := p.reg.Info(strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			md := info.Markdown()
			if raw || !stdoutIsTTY() {
				_, err := io.WriteString(cmd.OutOrStdout(), md)
				return err
			}
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return err
			}
			out, err := r.Render(md)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print Markdown without rendering")
	return cmd
}

func newRulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the rule catalogue, pattern rules and templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			problems := p.reg.Validate()
			known := map[string]bool{}
			for _, id := range p.reg.IDs() {
				known[id] = true
			}
			for _, t := range p.reg.Templates() {
				for _, id := range t.Rules {
					if !known[id] {
						problems = append(problems, fmt.Sprintf("template %s: unknown rule %s", t.Key, id))
					}
				}
			}
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(out, enabledStyle.Render(fmt.Sprintf("%d rules, %d templates: no problems", len(known), len(p.reg.Templates()))))
				return nil
			}
			sort.Strings(problems)
			for _, pr := range problems {
				fmt.Fprintln(out, problemStyle.Render("- "+pr))
			}
			return exitError{code: 1}
		},
	}
}

func newRulesStatsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize rules by category and severity",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			st := p.reg.Statistics()
			if asJSON {
				return writeJSONTo(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d of %d rules enabled\n\n", headerStyle.Render("Rules:"), st.Enabled, st.Total)

			cats := make([]string, 0, len(st.Categories))
			for c := range st.Categories {
				cats = append(cats, c)
			}
			sort.Strings(cats)
			t := newTable("Category", "Enabled", "Total")
			for _, c := range cats {
				cs := st.Categories[c]
				t.Row(c, fmt.Sprint(cs.Enabled), fmt.Sprint(cs.Total))
			}
			fmt.Fprintln(out, t.Render())

			s := newTable("Severity", "Enabled rules")
			for _, sev := range issue.Severities() {
				s.Row(severityCell(sev), fmt.Sprint(st.SeverityBreakdown[sev.String()]))
			}
			fmt.Fprintln(out, s.Render())
			fmt.Fprintf(out, "Templates: %s\n", strings.Join(st.TemplatesAvailable, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func init() {
	rootCmd.AddCommand(newRulesCmd())
}
