package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/config"
	"github.com/chris-regnier/ctrap/internal/issue"
	"github.com/chris-regnier/ctrap/internal/rules"
)

const defaultTemplatesDir = ".ctrap/templates"

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "List, inspect, apply and create rule templates",
	}
	cmd.AddCommand(newTemplatesListCmd(), newTemplatesShowCmd(), newTemplatesApplyCmd(), newTemplatesCreateCmd())
	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			var infos []rules.TemplateInfo
			for _, t := range p.reg.Templates() {
				info, err := p.reg.TemplateInfo(t.Key)
				if err != nil {
					return err
				}
				infos = append(infos, info)
			}
			if asJSON {
				return writeJSONTo(cmd.OutOrStdout(), infos)
			}
			tbl := newTable("Key", "Name", "Rules", "Categories", "")
			for _, i := range infos {
				mark := ""
				if i.Key == rules.NormalizeTemplateName(p.cfg.Template) {
					mark = enabledStyle.Render("active")
				} else if i.Custom {
					mark = "custom"
				}
				tbl.Row(i.Key, i.Name, fmt.Sprint(i.RuleCount), strings.Join(i.Categories, ", "), mark)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newTemplatesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show the rules a template enables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			info, err := p.reg.TemplateInfo(args[0])
			if err != nil {
				return err
			}
			t, _ := p.reg.Template(args[0])

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", headerStyle.Render(info.Name), disabledStyle.Render("("+info.Key+")"))
			fmt.Fprintf(out, "%s\n\n", info.Description)

			sevs := make([]string, 0, len(info.SeverityDistribution))
			for s, n := range info.SeverityDistribution {
				sevs = append(sevs, fmt.Sprintf("%s %d", s, n))
			}
			sort.Strings(sevs)
			fmt.Fprintf(out, "%d rules; %s\n\n", info.RuleCount, strings.Join(sevs, ", "))

			tbl := newTable("ID", "Name", "Category", "Severity")
			for _, r := range p.reg.Rules() {
				m := r.Meta()
				if !t.Includes(m.ID) {
					continue
				}
				sev := m.Severity
				if ts, ok := t.Settings[m.ID]; ok {
					if v, err := issue.ParseSeverity(ts.Severity); err == nil {
						sev = v
					}
				}
				tbl.Row(m.ID, m.Name, m.Category, severityCell(sev))
			}
			fmt.Fprintln(out, tbl.Render())
			return nil
		},
	}
}

func newTemplatesApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply NAME",
		Short: "Make a template the project's active template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			if err := p.reg.ApplyTemplate(args[0]); err != nil {
				return err
			}
			key := rules.NormalizeTemplateName(args[0])
			path, err := updateProjectConfig(flagRoot, func(c *config.Config) {
				c.Template = key
				// Overrides belong to the previous template.
				c.Rules = nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied template %s: %d rules enabled (saved to %s)\n",
				key, len(p.reg.Enabled()), path)
			return nil
		},
	}
}

func newTemplatesCreateCmd() *cobra.Command {
	var (
		ids         []string
		description string
		fromEnabled bool
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a custom template from rule ids or the currently enabled rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			if fromEnabled {
				for _, r := range p.reg.Enabled() {
					ids = append(ids, r.Meta().ID)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("specify --rules or --from-enabled")
			}
			for i := range ids {
				ids[i] = strings.ToUpper(strings.TrimSpace(ids[i]))
			}

			t, dropped := p.reg.CreateCustomTemplate(args[0], description, ids)
			if len(t.Rules) == 0 {
				return fmt.Errorf("none of the rule ids are known: %s", strings.Join(dropped, ", "))
			}

			dir := p.cfg.TemplatesDir
			if dir == "" {
				dir = p.path(defaultTemplatesDir)
				if _, err := updateProjectConfig(flagRoot, func(c *config.Config) {
					c.TemplatesDir = defaultTemplatesDir
				}); err != nil {
					return err
				}
			}
			path, err := rules.SaveTemplate(dir, t)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created template %s with %d rules: %s\n", t.Key, len(t.Rules), path)
			if len(dropped) > 0 {
				fmt.Fprintln(out, problemStyle.Render("ignored unknown rules: "+strings.Join(dropped, ", ")))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ids, "rules", nil, "Rule ids to enable")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Template description")
	cmd.Flags().BoolVar(&fromEnabled, "from-enabled", false, "Include every currently enabled rule")
	return cmd
}

// updateProjectConfig edits only the project tier, leaving machine and
// default settings out of the file. It returns the file written.
func updateProjectConfig(root string, edit func(*config.Config)) (string, error) {
	path := config.ProjectPath(root)
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	edit(cfg)
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return path, config.WriteFile(path, cfg)
}

func init() {
	rootCmd.AddCommand(newTemplatesCmd())
}
