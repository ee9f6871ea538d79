package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/config"
	"github.com/chris-regnier/ctrap/internal/rules"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Export and import rule settings",
	}
	cmd.AddCommand(newConfigExportCmd(), newConfigImportCmd())
	return cmd
}

func newConfigExportCmd() *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the effective settings of every rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			f := rules.Format(format)
			if f == "" && out != "" {
				f = rules.FormatForPath(out)
			}
			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}
			return p.reg.ExportConfig(w, f)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default: from the file extension, else json)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return cmd
}

func newConfigImportCmd() *cobra.Command {
	var (
		format string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Apply exported rule settings and save them to the project config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			f := rules.Format(format)
			if f == "" {
				f = rules.FormatForPath(args[0])
			}
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			problems, err := p.reg.ImportConfig(file, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, pr := range problems {
				fmt.Fprintln(out, problemStyle.Render("- "+pr.Error()))
			}
			if dryRun {
				fmt.Fprintf(out, "%d rules would be enabled\n", len(p.reg.Enabled()))
				return nil
			}

			doc := p.reg.Document()
			path, err := updateProjectConfig(flagRoot, func(c *config.Config) {
				c.Rules = doc.RuleSettings
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported settings for %d rules, %d enabled (saved to %s)\n",
				len(doc.RuleSettings), len(doc.EnabledRules), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "json or yaml (default: from the file extension)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report problems without saving")
	return cmd
}

func init() {
	rootCmd.AddCommand(newConfigCmd())
}
