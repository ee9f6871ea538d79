package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/config"
	"github.com/chris-regnier/ctrap/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		rule   string
		asJSON bool
		decide string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs or the trend of one rule",
		Long: `Show runs recorded in the history database. Recording is enabled with
history.enabled in the config. With --rule the number of findings of that rule
per run is shown instead. --set-decision records a manual gate decision for
a run, for example after reviewing it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			path := p.cfg.History.Path
			if path == "" {
				path = config.SystemDefaults().History.Path
			}
			h, err := store.OpenHistory(p.path(path))
			if err != nil {
				return err
			}
			defer h.Close()

			out := cmd.OutOrStdout()
			if decide != "" {
				id, decision, ok := strings.Cut(decide, "=")
				if !ok {
					return fmt.Errorf("--set-decision wants RUN_ID=DECISION, got %q", decide)
				}
				switch decision {
				case store.DecisionMerge, store.DecisionReview, store.DecisionReject:
				default:
					return fmt.Errorf("decision must be merge, review or reject, got %q", decision)
				}
				if err := h.SetDecision(ctx, id, decision); err != nil {
					return err
				}
				fmt.Fprintf(out, "run %s: decision %s\n", id, decision)
				return nil
			}
			if rule != "" {
				points, err := h.Trend(ctx, strings.ToUpper(rule))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONTo(out, points)
				}
				if len(points) == 0 {
					fmt.Fprintf(out, "no runs recorded for %s\n", strings.ToUpper(rule))
					return nil
				}
				t := newTable("Run", "Time", "Findings")
				for _, pt := range points {
					t.Row(pt.RunID, pt.Time.Local().Format(time.DateTime), strconv.Itoa(pt.Count))
				}
				fmt.Fprintln(out, t.Render())
				return nil
			}

			runs, err := h.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSONTo(out, runs)
			}
			if len(runs) == 0 {
				if !p.cfg.History.On() {
					fmt.Fprintln(out, "no runs recorded; enable history.enabled in .ctrap/config.yaml")
				} else {
					fmt.Fprintln(out, "no runs recorded")
				}
				return nil
			}
			t := newTable("Run", "Time", "Template", "Files", "Critical", "Warning", "Suggestion", "Decision", "Duration")
			for _, r := range runs {
				t.Row(r.ID,
					r.Time.Local().Format(time.DateTime),
					r.Template,
					strconv.Itoa(r.Files),
					strconv.Itoa(r.Critical),
					strconv.Itoa(r.Warning),
					strconv.Itoa(r.Suggestion),
					r.Decision,
					(time.Duration(r.DurationMS) * time.Millisecond).String(),
				)
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&rule, "rule", "", "Show the trend of one rule")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().StringVar(&decide, "set-decision", "", "Record RUN_ID=merge|review|reject")
	return cmd
}

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}
