package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/review"
	"github.com/chris-regnier/ctrap/internal/sarif"
	"github.com/chris-regnier/ctrap/internal/store"
)

func newReviewCmd() *cobra.Command {
	var statePath string
	cmd := &cobra.Command{
		Use:   "review [RUN_ID | SARIF_FILE]",
		Short: "Review the findings of a stored run in a terminal UI",
		Long: `Open the findings of a run in an interactive review. Without an argument
the most recent run under the results directory is used. Accept, reject and
comment decisions are saved next to the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			fs := store.NewFileStore(p.path(p.cfg.Output.Dir))

			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			runID, log, err := loadRun(ctx, fs, arg)
			if err != nil {
				return err
			}
			if statePath == "" {
				statePath = filepath.Join(p.path(".ctrap/reviews"), runID+".json")
			}

			m := review.NewReviewModel(runID, sarif.ToIssues(log),
				review.WithRoot(p.root),
				review.WithStatePath(statePath),
			)
			final, err := tea.NewProgram(*m, tea.WithAltScreen()).Run()
			if err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			if rm, ok := final.(review.ReviewModel); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%d accepted, %d rejected; state saved to %s\n",
					len(rm.Accepted()), len(rm.Rejected()), statePath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&statePath, "state", "", "Review state file (default: .ctrap/reviews/<run>.json)")
	return cmd
}

// loadRun resolves arg as a SARIF file, a run id or, when empty, the newest
// run.
func loadRun(ctx context.Context, fs *store.FileStore, arg string) (string, *sarif.Log, error) {
	if arg != "" && strings.HasSuffix(arg, ".json") {
		f, err := os.Open(arg)
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		log, err := sarif.Read(f)
		if err != nil {
			return "", nil, fmt.Errorf("loading SARIF: %w", err)
		}
		return strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg)), log, nil
	}

	id := arg
	if id == "" {
		latest, err := fs.Latest(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("listing results: %w", err)
		}
		if latest == "" {
			return "", nil, fmt.Errorf("no analysis results found in %s; run ctrap analyze first", fs.Dir())
		}
		id = latest
	}
	log, err := fs.ReadSARIF(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("reading SARIF for %s: %w", id, err)
	}
	return id, log, nil
}

func init() {
	rootCmd.AddCommand(newReviewCmd())
}
