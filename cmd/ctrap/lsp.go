package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/lsp"
	"github.com/chris-regnier/ctrap/internal/metrics"
)

func newLSPCmd() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start ctrap in LSP mode to provide diagnostics in your editor.

The server speaks JSON-RPC on stdin/stdout and analyzes C files when they are
opened or saved. Configuration is loaded from tiered sources (system, machine,
project) under --root. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			stopTelemetry, err := startTelemetry(ctx, p.cfg.Telemetry)
			if err != nil {
				return err
			}
			defer stopTelemetry()

			if cacheDir == "" && p.cfg.Cache.On() {
				cacheDir = p.path(p.cfg.Cache.Dir)
				if !filepath.IsAbs(cacheDir) {
					if abs, err := filepath.Abs(cacheDir); err == nil {
						cacheDir = abs
					}
				}
			}
			ttl, _ := p.cfg.Cache.TTLDuration()

			collector := metrics.NewCollector()
			defer observe(collector)()

			lsp.ServerVersion = version
			engine := lsp.NewEngine(p.reg, lsp.NewCache(cacheDir, ttl), metrics.NewRecorder(collector, metrics.SourceLSP))
			server, err := lsp.NewServer(
				bufio.NewReader(os.Stdin),
				bufio.NewWriter(os.Stdout),
				engine,
				lsp.ServerConfigFromLSPConfig(p.cfg.LSP),
			)
			if err != nil {
				return err
			}
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("LSP server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Result cache directory (default: the configured cache dir)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newLSPCmd())
}
