package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chris-regnier/ctrap/internal/cache"
	"github.com/chris-regnier/ctrap/internal/evaluator"
	"github.com/chris-regnier/ctrap/internal/mcpserver"
	"github.com/chris-regnier/ctrap/internal/metrics"
	"github.com/chris-regnier/ctrap/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		maxBody  int64
		maxFiles int
		noGate   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

			collector := metrics.NewCollector()
			defer observe(collector)()

			ttl, _ := p.cfg.Cache.TTLDuration()
			if ttl == 0 {
				ttl = time.Hour
			}
			opts := []server.Option{
				server.WithVersion(version),
				server.WithCollector(collector),
				server.WithCache(cache.NewMemory(cache.WithMaxSize(5000), cache.WithTTL(ttl))),
				server.WithMaxBodyBytes(maxBody),
				server.WithMaxFiles(maxFiles),
			}
			if !noGate {
				eval, err := evaluator.NewEvaluator(ctx, p.path(p.cfg.Gate.PolicyDir))
				if err != nil {
					return err
				}
				opts = append(opts, server.WithEvaluator(eval))
			}
			return server.New(p.reg, opts...).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().Int64Var(&maxBody, "max-body-bytes", 0, "Request body limit (default 8 MiB)")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Files per analyze request (default 500)")
	cmd.Flags().BoolVar(&noGate, "no-gate", false, "Omit the gate verdict from analyze responses")
	return cmd
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ctrap tools over the Model Context Protocol on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := loadProject(flagRoot)
			if err != nil {
				return err
			}
			collector := metrics.NewCollector()
			s := mcpserver.New(p.reg, version, metrics.NewRecorder(collector, metrics.SourceMCP))
			if err := s.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newMCPCmd())
}
