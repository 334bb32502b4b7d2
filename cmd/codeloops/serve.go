package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/codeloops/internal/config"
	"github.com/fyrsmithlabs/codeloops/internal/graph"
	httpserver "github.com/fyrsmithlabs/codeloops/internal/http"
	"github.com/fyrsmithlabs/codeloops/internal/logging"
	"github.com/fyrsmithlabs/codeloops/internal/services"
	"github.com/fyrsmithlabs/codeloops/internal/telemetry"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Long: `Serve the knowledge graph and memory stores over HTTP.

Endpoints:
  GET /health
  GET /metrics
  GET /api/v1/projects
  GET /api/v1/projects/:project/nodes
  GET /api/v1/projects/:project/resume
  GET /api/v1/projects/:project/stats
  GET /api/v1/nodes/:id
  GET /api/v1/memories
  GET /api/v1/events

Examples:
  # Serve on the configured address
  codeloops serve

  # Serve on all interfaces
  codeloops serve --host 0.0.0.0 --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.http_port)")
	return cmd
}

// runServe starts telemetry, the stores and the HTTP server, and blocks
// until ctx is cancelled.
func runServe(ctx context.Context, c *cli, cfg *config.Config) error {
	logCfg, err := logging.FromSettings(cfg.Logging, cfg.Observability.EnableTelemetry)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(logCfg, global.GetLoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version), zl)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zl.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	reg, err := services.NewRegistry(services.Options{Config: cfg, Logger: zl, Model: c.model})
	if err != nil {
		return err
	}

	diffs, err := graph.ParseDiffPolicy(cfg.Resume.IncludeDiffs)
	if err != nil {
		return err
	}
	srv, err := httpserver.NewServer(reg.Graph(), reg.Memory(), zl, &httpserver.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		RateLimit:   cfg.Server.RateLimit,
		ResumeLimit: cfg.Resume.Limit,
		ResumeDiffs: diffs,
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "starting codeloops",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("telemetry", tel.Enabled()),
		zap.Bool("summarization", reg.Segmenter() != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	events, err := reg.Graph().Watch(gctx)
	if err != nil {
		return fmt.Errorf("watching graph log: %w", err)
	}
	g.Go(srv.Start)
	g.Go(func() error {
		for ev := range events {
			zl.Debug("graph log changed", zap.String("kind", string(ev.Kind)), zap.Time("at", ev.At))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	zl.Info("server shutdown complete")
	return nil
}
