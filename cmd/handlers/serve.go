package handlers

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"factseeker/internal/config"
	"factseeker/internal/logger"
	"factseeker/internal/server"
	"factseeker/internal/store"
	"factseeker/internal/titleindex"
)

// NewServeCmd creates the serve command for the HTTP API.
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fact-check HTTP API",
		Long: `Start the HTTP API server.

Endpoints:
  POST /fact-check          {"youtube_url": "..."}
  POST /article-fact-check  {"article_url": "..."}
  GET  /healthz

On startup all title partitions are loaded from the object store, and a
background watcher keeps them fresh while the server runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (default from config)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP host (default from config)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.model.Close()

	if err := a.loader.LoadAll(ctx); err != nil {
		return fmt.Errorf("failed to load title partitions: %w", err)
	}
	logger.Info("Title partitions ready", "count", a.registry.Len())

	if a.objects != nil {
		watcher := titleindex.NewWatcher(a.loader, config.WatchInterval())
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Partition watcher stopped", err)
			}
		}()
	}

	history, err := store.NewStore(a.cfg.App.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer history.Close()

	serverCfg := a.cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	return server.New(a.driver, history, a.registry, serverCfg).Start(ctx)
}
