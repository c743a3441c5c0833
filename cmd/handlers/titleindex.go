package handlers

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"factseeker/internal/config"
	"factseeker/internal/titleindex"
)

// NewTitleIndexCmd creates the titleindex command group.
func NewTitleIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "titleindex",
		Short: "Manage the partitioned news-title indexes",
	}
	cmd.AddCommand(newTitleIndexBuildCmd())
	cmd.AddCommand(newTitleIndexPreloadCmd())
	cmd.AddCommand(newTitleIndexWatchCmd())
	return cmd
}

func newTitleIndexBuildCmd() *cobra.Command {
	var (
		catalog   string
		partition string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build one title partition from a JSONL catalog",
		Long: `Build a title partition from a catalog file of one JSON object per
line, each with "title" and "url" fields. The partition is embedded,
saved locally, and uploaded to the object store when one is configured.

Example:
  factseeker titleindex build --catalog titles.jsonl --partition partition_202508`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTitleIndexBuild(cmd.Context(), catalog, partition)
		},
	}

	cmd.Flags().StringVar(&catalog, "catalog", "", "path to the JSONL title catalog (required)")
	cmd.Flags().StringVar(&partition, "partition", "", "partition ID, e.g. partition_202508 (required)")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("partition")

	return cmd
}

func runTitleIndexBuild(ctx context.Context, catalog, partition string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.model.Close()

	var uploader titleindex.Uploader
	if a.objects != nil {
		uploader = a.objects
	}
	builder := titleindex.NewBuilder(a.model, uploader, a.cfg.Storage.PartitionLocalDir, a.cfg.Storage.PartitionPrefix)

	count, err := builder.Build(ctx, catalog, partition)
	if err != nil {
		return err
	}
	fmt.Printf("built %s with %d titles\n", partition, count)
	return nil
}

func newTitleIndexPreloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preload",
		Short: "Download and load every title partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.model.Close()

			if err := a.loader.LoadAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("loaded %d partitions\n", a.registry.Len())
			return nil
		},
	}
}

func newTitleIndexWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the object store and reload changed partitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.model.Close()
			if a.objects == nil {
				return fmt.Errorf("watching requires S3_BUCKET_NAME to be configured")
			}

			if err := a.loader.LoadAll(ctx); err != nil {
				return err
			}
			watcher := titleindex.NewWatcher(a.loader, config.WatchInterval())
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
