package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"factseeker/internal/config"
	"factseeker/internal/store"
)

// NewCacheCmd creates the cache command group for the local caches.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the local article cache and result history",
	}
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show local cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()

			indexes, bytes, err := dirStats(cfg.Storage.LocalCacheDir)
			if err != nil {
				return err
			}
			fmt.Printf("article indexes: %d (%.1f MB) in %s\n",
				indexes, float64(bytes)/(1024*1024), cfg.Storage.LocalCacheDir)

			history, err := store.NewStore(cfg.App.DataDir)
			if err != nil {
				return err
			}
			defer history.Close()
			stats, err := history.GetStats()
			if err != nil {
				return err
			}
			fmt.Printf("saved results:   %d (%.1f MB)\n",
				stats.ResultCount, float64(stats.DBSizeBytes)/(1024*1024))
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the local article cache (and optionally the result history)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()

			if err := os.RemoveAll(cfg.Storage.LocalCacheDir); err != nil {
				return fmt.Errorf("failed to clear article cache: %w", err)
			}
			fmt.Printf("cleared %s\n", cfg.Storage.LocalCacheDir)

			if history {
				s, err := store.NewStore(cfg.App.DataDir)
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.Clear(); err != nil {
					return err
				}
				fmt.Println("cleared result history")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "also clear the saved result history")
	return cmd
}

// dirStats counts the immediate subdirectories of dir and the total bytes
// under it.
func dirStats(dir string) (entries int, bytes int64, err error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	for _, child := range children {
		if child.IsDir() {
			entries++
		}
	}
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			bytes += info.Size()
		}
		return nil
	})
	return entries, bytes, err
}
