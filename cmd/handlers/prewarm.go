package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"factseeker/internal/titleindex"
)

// NewPrewarmCmd creates the prewarm command.
func NewPrewarmCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "prewarm",
		Short: "Materialize article indexes for every URL in the title partitions",
		Long: `Walk every loaded title partition and build the article index for each
referenced URL, so interactive requests after a partition refresh do not
pay the crawl and embedding cost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.model.Close()

			if err := a.loader.LoadAll(cmd.Context()); err != nil {
				return err
			}

			prewarmer := titleindex.NewPrewarmer(a.registry, a.articles, concurrency)
			warmed, absent, err := prewarmer.Warm(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("warmed %d article indexes (%d unavailable)\n", warmed, absent)
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent article fetches")
	return cmd
}
