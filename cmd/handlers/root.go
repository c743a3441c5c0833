// Package handlers wires the fact-check pipeline into cobra commands.
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"factseeker/internal/config"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "factseeker",
		Short: "Factseeker fact-checks videos and news articles against indexed news titles.",
		Long: `Factseeker extracts verifiable claims from a video transcript or a news
article, searches the web and the partitioned news-title indexes for
corroborating coverage, judges each candidate article against the claim,
and reports a per-claim and overall confidence score with cited evidence.`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.factseeker.yml)")

	rootCmd.AddCommand(NewCheckCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewTitleIndexCmd())
	rootCmd.AddCommand(NewPrewarmCmd())
	rootCmd.AddCommand(NewCacheCmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration before any command runs.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
}
