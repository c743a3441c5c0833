package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"factseeker/internal/core"
	"factseeker/internal/fetch"
	"factseeker/internal/logger"
	"factseeker/internal/store"
	"factseeker/internal/tui"
)

// NewCheckCmd creates the check command for one-off fact checks.
func NewCheckCmd() *cobra.Command {
	var (
		asJSON   bool
		save     bool
		progress bool
	)

	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Fact-check a YouTube video or a news article",
		Long: `Fact-check a single source. YouTube URLs are checked through their
transcript; any other URL is treated as a news article.

Examples:
  factseeker check https://www.youtube.com/watch?v=dQw4w9WgXcQ
  factseeker check https://news.example.com/some-story --json
  factseeker check https://news.example.com/some-story --progress --save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), args[0], asJSON, save, progress)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw pipeline JSON")
	cmd.Flags().BoolVar(&save, "save", false, "save the result to the local history database")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a live per-claim progress view")

	return cmd
}

func runCheck(ctx context.Context, url string, asJSON, save, progress bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.model.Close()

	if err := a.loader.LoadAll(ctx); err != nil {
		logger.Warn("Partition preload failed, continuing with what loaded", "error", err.Error())
	}

	check := func(ctx context.Context) (*core.PipelineResult, error) {
		if fetch.IsYouTubeURL(url) {
			return a.driver.CheckVideo(ctx, url)
		}
		return a.driver.CheckArticle(ctx, url)
	}

	var result *core.PipelineResult
	if progress {
		result, err = tui.Run(url, func(p *tui.Progress) (*core.PipelineResult, error) {
			a.driver.SetObserver(p)
			return check(ctx)
		})
	} else {
		result, err = check(ctx)
	}
	if err != nil {
		return fmt.Errorf("fact check failed: %w", err)
	}

	if save {
		history, err := store.NewStore(a.cfg.App.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open history store: %w", err)
		}
		defer history.Close()
		id, err := history.SaveResult(result)
		if err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		fmt.Fprintf(os.Stderr, "saved as %s\n", id)
	}

	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	printResult(result)
	return nil
}

func printResult(result *core.PipelineResult) {
	fmt.Printf("Source:     %s\n", result.Source())
	fmt.Printf("Confidence: %d/100\n", result.AggregateScore())
	fmt.Printf("Summary:    %s\n", result.Summary)
	if result.ChannelType != "" {
		fmt.Printf("Channel:    %s (%s)\n", result.ChannelType, result.ChannelTypeReason)
	}
	if len(result.Keywords) > 0 {
		fmt.Printf("Keywords:   %v\n", result.Keywords)
	}
	if result.ThreeLineSummary != "" {
		fmt.Printf("\n%s\n", result.ThreeLineSummary)
	}

	for i, claim := range result.Claims {
		fmt.Printf("\n%d. %s\n", i+1, claim.Claim)
		fmt.Printf("   %s (confidence %d)\n", claim.Result, claim.ConfidenceScore)
		if claim.Error != "" {
			fmt.Printf("   error: %s\n", claim.Error)
		}
		for _, ev := range claim.Evidence {
			fmt.Printf("   - %s\n", ev.URL)
			if ev.Justification != "" {
				fmt.Printf("     %s\n", ev.Justification)
			}
		}
	}
}
