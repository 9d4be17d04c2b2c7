package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/truthlayer-systems/truthfeed/internal/seeder"
)

var (
	seedBaseURL   string
	seedCount     int
	seedSubjects  int
	seedFeedTypes string
	seedInterval  time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic compliance events",
	Long: `Generate and append synthetic compliance events against a running
engine, spread across a set of generated subjects.

Examples:
  # Seed 100 events against a local engine
  truthfeed seed

  # Larger run against a remote engine
  truthfeed seed --base-url http://feed.internal:8090 --count 5000 --subjects 20`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg := seeder.DefaultConfig()
		cfg.BaseURL = seedBaseURL
		cfg.Count = seedCount
		cfg.Subjects = seedSubjects
		cfg.Interval = seedInterval
		if seedFeedTypes != "" {
			cfg.FeedTypes = strings.Split(seedFeedTypes, ",")
		}
		return seeder.NewRunner(cfg).Run()
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedBaseURL, "base-url", "http://localhost:8090", "engine base URL")
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of events to append")
	seedCmd.Flags().IntVar(&seedSubjects, "subjects", 5, "number of synthetic subjects")
	seedCmd.Flags().StringVar(&seedFeedTypes, "feed-types", "", "comma-separated feed types")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "delay between events")
	rootCmd.AddCommand(seedCmd)
}
