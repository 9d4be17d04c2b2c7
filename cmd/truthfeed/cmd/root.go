package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "truthfeed",
	Short: "Truth feed engine",
	Long: `truthfeed runs the verified event feed engine: append-only hash-chained
feeds, per-subject integrity chains, trust score aggregation and
subscription delivery.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
}
