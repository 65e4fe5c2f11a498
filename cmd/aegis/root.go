package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - resilience gateway for LLM completion upstreams",
	Long: `Aegis fronts LLM completion endpoints with the admission and failure
handling they need under load:

  - Per-endpoint circuit breaking over a rolling error-rate window
  - Bounded concurrency with a two-lane priority admission queue
  - Coalescing of identical in-flight requests
  - SSE stream assembly into clean text increments`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
