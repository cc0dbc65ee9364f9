package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// rootCmd is the base command for the AIBPS CLI.
var rootCmd = &cobra.Command{
	Use:   "aibps",
	Short: "AIBPS composite pressure-score engine",
	Long: `AIBPS computes a composite pressure score from heterogeneous monthly
economic and financial series. Raw pillar inputs are aligned onto a
canonical monthly grid, normalized to a 0-100 heat scale, and combined
under a configurable weight vector.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration (defaults built in)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(computeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("aibps v1.0.0")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
