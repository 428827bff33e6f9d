// Package main provides the ooosim command line interface.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ooosim/timing/pipeline"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ooosim",
	Short: "ooosim is a cycle-level speculative out-of-order core simulator.",
	Long: `ooosim runs micro-ISA assembly programs on a cycle-level model ` +
		`of a speculative out-of-order core, or on the functional reference ` +
		`emulator, and reports timing statistics.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log recovery events, violations and halts")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(emulateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(benchCmd)
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = pipeline.LevelTrace
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
