package main

import (
	"github.com/spf13/cobra"

	"github.com/sarchlab/ooosim/benchmarks"
	"github.com/sarchlab/ooosim/timing/pipeline"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the microbenchmark suite on the timing core.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		configPath, _ := cmd.Flags().GetString("config")
		quick, _ := cmd.Flags().GetBool("quick")
		noVerify, _ := cmd.Flags().GetBool("no-verify")

		config := benchmarks.DefaultConfig()
		config.Output = cmd.OutOrStdout()
		config.Verify = !noVerify
		if configPath != "" {
			core, err := pipeline.LoadConfig(configPath)
			if err != nil {
				return err
			}
			config.Core = core
		}

		harness := benchmarks.NewHarness(config)
		if quick {
			harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
		} else {
			harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
		}

		results, err := harness.RunAll()

		switch format {
		case "csv":
			harness.PrintCSV(results)
		case "json":
			if jsonErr := harness.PrintJSON(results); jsonErr != nil && err == nil {
				err = jsonErr
			}
		default:
			harness.PrintResults(results)
		}

		return err
	},
}

func init() {
	benchCmd.Flags().String("format", "table", "output format: table, csv or json")
	benchCmd.Flags().String("config", "", "core configuration JSON file")
	benchCmd.Flags().Bool("quick", false, "run only the core benchmarks")
	benchCmd.Flags().Bool("no-verify", false, "skip the comparison against the emulator")
}
