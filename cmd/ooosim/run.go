package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ooosim/loader"
	"github.com/sarchlab/ooosim/timing/core"
	"github.com/sarchlab/ooosim/timing/pipeline"
	"github.com/sarchlab/ooosim/timing/trace"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	configPath   string
	maxCycles    uint64
	trace        bool
	traceFile    string
	lateRecovery bool
	presteer     bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run <program.s>",
	Short: "Run a program on the out-of-order timing core.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, runErr := simulate(args[0], runOpts)
		if c == nil {
			return runErr
		}

		fmt.Fprintln(cmd.OutOrStdout(), statsTable(args[0], c))

		if runErr != nil {
			return fmt.Errorf("simulation stopped: %w", runErr)
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.configPath, "config", "", "core configuration JSON file")
	f.Uint64Var(&runOpts.maxCycles, "max-cycles", 0, "stop after this many cycles (0 = no limit)")
	f.BoolVar(&runOpts.trace, "trace", false, "record retired instructions in a SQLite database")
	f.StringVar(&runOpts.traceFile, "trace-file", "", "trace database name (default: generated)")
	f.BoolVar(&runOpts.lateRecovery, "late-recovery", false, "recover mispredicted branches at retirement")
	f.BoolVar(&runOpts.presteer, "presteer", false, "bind instructions to a single lane at dispatch")
}

// simulate runs the program at path on a new core. The core is returned
// whenever it was built, even if the run ended with an error.
func simulate(path string, opts runOptions) (*core.Core, error) {
	config := pipeline.DefaultConfig()
	if opts.configPath != "" {
		var err error
		config, err = pipeline.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	if opts.lateRecovery {
		config.EarlyBranchRecovery = false
	}
	if opts.presteer {
		config.Presteer = true
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid core config: %w", err)
	}

	prog, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	pipeOpts := []pipeline.PipelineOption{
		pipeline.WithConfig(config),
		pipeline.WithMaxCycles(opts.maxCycles),
	}

	var recorder *trace.SQLiteRecorder
	if opts.trace {
		recorder = trace.NewSQLiteRecorder(opts.traceFile)
		if err := recorder.Init(); err != nil {
			return nil, err
		}
		pipeOpts = append(pipeOpts, pipeline.WithRetireListener(recorder))
	}

	c := core.NewCore(prog, pipeOpts...)
	runErr := c.Run()

	if recorder != nil {
		if err := recorder.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to close trace: %w", err)
		}
	}

	return c, runErr
}
