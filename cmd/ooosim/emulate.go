package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/loader"
)

var emulateMaxInsts uint64

var emulateCmd = &cobra.Command{
	Use:   "emulate <program.s>",
	Short: "Run a program on the functional reference emulator.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		emulator, err := emulate(args[0], emulateMaxInsts)
		if emulator == nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Program: %s\n", args[0])
		fmt.Fprintf(out, "Instructions executed: %d\n", emulator.InstructionCount())
		fmt.Fprintln(out, regTable(emulator.RegFile()))

		return err
	},
}

func init() {
	emulateCmd.Flags().Uint64Var(&emulateMaxInsts, "max-insts", 0,
		"stop after this many instructions (0 = no limit)")
}

func emulate(path string, maxInsts uint64) (*emu.Emulator, error) {
	prog, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	memory := emu.NewMemory()
	prog.LoadInto(memory)

	emulator := emu.NewEmulator(prog.Code, memory, emu.WithMaxInstructions(maxInsts))
	if err := emulator.Run(); err != nil {
		return emulator, fmt.Errorf("emulation stopped: %w", err)
	}

	return emulator, nil
}
