// Package main provides the entry point for ooosim.
// ooosim is a cycle-level speculative out-of-order core simulator built on
// Akita.
//
// For the full CLI, use: go run ./cmd/ooosim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("ooosim - speculative out-of-order core simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: ooosim <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run <program.s>      Run a program on the timing core")
	fmt.Println("  emulate <program.s>  Run a program on the reference emulator")
	fmt.Println("  bench                Run the microbenchmark suite")
	fmt.Println("  config               Print the default core configuration")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/ooosim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/ooosim' instead.")
	}
}
