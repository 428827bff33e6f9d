// Package core provides the cycle-accurate CPU core model.
// It wraps the out-of-order pipeline and the memory image of a loaded
// program behind a small interface for simulation drivers.
package core

import (
	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/loader"
	"github.com/sarchlab/ooosim/timing/cache"
	"github.com/sarchlab/ooosim/timing/pipeline"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// CPI is cycles per retired instruction.
	CPI float64

	BranchMispredictions uint64
	LoadViolations       uint64
	Exceptions           uint64
	// Squashes is the number of full pipeline flushes.
	Squashes uint64

	Forwards  uint64
	L1IMisses uint64
	L1DMisses uint64
	L2Misses  uint64
}

// Core represents a cycle-accurate CPU core model.
type Core struct {
	// Pipeline is the underlying out-of-order pipeline.
	Pipeline *pipeline.Pipeline

	memory *emu.Memory
}

// NewCore creates a core running prog in a fresh memory holding the
// program's data segments.
func NewCore(prog *loader.Program, opts ...pipeline.PipelineOption) *Core {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	return &Core{
		Pipeline: pipeline.NewPipeline(prog.Code, memory, opts...),
		memory:   memory,
	}
}

// Memory returns the memory the core commits to.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// RegFile returns the committed register state.
func (c *Core) RegFile() *emu.RegFile {
	return c.Pipeline.ArchRegFile()
}

// SetPC sets the program counter.
func (c *Core) SetPC(pc uint64) {
	c.Pipeline.SetPC(pc)
}

// Tick executes one pipeline cycle.
func (c *Core) Tick() {
	c.Pipeline.Tick()
}

// Halted returns true once the core has retired a halt or taken an
// exception it could not recover from.
func (c *Core) Halted() bool {
	return c.Pipeline.Halted()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	p := c.Pipeline.Stats()

	s := Stats{
		Cycles:               p.Cycles,
		Instructions:         p.Instructions,
		CPI:                  p.CPI(),
		BranchMispredictions: p.BranchMispredictions,
		LoadViolations:       p.LoadViolations,
		Exceptions:           p.Exceptions,
		Squashes:             p.Squashes,
		Forwards:             c.Pipeline.LSQ().Stats().Forwards,
		L1IMisses:            misses(c.Pipeline.ICache()),
		L1DMisses:            misses(c.Pipeline.DCache()),
		L2Misses:             misses(c.Pipeline.L2Cache()),
	}

	return s
}

func misses(c *cache.Cache) uint64 {
	if c == nil {
		return 0
	}
	return c.Stats().Misses
}

// Run executes the core until it halts.
// Returns the exception that halted it, if any.
func (c *Core) Run() error {
	return c.Pipeline.Run()
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	return c.Pipeline.RunCycles(cycles)
}
