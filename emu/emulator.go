package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/ooosim/insts"
)

// Emulation errors.
var (
	ErrNoInstruction   = errors.New("no instruction at pc")
	ErrMaxInstructions = errors.New("max instructions reached")
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Halted is true if the program executed a halt instruction.
	Halted bool

	// Err is set if the instruction faulted.
	Err error
}

// Emulator executes micro-ISA programs one instruction at a time.
type Emulator struct {
	regFile     *RegFile
	memory      *Memory
	program     *insts.Program
	reservation Reservation

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	halted           bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates an emulator that runs program against memory,
// starting at the program base.
func NewEmulator(program *insts.Program, memory *Memory, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{PC: program.Base},
		memory:  memory,
		program: program,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Halted returns true once a halt instruction has executed.
func (e *Emulator) Halted() bool {
	return e.halted
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.halted {
		return StepResult{Halted: true}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	pc := e.regFile.PC
	inst, ok := e.program.At(pc)
	if !ok {
		return StepResult{Err: fmt.Errorf("%w %#x", ErrNoInstruction, pc)}
	}

	rs1 := e.regFile.ReadReg(inst.Rs1)
	rs2 := e.regFile.ReadReg(inst.Rs2)
	out := Evaluate(inst, pc, rs1, rs2)

	if err := e.execute(inst, &out); err != nil {
		return StepResult{Err: fmt.Errorf("pc %#x: %w", pc, err)}
	}

	e.instructionCount++
	e.regFile.PC = out.NextPC

	if inst.Op == insts.OpHALT {
		e.halted = true
		return StepResult{Halted: true}
	}

	return StepResult{}
}

func (e *Emulator) execute(inst *insts.Instruction, out *Outcome) error {
	switch inst.Op {
	case insts.OpLoad, insts.OpLR:
		v, err := e.memory.Load(out.Addr, inst.Size, inst.Signed)
		if err != nil {
			return err
		}
		out.Value = v
		if inst.Op == insts.OpLR {
			e.reservation.Set(out.Addr)
		}

	case insts.OpStore:
		if err := e.memory.Store(out.Addr, inst.Size, out.Value); err != nil {
			return err
		}
		e.reservation.Observe(out.Addr, inst.Size)
		return nil

	case insts.OpSC:
		success := e.reservation.Holds(out.Addr)
		e.reservation.Clear()
		if success {
			if err := e.memory.Store(out.Addr, inst.Size, out.Value); err != nil {
				return err
			}
			out.Value = 0
		} else {
			out.Value = 1
		}
	}

	if inst.HasDest() {
		e.regFile.WriteReg(inst.Rd, out.Value)
	}

	return nil
}

// Run executes instructions until the program halts or faults.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Halted {
			return nil
		}
	}
}
