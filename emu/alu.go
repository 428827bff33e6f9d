package emu

import (
	"math"

	"github.com/sarchlab/ooosim/insts"
)

// Outcome is the result of evaluating one instruction on its operands.
type Outcome struct {
	// Value is the register result, or the store data for stores.
	Value uint64
	// Addr is the effective address of a memory operation.
	Addr uint64
	// Taken is set when a branch or jump redirects control flow.
	Taken bool
	// NextPC is the address of the next instruction in program order.
	NextPC uint64
}

// Evaluate computes the outcome of inst at pc given its source operand
// values. Loads only produce an address; the data comes from memory.
func Evaluate(inst *insts.Instruction, pc, rs1, rs2 uint64) Outcome {
	out := Outcome{NextPC: pc + insts.InstSize}
	imm := uint64(inst.Imm)

	switch inst.Op {
	case insts.OpADD:
		out.Value = rs1 + rs2
	case insts.OpSUB:
		out.Value = rs1 - rs2
	case insts.OpAND:
		out.Value = rs1 & rs2
	case insts.OpOR:
		out.Value = rs1 | rs2
	case insts.OpXOR:
		out.Value = rs1 ^ rs2
	case insts.OpSLL:
		out.Value = rs1 << (rs2 & 63)
	case insts.OpSRL:
		out.Value = rs1 >> (rs2 & 63)
	case insts.OpSLT:
		if int64(rs1) < int64(rs2) {
			out.Value = 1
		}
	case insts.OpADDI:
		out.Value = rs1 + imm
	case insts.OpLI:
		out.Value = imm
	case insts.OpMUL:
		out.Value = rs1 * rs2
	case insts.OpDIV:
		out.Value = divide(int64(rs1), int64(rs2))
	case insts.OpLoad, insts.OpLR:
		out.Addr = rs1 + imm
	case insts.OpStore, insts.OpSC:
		out.Addr = rs1 + imm
		out.Value = rs2
	case insts.OpBEQ:
		out.Taken = rs1 == rs2
	case insts.OpBNE:
		out.Taken = rs1 != rs2
	case insts.OpBLT:
		out.Taken = int64(rs1) < int64(rs2)
	case insts.OpBGE:
		out.Taken = int64(rs1) >= int64(rs2)
	case insts.OpJAL:
		out.Taken = true
		out.Value = pc + insts.InstSize
	case insts.OpJALR:
		out.Taken = true
		out.Value = pc + insts.InstSize
		out.NextPC = (rs1 + imm) &^ 1
		return out
	}

	if out.Taken {
		out.NextPC = pc + imm
	}

	return out
}

// divide follows the RISC-V convention: division by zero yields all ones
// and the overflowing case yields the dividend.
func divide(a, b int64) uint64 {
	switch {
	case b == 0:
		return math.MaxUint64
	case a == math.MinInt64 && b == -1:
		return uint64(a)
	default:
		return uint64(a / b)
	}
}
