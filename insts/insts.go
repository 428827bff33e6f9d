// Package insts provides the micro-ISA that drives the out-of-order core.
//
// The ISA is a small RISC-style load/store instruction set with 32 integer
// registers (x0 reads as zero). It is written as text assembly and turned
// into structured instructions by the Decoder and the Assembler:
//   - Arithmetic: add, sub, and, or, xor, sll, srl, slt, addi, li, mul, div
//   - Memory: lb, lbu, lh, lhu, lw, lwu, ld, sb, sh, sw, sd, lr.d, sc.d
//   - Control: beq, bne, blt, bge, jal, jalr
//   - System: fence, halt, nop
//
// Usage:
//
//	prog, err := insts.Assemble(0x1000, "addi x1, x0, 42\nhalt")
//	inst, _ := prog.At(0x1000)
//	fmt.Printf("Op: %v, Rd: %d, Imm: %d\n", inst.Op, inst.Rd, inst.Imm)
package insts

// NumRegs is the number of architectural integer registers.
const NumRegs = 32

// InstSize is the size of one instruction in bytes.
const InstSize = 4

// Op represents an opcode.
type Op uint8

// Opcodes.
const (
	OpUnknown Op = iota
	OpNOP
	OpADD
	OpSUB
	OpAND
	OpOR
	OpXOR
	OpSLL
	OpSRL
	OpSLT
	OpADDI
	OpLI
	OpMUL
	OpDIV
	OpLoad
	OpStore
	OpLR
	OpSC
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpJAL
	OpJALR
	OpFENCE
	OpHALT
)

var opNames = map[Op]string{
	OpUnknown: "unknown",
	OpNOP:     "nop",
	OpADD:     "add",
	OpSUB:     "sub",
	OpAND:     "and",
	OpOR:      "or",
	OpXOR:     "xor",
	OpSLL:     "sll",
	OpSRL:     "srl",
	OpSLT:     "slt",
	OpADDI:    "addi",
	OpLI:      "li",
	OpMUL:     "mul",
	OpDIV:     "div",
	OpLoad:    "load",
	OpStore:   "store",
	OpLR:      "lr.d",
	OpSC:      "sc.d",
	OpBEQ:     "beq",
	OpBNE:     "bne",
	OpBLT:     "blt",
	OpBGE:     "bge",
	OpJAL:     "jal",
	OpJALR:    "jalr",
	OpFENCE:   "fence",
	OpHALT:    "halt",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "unknown"
}

// FUType names the functional unit class an instruction executes on.
type FUType uint8

// Functional unit classes.
const (
	FUNone FUType = iota
	FUBranch
	FULoadStore
	FUSimple
	FUComplex
	NumFUTypes
)

func (f FUType) String() string {
	switch f {
	case FUBranch:
		return "branch"
	case FULoadStore:
		return "load-store"
	case FUSimple:
		return "alu-simple"
	case FUComplex:
		return "alu-complex"
	default:
		return "none"
	}
}

// Instruction represents a decoded instruction.
type Instruction struct {
	Op  Op    // Operation code
	Rd  uint8 // Destination register
	Rs1 uint8 // First source register (base register for memory ops)
	Rs2 uint8 // Second source register (store data for stores)
	Imm int64 // Immediate value or branch offset in bytes

	// Memory access fields
	Size   int  // Access size in bytes
	Signed bool // Sign-extend loaded value

	// Label is an unresolved branch target. The Assembler resolves it into
	// Imm and clears it.
	Label string

	// Text is the source line the instruction was decoded from.
	Text string
}

// FU returns the functional unit class of the instruction.
func (i *Instruction) FU() FUType {
	switch i.Op {
	case OpBEQ, OpBNE, OpBLT, OpBGE, OpJAL, OpJALR:
		return FUBranch
	case OpLoad, OpStore, OpLR, OpSC:
		return FULoadStore
	case OpMUL, OpDIV:
		return FUComplex
	case OpADD, OpSUB, OpAND, OpOR, OpXOR, OpSLL, OpSRL, OpSLT, OpADDI, OpLI:
		return FUSimple
	default:
		return FUNone
	}
}

// HasDest reports whether the instruction writes a register. Writes to x0
// are discarded, so they do not count.
func (i *Instruction) HasDest() bool {
	if i.Rd == 0 {
		return false
	}

	switch i.Op {
	case OpStore, OpBEQ, OpBNE, OpBLT, OpBGE, OpFENCE, OpHALT, OpNOP, OpUnknown:
		return false
	default:
		return true
	}
}

// Sources returns which of rs1 and rs2 are read by the instruction.
func (i *Instruction) Sources() (rs1, rs2 bool) {
	switch i.Op {
	case OpADD, OpSUB, OpAND, OpOR, OpXOR, OpSLL, OpSRL, OpSLT, OpMUL, OpDIV,
		OpStore, OpSC, OpBEQ, OpBNE, OpBLT, OpBGE:
		return true, true
	case OpADDI, OpLoad, OpLR, OpJALR:
		return true, false
	default:
		return false, false
	}
}

// IsBranch reports whether the instruction may redirect control flow.
func (i *Instruction) IsBranch() bool {
	return i.FU() == FUBranch
}

// IsConditional reports whether the instruction is a conditional branch.
func (i *Instruction) IsConditional() bool {
	switch i.Op {
	case OpBEQ, OpBNE, OpBLT, OpBGE:
		return true
	default:
		return false
	}
}

// IsLoad reports whether the instruction reads memory.
func (i *Instruction) IsLoad() bool {
	return i.Op == OpLoad || i.Op == OpLR
}

// IsStore reports whether the instruction writes memory.
func (i *Instruction) IsStore() bool {
	return i.Op == OpStore || i.Op == OpSC
}

// IsAtomic reports whether the instruction takes part in a reservation.
func (i *Instruction) IsAtomic() bool {
	return i.Op == OpLR || i.Op == OpSC
}

// IsSerializing reports whether the instruction must drain the core
// before younger instructions may execute.
func (i *Instruction) IsSerializing() bool {
	return i.Op == OpFENCE
}

// String returns the source text, or the opcode name when no text is
// attached.
func (i *Instruction) String() string {
	if i.Text != "" {
		return i.Text
	}
	return i.Op.String()
}
