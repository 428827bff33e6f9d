package insts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Decoding errors.
var (
	ErrUnknownOp       = errors.New("unknown mnemonic")
	ErrBadOperandCount = errors.New("wrong number of operands")
	ErrBadRegister     = errors.New("bad register")
	ErrBadImmediate    = errors.New("bad immediate")
	ErrBadMemOperand   = errors.New("bad memory operand")
)

// operand layouts
type format uint8

const (
	formatNone   format = iota // halt
	formatR                    // op rd, rs1, rs2
	formatI                    // op rd, rs1, imm
	formatLI                   // op rd, imm
	formatLoad                 // op rd, imm(rs1)
	formatStore                // op rs2, imm(rs1)
	formatSC                   // op rd, rs2, (rs1)
	formatBranch               // op rs1, rs2, target
	formatJAL                  // op rd, target
	formatJALR                 // op rd, imm(rs1)
)

type mnemonic struct {
	op     Op
	format format
	size   int
	signed bool
}

var mnemonics = map[string]mnemonic{
	"nop":   {op: OpNOP, format: formatNone},
	"halt":  {op: OpHALT, format: formatNone},
	"fence": {op: OpFENCE, format: formatNone},
	"add":   {op: OpADD, format: formatR},
	"sub":   {op: OpSUB, format: formatR},
	"and":   {op: OpAND, format: formatR},
	"or":    {op: OpOR, format: formatR},
	"xor":   {op: OpXOR, format: formatR},
	"sll":   {op: OpSLL, format: formatR},
	"srl":   {op: OpSRL, format: formatR},
	"slt":   {op: OpSLT, format: formatR},
	"mul":   {op: OpMUL, format: formatR},
	"div":   {op: OpDIV, format: formatR},
	"addi":  {op: OpADDI, format: formatI},
	"li":    {op: OpLI, format: formatLI},
	"lb":    {op: OpLoad, format: formatLoad, size: 1, signed: true},
	"lbu":   {op: OpLoad, format: formatLoad, size: 1},
	"lh":    {op: OpLoad, format: formatLoad, size: 2, signed: true},
	"lhu":   {op: OpLoad, format: formatLoad, size: 2},
	"lw":    {op: OpLoad, format: formatLoad, size: 4, signed: true},
	"lwu":   {op: OpLoad, format: formatLoad, size: 4},
	"ld":    {op: OpLoad, format: formatLoad, size: 8},
	"sb":    {op: OpStore, format: formatStore, size: 1},
	"sh":    {op: OpStore, format: formatStore, size: 2},
	"sw":    {op: OpStore, format: formatStore, size: 4},
	"sd":    {op: OpStore, format: formatStore, size: 8},
	"lr.d":  {op: OpLR, format: formatLoad, size: 8},
	"sc.d":  {op: OpSC, format: formatSC, size: 8},
	"beq":   {op: OpBEQ, format: formatBranch},
	"bne":   {op: OpBNE, format: formatBranch},
	"blt":   {op: OpBLT, format: formatBranch},
	"bge":   {op: OpBGE, format: formatBranch},
	"jal":   {op: OpJAL, format: formatJAL},
	"jalr":  {op: OpJALR, format: formatJALR},
}

// Decoder turns single lines of assembly into instructions.
type Decoder struct{}

// NewDecoder creates a new Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes one line of assembly. Branch targets that are not numeric
// are left in Instruction.Label for the Assembler to resolve.
func (d *Decoder) Decode(line string) (*Instruction, error) {
	text := strings.TrimSpace(stripComment(line))
	name, rest := text, ""
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		name, rest = text[:i], text[i+1:]
	}
	name = strings.ToLower(name)

	m, ok := mnemonics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, name)
	}

	ops := splitOperands(rest)
	inst := &Instruction{Op: m.op, Size: m.size, Signed: m.signed, Text: text}

	var err error
	switch m.format {
	case formatNone:
		err = expectOperands(ops, 0)
	case formatR:
		err = d.decodeR(ops, inst)
	case formatI:
		err = d.decodeI(ops, inst)
	case formatLI:
		err = d.decodeLI(ops, inst)
	case formatLoad, formatJALR:
		err = d.decodeRegMem(ops, inst, &inst.Rd)
	case formatStore:
		err = d.decodeRegMem(ops, inst, &inst.Rs2)
	case formatSC:
		err = d.decodeSC(ops, inst)
	case formatBranch:
		err = d.decodeBranch(ops, inst)
	case formatJAL:
		err = d.decodeJAL(ops, inst)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", text, err)
	}

	return inst, nil
}

func (d *Decoder) decodeR(ops []string, inst *Instruction) error {
	if err := expectOperands(ops, 3); err != nil {
		return err
	}
	return parseRegs(ops, &inst.Rd, &inst.Rs1, &inst.Rs2)
}

func (d *Decoder) decodeI(ops []string, inst *Instruction) error {
	if err := expectOperands(ops, 3); err != nil {
		return err
	}
	if err := parseRegs(ops[:2], &inst.Rd, &inst.Rs1); err != nil {
		return err
	}

	imm, err := parseImm(ops[2])
	inst.Imm = imm
	return err
}

func (d *Decoder) decodeLI(ops []string, inst *Instruction) error {
	if err := expectOperands(ops, 2); err != nil {
		return err
	}
	if err := parseRegs(ops[:1], &inst.Rd); err != nil {
		return err
	}

	imm, err := parseImm(ops[1])
	inst.Imm = imm
	return err
}

// decodeRegMem decodes "reg, imm(base)".
func (d *Decoder) decodeRegMem(ops []string, inst *Instruction, reg *uint8) error {
	if err := expectOperands(ops, 2); err != nil {
		return err
	}
	if err := parseRegs(ops[:1], reg); err != nil {
		return err
	}

	imm, base, err := parseMem(ops[1])
	inst.Imm = imm
	inst.Rs1 = base
	return err
}

func (d *Decoder) decodeSC(ops []string, inst *Instruction) error {
	if err := expectOperands(ops, 3); err != nil {
		return err
	}
	if err := parseRegs(ops[:2], &inst.Rd, &inst.Rs2); err != nil {
		return err
	}

	imm, base, err := parseMem(ops[2])
	if err == nil && imm != 0 {
		err = fmt.Errorf("%w: sc.d takes no offset", ErrBadMemOperand)
	}
	inst.Rs1 = base
	return err
}

func (d *Decoder) decodeBranch(ops []string, inst *Instruction) error {
	if err := expectOperands(ops, 3); err != nil {
		return err
	}
	if err := parseRegs(ops[:2], &inst.Rs1, &inst.Rs2); err != nil {
		return err
	}
	return parseTarget(ops[2], inst)
}

func (d *Decoder) decodeJAL(ops []string, inst *Instruction) error {
	if err := expectOperands(ops, 2); err != nil {
		return err
	}
	if err := parseRegs(ops[:1], &inst.Rd); err != nil {
		return err
	}
	return parseTarget(ops[1], inst)
}

func stripComment(line string) string {
	if i := strings.IndexAny(line, "#;"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return line
}

func splitOperands(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	return fields
}

func expectOperands(ops []string, n int) error {
	if len(ops) != n {
		return fmt.Errorf("%w: want %d, got %d", ErrBadOperandCount, n, len(ops))
	}
	return nil
}

func parseRegs(ops []string, regs ...*uint8) error {
	for i, r := range regs {
		reg, err := ParseReg(ops[i])
		if err != nil {
			return err
		}
		*r = reg
	}
	return nil
}

// ParseReg parses a register name such as "x5" or "zero".
func ParseReg(s string) (uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "zero" {
		return 0, nil
	}

	if !strings.HasPrefix(s, "x") {
		return 0, fmt.Errorf("%w: %q", ErrBadRegister, s)
	}

	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n >= NumRegs {
		return 0, fmt.Errorf("%w: %q", ErrBadRegister, s)
	}

	return uint8(n), nil
}

func parseImm(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
		if uerr != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadImmediate, s)
		}
		return int64(u), nil
	}
	return v, nil
}

// parseMem parses "imm(reg)" or "(reg)".
func parseMem(s string) (int64, uint8, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadMemOperand, s)
	}

	var imm int64
	if open > 0 {
		v, err := parseImm(s[:open])
		if err != nil {
			return 0, 0, err
		}
		imm = v
	}

	base, err := ParseReg(s[open+1 : len(s)-1])
	if err != nil {
		return 0, 0, err
	}

	return imm, base, nil
}

func parseTarget(s string, inst *Instruction) error {
	if v, err := parseImm(s); err == nil {
		inst.Imm = v
		return nil
	}

	if !isLabel(s) {
		return fmt.Errorf("%w: bad branch target %q", ErrBadImmediate, s)
	}

	inst.Label = s
	return nil
}

func isLabel(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		digit := r >= '0' && r <= '9'
		if !letter && !(digit && i > 0) {
			return false
		}
	}
	return true
}
