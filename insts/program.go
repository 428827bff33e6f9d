package insts

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
)

// ErrUndefinedLabel is returned when a branch names a label that does not
// exist in the program.
var ErrUndefinedLabel = errors.New("undefined label")

// Program is an assembled code image. Instruction i lives at
// Base + i*InstSize.
type Program struct {
	Base   uint64
	Insts  []Instruction
	Labels map[string]uint64
}

// At returns the instruction at the given PC.
func (p *Program) At(pc uint64) (*Instruction, bool) {
	if pc < p.Base || (pc-p.Base)%InstSize != 0 {
		return nil, false
	}

	i := (pc - p.Base) / InstSize
	if i >= uint64(len(p.Insts)) {
		return nil, false
	}

	return &p.Insts[i], true
}

// End returns the first address past the last instruction.
func (p *Program) End() uint64 {
	return p.Base + uint64(len(p.Insts))*InstSize
}

// Assembler builds a Program from assembly text. Lines may carry a
// "label:" prefix; blank lines and comments are skipped.
type Assembler struct {
	decoder *Decoder
}

// NewAssembler creates a new Assembler.
func NewAssembler() *Assembler {
	return &Assembler{decoder: NewDecoder()}
}

// Assemble is a shorthand for NewAssembler().Assemble.
func Assemble(base uint64, src string) (*Program, error) {
	return NewAssembler().Assemble(base, src)
}

// Assemble assembles src into a program placed at base.
func (a *Assembler) Assemble(base uint64, src string) (*Program, error) {
	prog := &Program{Base: base, Labels: make(map[string]uint64)}

	scanner := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := a.AddLine(prog, scanner.Text()); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assembly: %w", err)
	}

	if err := a.Resolve(prog); err != nil {
		return nil, err
	}

	return prog, nil
}

// AddLine appends one source line to prog. Labels are recorded but not
// resolved until Resolve is called.
func (a *Assembler) AddLine(prog *Program, line string) error {
	text := strings.TrimSpace(stripComment(line))

	for {
		colon := strings.IndexByte(text, ':')
		if colon < 0 {
			break
		}

		label := strings.TrimSpace(text[:colon])
		if !isLabel(label) {
			return fmt.Errorf("bad label %q", label)
		}
		if _, dup := prog.Labels[label]; dup {
			return fmt.Errorf("duplicate label %q", label)
		}

		prog.Labels[label] = prog.End()
		text = strings.TrimSpace(text[colon+1:])
	}

	if text == "" {
		return nil
	}

	inst, err := a.decoder.Decode(text)
	if err != nil {
		return err
	}

	prog.Insts = append(prog.Insts, *inst)
	return nil
}

// Resolve turns label references into PC-relative offsets.
func (a *Assembler) Resolve(prog *Program) error {
	for i := range prog.Insts {
		inst := &prog.Insts[i]
		if inst.Label == "" {
			continue
		}

		target, ok := prog.Labels[inst.Label]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUndefinedLabel, inst.Label)
		}

		pc := prog.Base + uint64(i)*InstSize
		inst.Imm = int64(target - pc)
		inst.Label = ""
	}

	return nil
}
