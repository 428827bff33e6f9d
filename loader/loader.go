// Package loader reads assembly program files for the simulator.
//
// A program file is micro-ISA assembly plus a few directives:
//
//	.org 0x1000             code base address (before the first instruction)
//	.dword 0x2000 1, 2, 3   64-bit words stored from the given address
//	.protect 0x8000 0x1000  region that faults on any access
package loader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/insts"
)

// DefaultBase is the code base address used when no .org is given.
const DefaultBase = 0x1000

// ErrBadDirective is returned for malformed or misplaced directives.
var ErrBadDirective = errors.New("bad directive")

// Segment represents initialized data to place in memory.
type Segment struct {
	// VirtAddr is the address where this segment is loaded.
	VirtAddr uint64
	// Data contains the segment contents.
	Data []byte
}

// Program represents a loaded program ready for simulation.
type Program struct {
	// Code is the assembled instruction image.
	Code *insts.Program
	// Segments contains all initialized data.
	Segments []Segment
	// Protected lists regions that fault on access.
	Protected []emu.Region
}

// EntryPoint returns the address where execution begins.
func (p *Program) EntryPoint() uint64 {
	return p.Code.Base
}

// Load reads and parses a program file.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program file: %w", err)
	}
	defer func() { _ = f.Close() }()

	prog, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return prog, nil
}

// Parse parses a program from r.
func Parse(r io.Reader) (*Program, error) {
	asm := insts.NewAssembler()
	prog := &Program{
		Code: &insts.Program{Base: DefaultBase, Labels: make(map[string]uint64)},
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		var err error
		if strings.HasPrefix(line, ".") {
			err = prog.directive(line)
		} else {
			err = asm.AddLine(prog.Code, line)
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	if err := asm.Resolve(prog.Code); err != nil {
		return nil, err
	}

	return prog, nil
}

func (p *Program) directive(line string) error {
	if i := strings.IndexAny(line, "#;"); i >= 0 {
		line = line[:i]
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})

	args := make([]uint64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := parseValue(f)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrBadDirective, f)
		}
		args = append(args, v)
	}

	switch fields[0] {
	case ".org":
		if len(args) != 1 || len(p.Code.Insts) > 0 || len(p.Code.Labels) > 0 {
			return fmt.Errorf("%w: .org must precede code and take one address", ErrBadDirective)
		}
		p.Code.Base = args[0]
	case ".dword":
		if len(args) < 2 {
			return fmt.Errorf("%w: .dword needs an address and values", ErrBadDirective)
		}
		data := make([]byte, 8*(len(args)-1))
		for i, v := range args[1:] {
			binary.LittleEndian.PutUint64(data[8*i:], v)
		}
		p.Segments = append(p.Segments, Segment{VirtAddr: args[0], Data: data})
	case ".protect":
		if len(args) != 2 {
			return fmt.Errorf("%w: .protect needs an address and a size", ErrBadDirective)
		}
		p.Protected = append(p.Protected, emu.Region{Base: args[0], Size: args[1]})
	default:
		return fmt.Errorf("%w: %s", ErrBadDirective, fields[0])
	}

	return nil
}

func parseValue(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return v, nil
	}

	v, err := strconv.ParseInt(s, 0, 64)
	return uint64(v), err
}

// LoadInto writes the program's data segments into memory and installs
// its protected regions.
func (p *Program) LoadInto(memory *emu.Memory) {
	for _, seg := range p.Segments {
		memory.WriteBytes(seg.VirtAddr, seg.Data)
	}
	for _, r := range p.Protected {
		memory.Protect(r.Base, r.Size)
	}
}
