package emu

import "github.com/sarchlab/ooosim/insts"

// RegFile represents the architectural register file. Register 0 always
// reads as zero.
type RegFile struct {
	X  [insts.NumRegs]uint64
	PC uint64
}

// ReadReg reads a register value. Register 0 returns 0.
func (r *RegFile) ReadReg(reg uint8) uint64 {
	if reg == 0 || int(reg) >= insts.NumRegs {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes a register. Writes to register 0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint64) {
	if reg == 0 || int(reg) >= insts.NumRegs {
		return
	}
	r.X[reg] = value
}
