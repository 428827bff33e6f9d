package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/insts"
)

func assemble(src string) *insts.Program {
	prog, err := insts.Assemble(0x1000, src)
	Expect(err).NotTo(HaveOccurred())
	return prog
}

var _ = Describe("Evaluate", func() {
	It("should compute arithmetic results", func() {
		inst := &insts.Instruction{Op: insts.OpSUB}
		out := emu.Evaluate(inst, 0x1000, 10, 3)
		Expect(out.Value).To(Equal(uint64(7)))
		Expect(out.NextPC).To(Equal(uint64(0x1004)))
	})

	It("should follow the divide-by-zero convention", func() {
		inst := &insts.Instruction{Op: insts.OpDIV}
		Expect(emu.Evaluate(inst, 0, 5, 0).Value).To(Equal(^uint64(0)))
	})

	It("should resolve taken branches to pc-relative targets", func() {
		inst := &insts.Instruction{Op: insts.OpBLT, Imm: -8}
		out := emu.Evaluate(inst, 0x1010, ^uint64(0), 1)
		Expect(out.Taken).To(BeTrue())
		Expect(out.NextPC).To(Equal(uint64(0x1008)))
	})

	It("should link and jump for jalr", func() {
		inst := &insts.Instruction{Op: insts.OpJALR, Imm: 4}
		out := emu.Evaluate(inst, 0x1000, 0x2001, 0)
		Expect(out.Value).To(Equal(uint64(0x1004)))
		Expect(out.NextPC).To(Equal(uint64(0x2004)))
	})

	It("should carry store data in Value", func() {
		inst := &insts.Instruction{Op: insts.OpStore, Imm: 8, Size: 8}
		out := emu.Evaluate(inst, 0, 0x100, 42)
		Expect(out.Addr).To(Equal(uint64(0x108)))
		Expect(out.Value).To(Equal(uint64(42)))
	})
})

var _ = Describe("Emulator", func() {
	var memory *emu.Memory

	BeforeEach(func() {
		memory = emu.NewMemory()
	})

	It("should run a counted loop", func() {
		prog := assemble(`
			li x1, 5
			li x2, 0
		loop:
			add x2, x2, x1
			addi x1, x1, -1
			bne x1, x0, loop
			halt
		`)

		e := emu.NewEmulator(prog, memory)
		Expect(e.Run()).To(Succeed())
		Expect(e.Halted()).To(BeTrue())
		Expect(e.RegFile().ReadReg(2)).To(Equal(uint64(15)))
		Expect(e.InstructionCount()).To(Equal(uint64(18)))
	})

	It("should store and load through memory", func() {
		prog := assemble(`
			li x1, 0x100
			li x2, -2
			sw x2, 4(x1)
			lwu x3, 4(x1)
			lw x4, 4(x1)
			halt
		`)

		e := emu.NewEmulator(prog, memory)
		Expect(e.Run()).To(Succeed())
		Expect(e.RegFile().ReadReg(3)).To(Equal(uint64(0xFFFFFFFE)))
		Expect(e.RegFile().ReadReg(4)).To(Equal(^uint64(1)))
	})

	It("should succeed a store-conditional under a held reservation", func() {
		prog := assemble(`
			li x1, 0x200
			li x2, 9
			lr.d x3, (x1)
			sc.d x4, x2, (x1)
			sc.d x5, x2, (x1)
			halt
		`)

		e := emu.NewEmulator(prog, memory)
		Expect(e.Run()).To(Succeed())
		Expect(e.RegFile().ReadReg(4)).To(BeZero())
		Expect(e.RegFile().ReadReg(5)).To(Equal(uint64(1)))
		Expect(memory.Read64(0x200)).To(Equal(uint64(9)))
	})

	It("should report memory faults with the pc", func() {
		prog := assemble(`
			li x1, 0x101
			ld x2, 0(x1)
		`)

		e := emu.NewEmulator(prog, memory)
		err := e.Run()
		Expect(err).To(MatchError(emu.ErrMisaligned))
		Expect(err.Error()).To(ContainSubstring("0x1004"))
	})

	It("should stop when running off the program", func() {
		e := emu.NewEmulator(assemble("nop"), memory)
		Expect(e.Run()).To(MatchError(emu.ErrNoInstruction))
	})

	It("should honor the instruction limit", func() {
		prog := assemble("loop: jal x0, loop")
		e := emu.NewEmulator(prog, memory, emu.WithMaxInstructions(10))
		Expect(e.Run()).To(MatchError(emu.ErrMaxInstructions))
		Expect(e.InstructionCount()).To(Equal(uint64(10)))
	})
})
