package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Arithmetic", func() {
		It("should decode add x1, x2, x3", func() {
			inst, err := decoder.Decode("add x1, x2, x3")
			Expect(err).NotTo(HaveOccurred())

			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(3)))
			Expect(inst.FU()).To(Equal(insts.FUSimple))
			Expect(inst.HasDest()).To(BeTrue())
		})

		It("should decode a negative hex immediate", func() {
			inst, err := decoder.Decode("addi x5, x6, -0x10")
			Expect(err).NotTo(HaveOccurred())

			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Imm).To(Equal(int64(-16)))
			rs1, rs2 := inst.Sources()
			Expect(rs1).To(BeTrue())
			Expect(rs2).To(BeFalse())
		})

		It("should treat a write to x0 as having no destination", func() {
			inst, err := decoder.Decode("li zero, 3")
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.HasDest()).To(BeFalse())
		})

		It("should put mul on the complex unit", func() {
			inst, err := decoder.Decode("mul x1, x1, x1")
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.FU()).To(Equal(insts.FUComplex))
		})
	})

	Describe("Memory", func() {
		It("should decode a signed word load", func() {
			inst, err := decoder.Decode("lw x1, 8(x2)")
			Expect(err).NotTo(HaveOccurred())

			Expect(inst.Op).To(Equal(insts.OpLoad))
			Expect(inst.Size).To(Equal(4))
			Expect(inst.Signed).To(BeTrue())
			Expect(inst.Imm).To(Equal(int64(8)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.IsLoad()).To(BeTrue())
		})

		It("should decode a store with the data register in rs2", func() {
			inst, err := decoder.Decode("sd x3, (x4)")
			Expect(err).NotTo(HaveOccurred())

			Expect(inst.Op).To(Equal(insts.OpStore))
			Expect(inst.Rs2).To(Equal(uint8(3)))
			Expect(inst.Rs1).To(Equal(uint8(4)))
			Expect(inst.HasDest()).To(BeFalse())
			Expect(inst.IsStore()).To(BeTrue())
		})

		It("should decode store-conditional", func() {
			inst, err := decoder.Decode("sc.d x5, x6, (x7)")
			Expect(err).NotTo(HaveOccurred())

			Expect(inst.Op).To(Equal(insts.OpSC))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(inst.Rs2).To(Equal(uint8(6)))
			Expect(inst.Rs1).To(Equal(uint8(7)))
			Expect(inst.IsAtomic()).To(BeTrue())
			Expect(inst.IsStore()).To(BeTrue())
		})

		It("should reject a malformed memory operand", func() {
			_, err := decoder.Decode("ld x1, 8[x2]")
			Expect(err).To(MatchError(insts.ErrBadMemOperand))
		})
	})

	Describe("Control", func() {
		It("should keep a symbolic target as a label", func() {
			inst, err := decoder.Decode("bne x1, x0, loop")
			Expect(err).NotTo(HaveOccurred())

			Expect(inst.Op).To(Equal(insts.OpBNE))
			Expect(inst.Label).To(Equal("loop"))
			Expect(inst.IsConditional()).To(BeTrue())
		})

		It("should decode a numeric jal offset", func() {
			inst, err := decoder.Decode("jal x1, -8")
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.Imm).To(Equal(int64(-8)))
			Expect(inst.FU()).To(Equal(insts.FUBranch))
		})

		It("should decode fence as serializing", func() {
			inst, err := decoder.Decode("fence")
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.IsSerializing()).To(BeTrue())
			Expect(inst.FU()).To(Equal(insts.FUNone))
		})
	})

	Describe("Errors", func() {
		It("should reject unknown mnemonics", func() {
			_, err := decoder.Decode("frob x1, x2")
			Expect(err).To(MatchError(insts.ErrUnknownOp))
		})

		It("should reject bad registers", func() {
			_, err := decoder.Decode("add x1, x2, x32")
			Expect(err).To(MatchError(insts.ErrBadRegister))
		})

		It("should reject a wrong operand count", func() {
			_, err := decoder.Decode("add x1, x2")
			Expect(err).To(MatchError(insts.ErrBadOperandCount))
		})
	})
})
