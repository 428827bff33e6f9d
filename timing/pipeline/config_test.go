package pipeline_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ooosim/insts"
	"github.com/sarchlab/ooosim/timing/pipeline"
	"github.com/sarchlab/ooosim/timing/rename"
)

var _ = Describe("Config", func() {
	It("should provide a valid default configuration", func() {
		config := pipeline.DefaultConfig()

		Expect(config.Validate()).To(Succeed())
		Expect(config.FetchWidth).To(Equal(4))
		Expect(config.EarlyBranchRecovery).To(BeTrue())
		Expect(config.L2).NotTo(BeNil())
	})

	It("should reject zero widths", func() {
		config := pipeline.DefaultConfig()
		config.RetireWidth = 0

		Expect(config.Validate()).To(MatchError(ContainSubstring("retire_width")))
	})

	It("should name the nested configuration that is invalid", func() {
		config := pipeline.DefaultConfig()
		config.LSQ.SQSize = 0

		Expect(config.Validate()).To(MatchError(ContainSubstring("lsq: sq_size")))

		config = pipeline.DefaultConfig()
		bad := *config.L2
		bad.BlockSize = 48
		config.L2 = &bad

		Expect(config.Validate()).To(MatchError(ContainSubstring("l2:")))
	})

	It("should require one logical register per ISA register", func() {
		config := pipeline.DefaultConfig()
		config.Rename.NumLogicalRegs = 16

		Expect(config.Validate()).To(MatchError(ContainSubstring("num_logical_regs")))
		prog, err := insts.Assemble(0x1000, "li x20, 1\nhalt\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(func() {
			pipeline.NewPipeline(prog, nil, pipeline.WithConfig(config))
		}).To(PanicWith(ContainSubstring("num_logical_regs")))
	})

	It("should reject a partial fault order", func() {
		config := pipeline.DefaultConfig()
		config.Rename.FaultOrder = []rename.Fault{rename.Exception}

		Expect(config.Validate()).To(MatchError(ContainSubstring("rename: fault_order")))
	})

	It("should deep copy on Clone", func() {
		original := pipeline.DefaultConfig()
		original.Rename.FaultOrder = []rename.Fault{rename.BranchMisprediction}

		clone := original.Clone()
		clone.L2.HitLatency = 99
		clone.Timing.ALULatency = 7
		clone.Rename.FaultOrder[0] = rename.Exception

		Expect(original.L2.HitLatency).To(Equal(uint64(10)))
		Expect(original.Timing.ALULatency).To(Equal(uint64(1)))
		Expect(original.Rename.FaultOrder[0]).To(Equal(rename.BranchMisprediction))
	})

	Describe("File Operations", func() {
		var tempDir string

		BeforeEach(func() {
			var err error
			tempDir, err = os.MkdirTemp("", "pipeline-test")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			_ = os.RemoveAll(tempDir)
		})

		It("should save and load config", func() {
			original := pipeline.DefaultConfig()
			original.Presteer = true
			original.L2 = nil
			original.Rename.FaultOrder = []rename.Fault{
				rename.LoadViolation, rename.Exception,
				rename.ValueMisprediction, rename.BranchMisprediction,
			}

			path := filepath.Join(tempDir, "core.json")
			Expect(original.SaveConfig(path)).To(Succeed())

			loaded, err := pipeline.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(original))
		})

		It("should keep defaults for missing fields", func() {
			path := filepath.Join(tempDir, "partial.json")
			Expect(os.WriteFile(path, []byte(`{"fetch_width": 2}`), 0644)).To(Succeed())

			loaded, err := pipeline.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.FetchWidth).To(Equal(2))
			Expect(loaded.DispatchWidth).To(Equal(4))
		})

		It("should return error for invalid JSON", func() {
			path := filepath.Join(tempDir, "invalid.json")
			Expect(os.WriteFile(path, []byte("not valid json"), 0644)).To(Succeed())

			_, err := pipeline.LoadConfig(path)
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("StaticPredictor", func() {
	It("should predict direct jumps taken and everything else not taken", func() {
		bp := pipeline.NewStaticPredictor()

		jal := bp.Predict(0x1000, &insts.Instruction{Op: insts.OpJAL, Imm: 0x20})
		Expect(jal.Taken).To(BeTrue())
		Expect(jal.Target).To(Equal(uint64(0x1020)))

		beq := bp.Predict(0x1000, &insts.Instruction{Op: insts.OpBEQ, Imm: 0x20})
		Expect(beq.Taken).To(BeFalse())
		Expect(beq.Target).To(Equal(uint64(0x1004)))

		jalr := bp.Predict(0x1000, &insts.Instruction{Op: insts.OpJALR})
		Expect(jalr.Target).To(Equal(uint64(0x1004)))

		bp.Update(0, 0x1000, true, 0x1020, true)
		bp.Update(0, 0x1000, true, 0x1020, false)

		Expect(bp.Stats().Predictions).To(Equal(uint64(3)))
		Expect(bp.Stats().Accuracy()).To(Equal(50.0))
	})

	It("should measure accuracy over resolved branches only", func() {
		s := pipeline.BranchPredictorStats{Predictions: 12, Correct: 3, Mispredictions: 1}
		Expect(s.Accuracy()).To(Equal(75.0))

		s = pipeline.BranchPredictorStats{Predictions: 4}
		Expect(s.Accuracy()).To(BeZero())
	})
})

var _ = Describe("Statistics", func() {
	It("should compute CPI and IPC", func() {
		s := pipeline.Statistics{Cycles: 200, Instructions: 100}

		Expect(s.CPI()).To(Equal(2.0))
		Expect(s.IPC()).To(Equal(0.5))
		Expect(pipeline.Statistics{}.CPI()).To(BeZero())
	})
})
