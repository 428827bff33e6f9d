// Package pipeline drives the speculative out-of-order core cycle by cycle.
//
// Each Tick runs the stages in reverse pipeline order so that every stage
// sees the state its upstream neighbor left in the previous cycle:
// retire, writeback, load replay, execute, register read, issue, dispatch,
// fetch. Fetch reads the program through the L1 instruction cache into a
// bounded fetch queue. Dispatch renames a whole bundle at once, taking a
// checkpoint per branch, and allocates Active List, issue queue and
// load/store queue entries. Selected instructions flow through execution
// lanes with a register read, execute and writeback slot each. Retire
// commits in order and handles the faults posted on the head instruction.
package pipeline

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/insts"
	"github.com/sarchlab/ooosim/timing/cache"
	"github.com/sarchlab/ooosim/timing/issue"
	"github.com/sarchlab/ooosim/timing/latency"
	"github.com/sarchlab/ooosim/timing/lsq"
	"github.com/sarchlab/ooosim/timing/rename"
)

// ErrMaxCycles is returned by Run when the cycle limit is reached before
// the program halts.
var ErrMaxCycles = errors.New("cycle limit reached")

// noReg marks an unused physical register operand.
const noReg = -1

// ExceptionHandler is called when an instruction with an exception reaches
// the head of the Active List, after the core has been squashed. It returns
// the address to resume fetching from, or halt=true to stop the core.
type ExceptionHandler func(pc uint64, err error) (redirect uint64, halt bool)

// HaltOnException is the default exception handler.
func HaltOnException(uint64, error) (uint64, bool) {
	return 0, true
}

// Retirement describes one committed instruction.
type Retirement struct {
	Cycle uint64
	Seq   uint64
	PC    uint64
	Text  string
	// Dest is the logical destination register, or -1.
	Dest  int
	Value uint64
}

// RetireListener is notified of every committed instruction.
type RetireListener interface {
	OnRetire(r Retirement)
}

// fetched is a fetch queue entry.
type fetched struct {
	inst  *insts.Instruction
	pc    uint64
	pred  Prediction
	fault error
}

// uop is the payload of an in-flight instruction, indexed by its Active
// List position.
type uop struct {
	inst  *insts.Instruction
	pc    uint64
	seq   uint64
	pred  Prediction
	fault error

	src1, src2 int
	dest       int
	branchID   int

	lq, sq lsq.Index
	lsqChk lsq.Checkpoint

	out emu.Outcome
}

type laneSlot struct {
	valid     bool
	al        int
	mask      uint64
	remaining uint64
}

// lane is one execution lane: a register read, an execute and a writeback
// slot.
type lane struct {
	rr, ex, wb laneSlot
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithConfig sets the core configuration.
func WithConfig(config *Config) PipelineOption {
	return func(p *Pipeline) {
		p.config = config
	}
}

// WithBranchPredictor sets the branch predictor used at fetch.
func WithBranchPredictor(bp BranchPredictor) PipelineOption {
	return func(p *Pipeline) {
		p.predictor = bp
	}
}

// WithDependencePredictor sets the memory dependence predictor.
func WithDependencePredictor(dp lsq.DependencePredictor) PipelineOption {
	return func(p *Pipeline) {
		p.depPredictor = dp
	}
}

// WithExceptionHandler sets the handler invoked for exceptions.
func WithExceptionHandler(h ExceptionHandler) PipelineOption {
	return func(p *Pipeline) {
		p.exceptionHandler = h
	}
}

// WithRetireListener registers a listener for committed instructions.
func WithRetireListener(l RetireListener) PipelineOption {
	return func(p *Pipeline) {
		p.listeners = append(p.listeners, l)
	}
}

// WithMaxCycles bounds Run. Zero means no limit.
func WithMaxCycles(n uint64) PipelineOption {
	return func(p *Pipeline) {
		p.maxCycles = n
	}
}

// Pipeline is the out-of-order core.
type Pipeline struct {
	config  *Config
	program *insts.Program
	memory  *emu.Memory

	renamer      *rename.Renamer
	iq           *issue.Queue
	lsq          *lsq.LSQ
	reservation  *emu.Reservation
	l1i, l1d, l2 *cache.Cache
	latencyTable *latency.Table

	predictor        BranchPredictor
	depPredictor     lsq.DependencePredictor
	exceptionHandler ExceptionHandler
	listeners        []RetireListener

	// Fetch state
	fetchQueue   sim.Buffer
	pc           uint64
	archPC       uint64
	fetchReady   uint64
	fetchBlocked bool

	// Bundle popped from the fetch queue, waiting for dispatch resources
	bundle []*fetched

	uops      []uop
	lanes     []lane
	steerNext int

	cycle     uint64
	seq       uint64
	maxCycles uint64
	stats     Statistics
	halted    bool
	fault     error
}

// NewPipeline creates a core that runs program against memory, starting at
// the program's base address. It panics if the configuration is invalid.
func NewPipeline(
	program *insts.Program,
	memory *emu.Memory,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		config:           DefaultConfig(),
		program:          program,
		memory:           memory,
		reservation:      &emu.Reservation{},
		exceptionHandler: HaltOnException,
		pc:               program.Base,
		archPC:           program.Base,
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := p.config.Validate(); err != nil {
		log.Panicf("pipeline: invalid config: %v", err)
	}

	p.build()

	return p
}

func (p *Pipeline) build() {
	c := p.config

	if c.L2 != nil {
		p.l2 = cache.New(*c.L2, nil)
	}
	p.l1i = cache.New(c.L1I, p.l2)
	p.l1d = cache.New(c.L1D, p.l2)

	p.latencyTable = latency.NewTableWithConfig(c.Timing)
	p.renamer = rename.New(c.Rename)
	p.iq = issue.New(c.IssueQueue)

	if p.predictor == nil {
		p.predictor = NewStaticPredictor()
	}

	lsqOpts := []lsq.Option{lsq.WithReservation(p.reservation)}
	if p.depPredictor != nil {
		lsqOpts = append(lsqOpts, lsq.WithPredictor(p.depPredictor))
	}
	p.lsq = lsq.New(c.LSQ, p.l1d, p.memory, p.renamer, lsqOpts...)

	p.fetchQueue = sim.NewBuffer("Core.FetchQueue", c.FetchQueueSize)
	p.uops = make([]uop, c.Rename.ActiveListSize)
	p.lanes = make([]lane, p.latencyTable.NumLanes())
}

// Config returns the core configuration.
func (p *Pipeline) Config() *Config {
	return p.config
}

// PC returns the next fetch address.
func (p *Pipeline) PC() uint64 {
	return p.pc
}

// SetPC redirects fetch. It is meant to be called before the first Tick.
func (p *Pipeline) SetPC(pc uint64) {
	p.archPC = pc
	p.redirect(pc)
}

// Cycle returns the current cycle.
func (p *Pipeline) Cycle() uint64 {
	return p.cycle
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// Halted returns true if the pipeline has halted.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// Fault returns the exception that halted the core, if any.
func (p *Pipeline) Fault() error {
	return p.fault
}

// Renamer returns the register renamer and Active List.
func (p *Pipeline) Renamer() *rename.Renamer {
	return p.renamer
}

// IssueQueue returns the issue queue.
func (p *Pipeline) IssueQueue() *issue.Queue {
	return p.iq
}

// LSQ returns the load/store queue.
func (p *Pipeline) LSQ() *lsq.LSQ {
	return p.lsq
}

// ICache returns the L1 instruction cache.
func (p *Pipeline) ICache() *cache.Cache {
	return p.l1i
}

// DCache returns the L1 data cache.
func (p *Pipeline) DCache() *cache.Cache {
	return p.l1d
}

// L2Cache returns the shared L2 cache, or nil.
func (p *Pipeline) L2Cache() *cache.Cache {
	return p.l2
}

// Predictor returns the branch predictor.
func (p *Pipeline) Predictor() BranchPredictor {
	return p.predictor
}

// ArchRegFile returns a copy of the committed register state.
func (p *Pipeline) ArchRegFile() *emu.RegFile {
	rf := &emu.RegFile{PC: p.archPC}
	for i := 1; i < insts.NumRegs; i++ {
		rf.X[i] = p.renamer.Read(p.renamer.Committed(i))
	}
	return rf
}

// Run executes the pipeline until it halts. It returns the exception that
// halted the core, or ErrMaxCycles.
func (p *Pipeline) Run() error {
	for !p.halted {
		if p.maxCycles > 0 && p.cycle >= p.maxCycles {
			return fmt.Errorf("%w after %d cycles", ErrMaxCycles, p.cycle)
		}
		p.Tick()
	}
	return p.fault
}

// RunCycles executes the pipeline for the specified number of cycles.
// Returns true if still running, false if halted.
func (p *Pipeline) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !p.halted; i++ {
		p.Tick()
	}
	return !p.halted
}

// Tick executes one pipeline cycle.
func (p *Pipeline) Tick() {
	if p.halted {
		return
	}

	p.retire()
	if !p.halted {
		p.writeback()
		p.loadReplay()
		p.execute()
		p.registerRead()
		p.issue()
		p.dispatch()
		p.fetch()
	}

	p.cycle++
	p.stats.Cycles++
}
