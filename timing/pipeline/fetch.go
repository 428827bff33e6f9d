package pipeline

import (
	"fmt"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/insts"
	"github.com/sarchlab/ooosim/timing/cache"
)

// fetch reads up to FetchWidth instructions from one instruction cache
// line. It stops after a predicted-taken branch and after HALT. An address
// with no instruction is sent down the pipeline as a faulting entry so the
// fault is raised only if the path turns out to be correct.
func (p *Pipeline) fetch() {
	if p.fetchBlocked || !p.fetchQueue.CanPush() {
		return
	}

	if p.cycle < p.fetchReady {
		p.stats.FetchStalls++
		return
	}

	res, ok := p.l1i.Access(cache.Request{Cycle: p.cycle, Addr: p.pc})
	if !ok {
		p.stats.FetchStalls++
		p.fetchReady = p.cycle + 1
		return
	}
	if !res.Hit {
		p.stats.FetchStalls++
		p.fetchReady = res.Ready
		return
	}

	blockSize := uint64(p.config.L1I.BlockSize)
	line := p.pc / blockSize

	for i := 0; i < p.config.FetchWidth && p.fetchQueue.CanPush(); i++ {
		inst, ok := p.program.At(p.pc)
		if !ok {
			p.fetchQueue.Push(&fetched{
				inst:  &insts.Instruction{Op: insts.OpUnknown},
				pc:    p.pc,
				fault: fmt.Errorf("%w %#x", emu.ErrNoInstruction, p.pc),
			})
			p.fetchBlocked = true
			return
		}

		f := &fetched{
			inst: inst,
			pc:   p.pc,
			pred: Prediction{Target: p.pc + insts.InstSize},
		}
		if inst.IsBranch() {
			f.pred = p.predictor.Predict(p.pc, inst)
		}

		p.fetchQueue.Push(f)
		p.stats.Fetched++

		if inst.Op == insts.OpHALT {
			p.fetchBlocked = true
			return
		}

		p.pc = f.pred.Target
		if f.pred.Taken || p.pc/blockSize != line {
			return
		}
	}
}

// redirect restarts fetch at pc from the next cycle, dropping everything
// fetched but not yet dispatched.
func (p *Pipeline) redirect(pc uint64) {
	p.pc = pc
	p.fetchQueue.Clear()
	p.bundle = nil
	p.fetchBlocked = false
	p.fetchReady = p.cycle + 1
}
