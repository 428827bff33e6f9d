package pipeline

import (
	"sort"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/timing/lsq"
)

// issue selects ready instructions for every lane whose register read slot
// is free.
func (p *Pipeline) issue() {
	var free uint64
	for i := range p.lanes {
		if !p.lanes[i].rr.valid {
			free |= uint64(1) << i
		}
	}
	if free == 0 {
		return
	}

	for _, g := range p.iq.SelectAndIssue(free) {
		p.lanes[g.Lane].rr = laneSlot{valid: true, al: g.Payload, mask: g.BranchMask}
		p.stats.Issued++
	}
}

// registerRead reads the source operands and computes the outcome the
// instruction will produce once its latency has elapsed.
func (p *Pipeline) registerRead() {
	for i := range p.lanes {
		l := &p.lanes[i]
		if !l.rr.valid || l.ex.valid {
			continue
		}

		u := &p.uops[l.rr.al]
		u.out = emu.Evaluate(u.inst, u.pc, p.readReg(u.src1), p.readReg(u.src2))

		l.ex = l.rr
		l.ex.remaining = p.latencyTable.GetLatency(u.inst)
		l.rr = laneSlot{}
	}
}

func (p *Pipeline) readReg(phys int) uint64 {
	if phys == noReg {
		return 0
	}
	return p.renamer.Read(phys)
}

// execute counts down the execution latency. Finished loads hand their
// address to the load/store queue and leave the lane; everything else
// produces its result and moves on to writeback.
func (p *Pipeline) execute() {
	for i := range p.lanes {
		l := &p.lanes[i]
		if !l.ex.valid {
			continue
		}

		if l.ex.remaining > 1 {
			l.ex.remaining--
			continue
		}

		al := l.ex.al
		u := &p.uops[al]

		switch {
		case u.inst.IsLoad():
			l.ex = laneSlot{}
			res := p.lsq.LoadAddr(p.cycle, u.out.Addr, u.lq)
			if res.Ready {
				p.finishLoad(res)
			}
			continue

		case u.inst.IsStore():
			p.lsq.StoreAddr(p.cycle, u.out.Addr, u.sq)
			p.lsq.StoreValue(u.sq, u.out.Value)

		case u.dest != noReg:
			p.produce(u.dest, u.out.Value)
		}

		l.wb = l.ex
		l.ex = laneSlot{}
	}
}

// produce writes a result and wakes up its consumers.
func (p *Pipeline) produce(phys int, value uint64) {
	p.renamer.Write(phys, value)
	p.renamer.SetReady(phys)
	p.iq.Wakeup(phys)
}

// loadReplay gives one waiting load per cycle another chance.
func (p *Pipeline) loadReplay() {
	if res, ok := p.lsq.LoadUnstall(p.cycle); ok {
		p.finishLoad(res)
	}
}

func (p *Pipeline) finishLoad(res lsq.LoadResult) {
	u := &p.uops[res.ALIndex]

	if res.Fault != nil {
		u.fault = res.Fault
		p.renamer.SetException(res.ALIndex)
	} else if u.dest != noReg {
		p.produce(u.dest, res.Value)
	}

	p.renamer.SetComplete(res.ALIndex)
}

// writeback completes the instructions leaving the lanes, oldest first, so
// that an older mispredicted branch squashes younger ones before they
// complete.
func (p *Pipeline) writeback() {
	var done []int
	for i := range p.lanes {
		if p.lanes[i].wb.valid {
			done = append(done, i)
		}
	}

	sort.Slice(done, func(a, b int) bool {
		return p.uops[p.lanes[done[a]].wb.al].seq < p.uops[p.lanes[done[b]].wb.al].seq
	})

	for _, i := range done {
		slot := p.lanes[i].wb
		if !slot.valid {
			continue
		}
		p.lanes[i].wb = laneSlot{}

		if p.uops[slot.al].inst.IsBranch() {
			p.resolveBranch(slot.al)
		}
		p.renamer.SetComplete(slot.al)
	}
}

func (p *Pipeline) resolveBranch(al int) {
	u := &p.uops[al]
	actual := u.out.NextPC
	correct := actual == u.pred.Target

	p.stats.Branches++
	p.predictor.Update(u.pred.Tag, u.pc, u.out.Taken, actual, correct)

	if correct {
		p.clearBranch(u.branchID)
		return
	}

	p.stats.BranchMispredictions++
	Trace("branch mispredicted",
		"cycle", p.cycle, "pc", u.pc,
		"predicted", u.pred.Target, "actual", actual)

	if !p.config.EarlyBranchRecovery {
		p.clearBranch(u.branchID)
		p.renamer.SetBranchMisprediction(al, actual)
		return
	}

	p.renamer.Resolve(u.branchID, false)
	p.iq.Squash(u.branchID)
	p.lsq.Restore(u.lsqChk)
	p.squashLanes(u.branchID)
	p.redirect(actual)
}

// clearBranch frees the checkpoint of a branch that no longer needs
// recovery and drops the dependency on it.
func (p *Pipeline) clearBranch(branchID int) {
	bit := uint64(1) << branchID

	p.renamer.Resolve(branchID, true)
	p.iq.ClearBranchBit(branchID)
	p.forEachSlot(func(s *laneSlot) {
		s.mask &^= bit
	})
}

// squashLanes drops every in-flight lane slot that depends on branchID.
func (p *Pipeline) squashLanes(branchID int) {
	bit := uint64(1) << branchID
	p.forEachSlot(func(s *laneSlot) {
		if s.valid && s.mask&bit != 0 {
			*s = laneSlot{}
		}
	})
}

func (p *Pipeline) forEachSlot(fn func(s *laneSlot)) {
	for i := range p.lanes {
		l := &p.lanes[i]
		fn(&l.rr)
		fn(&l.ex)
		fn(&l.wb)
	}
}
