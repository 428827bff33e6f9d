package pipeline

import (
	"fmt"

	"github.com/sarchlab/ooosim/insts"
	"github.com/sarchlab/ooosim/timing/rename"
)

// retire commits up to RetireWidth completed instructions from the head of
// the Active List. A fault on the head is handled instead of committing it
// and ends the cycle's retirement.
func (p *Pipeline) retire() {
	for i := 0; i < p.config.RetireWidth; i++ {
		e, ok := p.renamer.Head()
		if !ok || !e.Completed {
			return
		}

		switch p.renamer.PrecommitFault(e) {
		case rename.Exception:
			p.takeException(e, p.uops[e.Index].fault)
			return

		case rename.LoadViolation:
			p.stats.LoadViolations++
			p.lsq.Predictor().Train(e.PC)
			Trace("load violation", "cycle", p.cycle, "pc", e.PC)
			p.squash()
			p.redirect(e.PC)
			return

		case rename.BranchMisprediction:
			p.renamer.ClearFault(e.Index, rename.BranchMisprediction)
			if !p.commit(e) {
				return
			}
			p.squash()
			p.redirect(e.Target)
			return

		case rename.ValueMisprediction:
			Trace("value misprediction", "cycle", p.cycle, "pc", e.PC)
			p.squash()
			p.redirect(e.PC)
			return
		}

		if !p.commit(e) {
			return
		}
	}
}

// commit retires the head entry. It returns false when retirement must stop
// for this cycle because the core halted, squashed or took an exception.
func (p *Pipeline) commit(e rename.Entry) bool {
	u := &p.uops[e.Index]

	if e.IsLoad {
		res, _ := p.lsq.Commit(true)
		if u.inst.Op == insts.OpLR {
			p.reservation.Set(res.Addr)
		}
	}

	if e.IsStore {
		res, err := p.lsq.Commit(false)
		if err != nil {
			p.takeException(e, err)
			return false
		}

		if u.inst.Op == insts.OpSC {
			p.reservation.Clear()
			var flag uint64
			if !res.AtomicSuccess {
				flag = 1
				p.stats.AtomicFailures++
			}
			if e.HasDest {
				p.produce(e.PhysDest, flag)
			}
		} else {
			p.reservation.Observe(res.Addr, res.Size)
		}
	}

	p.renamer.Commit()
	p.stats.Instructions++

	p.archPC = e.PC + insts.InstSize
	if e.IsBranch {
		p.archPC = u.out.NextPC
	}

	p.notify(e, u)

	switch {
	case u.inst.Op == insts.OpHALT:
		p.halted = true
		Trace("halted", "cycle", p.cycle, "pc", e.PC,
			"instructions", p.stats.Instructions)
		return false

	case e.IsCSR:
		p.stats.Serializations++
		p.squash()
		p.redirect(p.archPC)
		return false
	}

	return true
}

func (p *Pipeline) notify(e rename.Entry, u *uop) {
	if len(p.listeners) == 0 {
		return
	}

	r := Retirement{
		Cycle: p.cycle,
		Seq:   u.seq,
		PC:    e.PC,
		Text:  u.inst.String(),
		Dest:  -1,
	}
	if e.HasDest {
		r.Dest = e.LogicalDest
		r.Value = p.renamer.Read(e.PhysDest)
	}

	for _, l := range p.listeners {
		l.OnRetire(r)
	}
}

// takeException squashes the core and lets the exception handler decide
// where to continue.
func (p *Pipeline) takeException(e rename.Entry, err error) {
	p.stats.Exceptions++
	p.squash()
	Trace("exception", "cycle", p.cycle, "pc", e.PC, "err", err)

	target, halt := p.exceptionHandler(e.PC, err)
	if halt {
		p.halted = true
		p.archPC = e.PC
		p.fault = fmt.Errorf("exception at pc %#x: %w", e.PC, err)
		return
	}

	p.archPC = target
	p.redirect(target)
}

// squash discards every in-flight instruction and rolls the core back to
// its committed state.
func (p *Pipeline) squash() {
	p.renamer.Squash()
	p.iq.Flush()
	p.lsq.Flush()

	for i := range p.lanes {
		p.lanes[i] = lane{}
	}

	p.fetchQueue.Clear()
	p.bundle = nil
	p.stats.Squashes++
}
