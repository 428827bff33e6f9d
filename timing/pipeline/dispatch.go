package pipeline

import (
	"github.com/sarchlab/ooosim/insts"
	"github.com/sarchlab/ooosim/timing/issue"
	"github.com/sarchlab/ooosim/timing/lsq"
	"github.com/sarchlab/ooosim/timing/rename"
)

// bundleNeeds counts the resources a dispatch bundle allocates.
type bundleNeeds struct {
	regs, branches, entries, queued, loads, stores int
}

func needsOf(bundle []*fetched) bundleNeeds {
	var n bundleNeeds

	n.entries = len(bundle)
	for _, f := range bundle {
		if f.fault != nil {
			continue
		}

		inst := f.inst
		if inst.HasDest() {
			n.regs++
		}
		if inst.IsBranch() {
			n.branches++
		}
		if inst.FU() != insts.FUNone {
			n.queued++
		}
		if inst.IsLoad() {
			n.loads++
		}
		if inst.IsStore() {
			n.stores++
		}
	}

	return n
}

// dispatch renames and allocates one bundle. The bundle is checked against
// every structure first and either goes in whole or waits whole.
func (p *Pipeline) dispatch() {
	if len(p.bundle) == 0 {
		for len(p.bundle) < p.config.DispatchWidth && p.fetchQueue.Size() > 0 {
			p.bundle = append(p.bundle, p.fetchQueue.Pop().(*fetched))
		}
	}

	if len(p.bundle) == 0 || p.stallDispatch(needsOf(p.bundle)) {
		return
	}

	for _, f := range p.bundle {
		p.dispatchOne(f)
	}
	p.bundle = p.bundle[:0]
}

func (p *Pipeline) stallDispatch(n bundleNeeds) bool {
	stall := false

	if p.renamer.StallReg(n.regs) {
		p.stats.RegStalls++
		stall = true
	}
	if p.renamer.StallBranch(n.branches) {
		p.stats.BranchStalls++
		stall = true
	}
	if p.renamer.StallDispatch(n.entries) {
		p.stats.ALStalls++
		stall = true
	}
	if p.iq.Stall(n.queued) {
		p.stats.IQStalls++
		stall = true
	}
	if p.lsq.Stall(n.loads, n.stores) {
		p.stats.LSQStalls++
		stall = true
	}

	return stall
}

func (p *Pipeline) dispatchOne(f *fetched) {
	inst := f.inst
	u := uop{
		inst:     inst,
		pc:       f.pc,
		seq:      p.seq,
		pred:     f.pred,
		fault:    f.fault,
		src1:     noReg,
		src2:     noReg,
		dest:     noReg,
		branchID: noReg,
	}
	p.seq++

	useRs1, useRs2 := inst.Sources()
	if useRs1 && inst.Rs1 != 0 {
		u.src1 = p.renamer.RenameSource(int(inst.Rs1))
	}
	if useRs2 && inst.Rs2 != 0 {
		u.src2 = p.renamer.RenameSource(int(inst.Rs2))
	}

	if inst.HasDest() {
		u.dest = p.renamer.RenameDest(int(inst.Rd))
	}

	mask := p.renamer.BranchMask()
	if inst.IsBranch() {
		u.branchID = p.renamer.Checkpoint()
		u.lsqChk = p.lsq.Checkpoint()
	}

	al := p.renamer.Dispatch(rename.Entry{
		HasDest:     u.dest != noReg,
		LogicalDest: int(inst.Rd),
		PhysDest:    u.dest,
		IsLoad:      inst.IsLoad(),
		IsStore:     inst.IsStore(),
		IsBranch:    inst.IsBranch(),
		IsAtomic:    inst.IsAtomic(),
		IsCSR:       inst.IsSerializing(),
		BranchID:    u.branchID,
		PC:          f.pc,
	})

	if inst.IsLoad() || inst.IsStore() {
		u.lq, u.sq = p.lsq.Dispatch(lsq.Request{
			IsLoad:   inst.IsLoad(),
			Size:     inst.Size,
			Signed:   inst.Signed,
			ALIndex:  al,
			PC:       f.pc,
			IsAtomic: inst.IsAtomic(),
		})
	}

	p.uops[al] = u
	p.stats.Dispatched++

	if u.fault != nil || inst.FU() == insts.FUNone {
		if u.fault != nil {
			p.renamer.SetException(al)
		}
		p.renamer.SetComplete(al)
		return
	}

	lanes := p.latencyTable.LaneMask(inst.FU())
	if p.config.Presteer {
		lanes = p.steer(lanes)
	}

	p.iq.Dispatch(issue.Entry{
		Payload:    al,
		BranchMask: mask,
		Lanes:      lanes,
		Src: [issue.NumSources]issue.Operand{
			p.operand(u.src1),
			p.operand(u.src2),
		},
	})
}

func (p *Pipeline) operand(phys int) issue.Operand {
	if phys == noReg {
		return issue.Operand{}
	}
	return issue.Operand{Valid: true, Ready: p.renamer.IsReady(phys), Tag: phys}
}

// steer binds an instruction to one lane of its mask, rotating over the
// lanes so that consecutive instructions spread out.
func (p *Pipeline) steer(mask uint64) uint64 {
	n := len(p.lanes)
	for i := 0; i < n; i++ {
		lane := (p.steerNext + i) % n
		if mask&(uint64(1)<<lane) != 0 {
			p.steerNext = (lane + 1) % n
			return uint64(1) << lane
		}
	}
	return mask
}
