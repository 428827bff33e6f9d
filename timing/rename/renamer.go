// Package rename maps architectural registers onto a physical register file
// and keeps in-flight instructions in program order.
//
// The Renamer owns the rename map table (RMT), the architectural map table
// (AMT), the free list, the physical register file with its ready bits,
// the Active List (reorder buffer) and the branch checkpoints. Capacity
// predicates (StallReg, StallBranch, StallDispatch) never mutate, so a
// bundle can be checked as a whole before any allocation happens.
package rename

import (
	"log"
	"math/bits"
)

// Entry is an Active List entry.
type Entry struct {
	// Index is the entry's position in the Active List, set by Dispatch.
	Index int

	HasDest     bool
	LogicalDest int
	PhysDest    int

	IsLoad   bool
	IsStore  bool
	IsBranch bool
	IsAtomic bool
	IsCSR    bool

	// BranchID is the checkpoint taken for a branch.
	BranchID int

	PC uint64

	Completed bool
	Faults    Fault

	// Target is the corrected fetch address posted together with a
	// branch misprediction.
	Target uint64
}

type checkpoint struct {
	rmt       []int
	freeHead  int
	freePhase bool
	mask      uint64

	// Active List tail to roll back to: just past the branch once it is
	// dispatched, the tail at checkpoint time before that.
	alTail  int
	alPhase bool
}

// Renamer implements register renaming, the Active List and branch
// checkpoints.
type Renamer struct {
	config     Config
	faultOrder []Fault

	rmt []int
	amt []int

	values []uint64
	ready  []bool

	freeList      []int
	freeHead      int
	freeTail      int
	freeHeadPhase bool
	freeTailPhase bool

	activeList  []Entry
	alHead      int
	alTail      int
	alHeadPhase bool
	alTailPhase bool

	branchMask  uint64
	checkpoints []checkpoint
}

// New creates a Renamer. The RMT and AMT start as the identity map and
// every remaining physical register is free and ready.
func New(config Config) *Renamer {
	if err := config.Validate(); err != nil {
		log.Panicf("rename: invalid config: %v", err)
	}

	numLogical := config.NumLogicalRegs
	numPhys := config.NumPhysRegs()

	r := &Renamer{
		config:      config,
		faultOrder:  config.FaultOrder,
		rmt:         make([]int, numLogical),
		amt:         make([]int, numLogical),
		values:      make([]uint64, numPhys),
		ready:       make([]bool, numPhys),
		freeList:    make([]int, numPhys-numLogical),
		activeList:  make([]Entry, config.ActiveListSize),
		checkpoints: make([]checkpoint, config.MaxBranches),
	}

	if len(r.faultOrder) == 0 {
		r.faultOrder = DefaultFaultOrder
	}

	for i := range r.rmt {
		r.rmt[i] = i
		r.amt[i] = i
	}

	for i := range r.freeList {
		r.freeList[i] = numLogical + i
	}
	r.freeTailPhase = true

	for i := range r.ready {
		r.ready[i] = true
	}

	for i := range r.checkpoints {
		r.checkpoints[i].rmt = make([]int, numLogical)
	}

	return r
}

// Config returns the renamer configuration.
func (r *Renamer) Config() Config {
	return r.config
}

func circularLen(head, tail int, headPhase, tailPhase bool, size int) int {
	if head == tail {
		if headPhase != tailPhase {
			return size
		}
		return 0
	}
	return (tail - head + size) % size
}

func advance(pos int, phase bool, size int) (int, bool) {
	pos++
	if pos == size {
		return 0, !phase
	}
	return pos, phase
}

// FreeCount returns the number of free physical registers.
func (r *Renamer) FreeCount() int {
	return circularLen(r.freeHead, r.freeTail, r.freeHeadPhase, r.freeTailPhase, len(r.freeList))
}

// ActiveLen returns the number of entries in the Active List.
func (r *Renamer) ActiveLen() int {
	return circularLen(r.alHead, r.alTail, r.alHeadPhase, r.alTailPhase, len(r.activeList))
}

// StallReg reports whether fewer than n physical registers are free.
func (r *Renamer) StallReg(n int) bool {
	return r.FreeCount() < n
}

// StallBranch reports whether fewer than n checkpoints are free.
func (r *Renamer) StallBranch(n int) bool {
	return r.config.MaxBranches-bits.OnesCount64(r.branchMask) < n
}

// StallDispatch reports whether the Active List has fewer than n free
// entries.
func (r *Renamer) StallDispatch(n int) bool {
	return len(r.activeList)-r.ActiveLen() < n
}

// RenameSource returns the physical register currently mapped to logical.
func (r *Renamer) RenameSource(logical int) int {
	return r.rmt[logical]
}

// RenameDest allocates a physical register for logical and maps it in the
// RMT. The new register is not ready. The caller must have checked
// StallReg.
func (r *Renamer) RenameDest(logical int) int {
	if r.FreeCount() == 0 {
		log.Panicf("rename: free list empty")
	}

	phys := r.freeList[r.freeHead]
	r.freeHead, r.freeHeadPhase = advance(r.freeHead, r.freeHeadPhase, len(r.freeList))
	r.rmt[logical] = phys
	r.ready[phys] = false

	return phys
}

// BranchMask returns the global branch mask: one bit per unresolved
// branch checkpoint. An instruction renamed now depends on all of them.
func (r *Renamer) BranchMask() uint64 {
	return r.branchMask
}

// Checkpoint snapshots the RMT, free-list head and branch mask into the
// lowest free checkpoint and returns its branch ID. The caller must have
// checked StallBranch.
func (r *Renamer) Checkpoint() int {
	free := ^r.branchMask
	if r.config.MaxBranches < MaxCheckpoints {
		free &= (uint64(1) << r.config.MaxBranches) - 1
	}
	if free == 0 {
		log.Panicf("rename: no free checkpoint")
	}

	id := bits.TrailingZeros64(free)
	chk := &r.checkpoints[id]
	copy(chk.rmt, r.rmt)
	chk.freeHead = r.freeHead
	chk.freePhase = r.freeHeadPhase
	chk.mask = r.branchMask
	chk.alTail = r.alTail
	chk.alPhase = r.alTailPhase

	r.branchMask |= uint64(1) << id

	return id
}

// Dispatch appends e to the Active List and returns its index. A branch
// entry binds its checkpoint to the index, so that a misprediction rolls
// the Active List back to the branch. The caller must have checked
// StallDispatch.
func (r *Renamer) Dispatch(e Entry) int {
	if r.StallDispatch(1) {
		log.Panicf("rename: active list full")
	}

	idx := r.alTail
	e.Index = idx
	e.Completed = false
	e.Faults = 0
	r.activeList[idx] = e
	r.alTail, r.alTailPhase = advance(r.alTail, r.alTailPhase, len(r.activeList))

	if e.IsBranch {
		r.mustBeLive(e.BranchID)
		chk := &r.checkpoints[e.BranchID]
		chk.alTail = r.alTail
		chk.alPhase = r.alTailPhase
	}

	return idx
}

func (r *Renamer) mustBeLive(branchID int) {
	if branchID < 0 || branchID >= r.config.MaxBranches ||
		r.branchMask&(uint64(1)<<branchID) == 0 {
		log.Panicf("rename: branch %d is not live", branchID)
	}
}

// Resolve resolves the branch that owns checkpoint branchID. A correct
// prediction frees the checkpoint and clears its bit everywhere. An
// incorrect one discards every Active List entry younger than the branch
// and restores the free-list head, branch mask and RMT from the
// checkpoint.
func (r *Renamer) Resolve(branchID int, correct bool) {
	r.mustBeLive(branchID)
	bit := uint64(1) << branchID

	if correct {
		r.branchMask &^= bit
		for i := range r.checkpoints {
			r.checkpoints[i].mask &^= bit
		}
		return
	}

	chk := &r.checkpoints[branchID]
	r.alTail = chk.alTail
	r.alTailPhase = chk.alPhase
	r.freeHead = chk.freeHead
	r.freeHeadPhase = chk.freePhase
	r.branchMask = chk.mask
	copy(r.rmt, chk.rmt)
}

// Head returns the oldest Active List entry.
func (r *Renamer) Head() (Entry, bool) {
	if r.ActiveLen() == 0 {
		return Entry{}, false
	}
	return r.activeList[r.alHead], true
}

// Entry returns the Active List entry at index.
func (r *Renamer) Entry(index int) Entry {
	r.mustBeInFlight(index)
	return r.activeList[index]
}

// Entries returns the in-flight entries from oldest to youngest.
func (r *Renamer) Entries() []Entry {
	n := r.ActiveLen()
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.activeList[(r.alHead+i)%len(r.activeList)])
	}
	return out
}

// PrecommitFault returns the fault to act on for the head entry, or 0.
func (r *Renamer) PrecommitFault(e Entry) Fault {
	for _, f := range r.faultOrder {
		if e.Faults&f != 0 {
			return f
		}
	}
	return 0
}

// Commit retires the head entry. The head must be completed and carry no
// fault. If it has a destination, the previous committed mapping of the
// logical register is returned to the free list.
func (r *Renamer) Commit() {
	if r.ActiveLen() == 0 {
		log.Panicf("rename: commit from empty active list")
	}

	e := &r.activeList[r.alHead]
	if !e.Completed || e.Faults != 0 {
		log.Panicf("rename: commit of entry %d (pc %#x) completed=%v faults=%v",
			e.Index, e.PC, e.Completed, e.Faults)
	}

	if e.HasDest {
		if r.FreeCount() == len(r.freeList) {
			log.Panicf("rename: free list overflow")
		}
		r.freeList[r.freeTail] = r.amt[e.LogicalDest]
		r.freeTail, r.freeTailPhase = advance(r.freeTail, r.freeTailPhase, len(r.freeList))
		r.amt[e.LogicalDest] = e.PhysDest
	}

	r.alHead, r.alHeadPhase = advance(r.alHead, r.alHeadPhase, len(r.activeList))
}

// Squash empties the Active List and rolls every speculative structure
// back to the committed state: RMT from AMT, all non-committed registers
// free, no live branches, all registers ready.
func (r *Renamer) Squash() {
	r.alTail = r.alHead
	r.alTailPhase = r.alHeadPhase

	r.freeTail = r.freeHead
	r.freeTailPhase = !r.freeHeadPhase

	r.branchMask = 0
	copy(r.rmt, r.amt)

	for i := range r.ready {
		r.ready[i] = true
	}
}

func (r *Renamer) mustBeInFlight(index int) {
	size := len(r.activeList)
	if index < 0 || index >= size {
		log.Panicf("rename: active list index %d out of range", index)
	}
	if (index-r.alHead+size)%size >= r.ActiveLen() {
		log.Panicf("rename: active list index %d is not in flight", index)
	}
}

// SetComplete marks an entry completed.
func (r *Renamer) SetComplete(index int) {
	r.mustBeInFlight(index)
	r.activeList[index].Completed = true
}

// SetException posts an exception on an entry.
func (r *Renamer) SetException(index int) {
	r.mustBeInFlight(index)
	r.activeList[index].Faults |= Exception
}

// SetLoadViolation posts a memory ordering violation on a load.
func (r *Renamer) SetLoadViolation(index int) {
	r.mustBeInFlight(index)
	r.activeList[index].Faults |= LoadViolation
}

// SetBranchMisprediction posts a misprediction on a branch together with
// the address fetch must resume from.
func (r *Renamer) SetBranchMisprediction(index int, target uint64) {
	r.mustBeInFlight(index)
	r.activeList[index].Faults |= BranchMisprediction
	r.activeList[index].Target = target
}

// SetValueMisprediction posts a value misprediction on an entry.
func (r *Renamer) SetValueMisprediction(index int) {
	r.mustBeInFlight(index)
	r.activeList[index].Faults |= ValueMisprediction
}

// ClearFault withdraws a fault once it has been acted on, so that the
// entry can commit.
func (r *Renamer) ClearFault(index int, f Fault) {
	r.mustBeInFlight(index)
	r.activeList[index].Faults &^= f
}

// IsReady reports whether a physical register holds its value.
func (r *Renamer) IsReady(phys int) bool {
	return r.ready[phys]
}

// SetReady marks a physical register ready.
func (r *Renamer) SetReady(phys int) {
	r.ready[phys] = true
}

// ClearReady marks a physical register not ready.
func (r *Renamer) ClearReady(phys int) {
	r.ready[phys] = false
}

// Read returns the value of a physical register.
func (r *Renamer) Read(phys int) uint64 {
	return r.values[phys]
}

// Write sets the value of a physical register.
func (r *Renamer) Write(phys int, value uint64) {
	r.values[phys] = value
}

// Committed returns the physical register the AMT maps logical to.
func (r *Renamer) Committed(logical int) int {
	return r.amt[logical]
}

// FreeRegs returns the free physical registers from head to tail.
func (r *Renamer) FreeRegs() []int {
	n := r.FreeCount()
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.freeList[(r.freeHead+i)%len(r.freeList)])
	}
	return out
}
