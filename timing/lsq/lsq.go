// Package lsq implements the load/store queue of the out-of-order core.
//
// Loads and stores are allocated in program order into two circular
// queues. Loads are disambiguated against older stores: they forward from
// the youngest older store to the same address, stall on conflicts that
// cannot be forwarded, and otherwise read memory once the data cache says
// the line has arrived. Stores write memory only when they commit. A store
// whose address becomes known after a younger overlapping load already
// obtained its value reports a load violation.
package lsq

import (
	"fmt"
	"log"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/timing/cache"
)

// Memory is the architectural memory that loads read and committed stores
// write.
type Memory interface {
	Load(addr uint64, size int, signed bool) (uint64, error)
	Store(addr uint64, size int, value uint64) error
}

// DataCache provides load and store timing.
type DataCache interface {
	Access(req cache.Request) (cache.Result, bool)
}

// ViolationSink receives the Active List index of a load that read memory
// before an older overlapping store resolved its address.
type ViolationSink interface {
	SetLoadViolation(alIndex int)
}

// Reservation decides whether a store-conditional may write memory.
type Reservation interface {
	Holds(addr uint64) bool
}

// Config holds load/store queue configuration.
type Config struct {
	LQSize int `json:"lq_size"`
	SQSize int `json:"sq_size"`
	// SpeculativeDisambiguation lets loads pass older stores whose address
	// is unknown unless the dependence predictor says otherwise.
	SpeculativeDisambiguation bool `json:"speculative_disambiguation"`
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		LQSize:                    32,
		SQSize:                    32,
		SpeculativeDisambiguation: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.LQSize <= 0 {
		return fmt.Errorf("lq_size must be > 0")
	}
	if c.SQSize <= 0 {
		return fmt.Errorf("sq_size must be > 0")
	}
	return nil
}

// Request describes a memory instruction at dispatch.
type Request struct {
	IsLoad   bool
	Size     int
	Signed   bool
	ALIndex  int
	PC       uint64
	IsAtomic bool
}

// LoadResult reports the state of a load after an execution attempt.
type LoadResult struct {
	ALIndex int
	Value   uint64
	// Ready is set once Value is final or the load faulted.
	Ready bool
	Fault error
}

// CommitResult describes the memory instruction that just committed.
type CommitResult struct {
	Addr          uint64
	Size          int
	AtomicSuccess bool
}

// Checkpoint holds the queue tails at the time a branch was renamed.
type Checkpoint struct {
	LQTail Index
	SQTail Index
}

// Statistics holds load/store queue statistics. Load counters other than
// Violations, Retries and LoadAttempts are collected from committed loads
// only. LoadAttempts counts every execution attempt, so a load that
// replays is counted once per try.
type Statistics struct {
	Loads          uint64
	Stores         uint64
	DisambigStalls uint64
	Forwards       uint64
	LoadMissStalls uint64
	LoadMisses     uint64
	StoreMisses    uint64
	Violations     uint64
	Retries        uint64
	AtomicFailures uint64
	LoadAttempts   uint64
}

// LSQ is the load/store queue.
type LSQ struct {
	config    Config
	dcache    DataCache
	memory    Memory
	sink      ViolationSink
	predictor DependencePredictor
	reserve   Reservation

	lq *queue
	sq *queue

	stats Statistics
}

// Option configures an LSQ.
type Option func(*LSQ)

// WithPredictor sets the memory dependence predictor.
func WithPredictor(p DependencePredictor) Option {
	return func(q *LSQ) {
		q.predictor = p
	}
}

// WithReservation sets the reservation consulted by store-conditionals.
// Without one every store-conditional fails.
func WithReservation(r Reservation) Option {
	return func(q *LSQ) {
		q.reserve = r
	}
}

// New creates an empty load/store queue.
func New(
	config Config,
	dcache DataCache,
	memory Memory,
	sink ViolationSink,
	opts ...Option,
) *LSQ {
	if err := config.Validate(); err != nil {
		log.Panicf("lsq: invalid config: %v", err)
	}

	q := &LSQ{
		config:    config,
		dcache:    dcache,
		memory:    memory,
		sink:      sink,
		predictor: NewStickyPredictor(),
		lq:        newQueue(config.LQSize),
		sq:        newQueue(config.SQSize),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Config returns the queue configuration.
func (q *LSQ) Config() Config {
	return q.config
}

// Predictor returns the memory dependence predictor.
func (q *LSQ) Predictor() DependencePredictor {
	return q.predictor
}

// Stats returns load/store queue statistics.
func (q *LSQ) Stats() Statistics {
	return q.stats
}

// Len returns the number of loads and stores in flight.
func (q *LSQ) Len() (loads, stores int) {
	return q.lq.length, q.sq.length
}

// Stall reports whether a bundle with the given number of loads and stores
// does not fit.
func (q *LSQ) Stall(loads, stores int) bool {
	return q.lq.length+loads > q.lq.size() || q.sq.length+stores > q.sq.size()
}

// Dispatch allocates an entry. It returns the current LQ and SQ tails; the
// new entry sits at the tail of its own queue.
func (q *LSQ) Dispatch(req Request) (lq, sq Index) {
	lq, sq = q.lq.tail, q.sq.tail

	e := entry{
		valid:   true,
		signed:  req.Signed,
		size:    req.Size,
		alIndex: req.ALIndex,
		pc:      req.PC,
		atomic:  req.IsAtomic,
	}

	if req.IsLoad {
		e.boundary = sq
		e.mdpStall = !q.config.SpeculativeDisambiguation ||
			q.predictor.PredictDependent(req.PC)
		q.lq.push(e)
	} else {
		e.boundary = lq
		q.sq.push(e)
	}

	return lq, sq
}

// StoreAddr records the address of a store, reports a load violation on
// the oldest younger load that already read an overlapping location, and
// sends the store to the data cache for timing.
func (q *LSQ) StoreAddr(cycle, addr uint64, sq Index) {
	e := q.sq.at(sq)
	if e.addrAvail {
		return
	}
	e.addrAvail = true
	e.addr = addr

	if q.config.SpeculativeDisambiguation {
		if load, ok := q.findViolation(e); ok {
			q.stats.Violations++
			q.sink.SetLoadViolation(load.alIndex)
		}
	}

	res, ok := q.dcache.Access(cache.Request{Cycle: cycle, Addr: addr, IsStore: true})
	if !ok {
		q.stats.Retries++
	}
	e.missed = !ok || !res.Hit
}

func (q *LSQ) findViolation(store *entry) (*entry, bool) {
	for i := store.boundary; i != q.lq.tail; i = q.lq.next(i) {
		load := &q.lq.entries[i.Pos]
		if load.valueAvail && overlap(store, load) {
			return load, true
		}
	}
	return nil, false
}

// overlap compares addresses at the granularity of the larger access.
func overlap(a, b *entry) bool {
	maxSize := max(a.size, b.size)
	mask := ^uint64(maxSize - 1)
	return a.addr&mask == b.addr&mask
}

// StoreValue records the data of a store.
func (q *LSQ) StoreValue(sq Index, value uint64) {
	e := q.sq.at(sq)
	e.valueAvail = true
	e.value = value
}

// LoadAddr records the address of a load and attempts to execute it.
func (q *LSQ) LoadAddr(cycle, addr uint64, lq Index) LoadResult {
	e := q.lq.at(lq)
	e.addrAvail = true
	e.addr = addr

	q.accessCache(cycle, e)
	q.execute(cycle, e)

	return e.result()
}

func (q *LSQ) accessCache(cycle uint64, e *entry) {
	res, ok := q.dcache.Access(cache.Request{Cycle: cycle, Addr: e.addr})
	if !ok {
		q.stats.Retries++
		e.retry = true
		e.missed = true
		return
	}

	e.retry = false
	e.missed = !res.Hit
	e.missReady = res.Ready
}

// LoadUnstall retries waiting loads, oldest first, and returns the first
// one that obtains its value.
func (q *LSQ) LoadUnstall(cycle uint64) (LoadResult, bool) {
	for i := q.lq.head; i != q.lq.tail; i = q.lq.next(i) {
		e := &q.lq.entries[i.Pos]
		if !e.addrAvail || e.valueAvail {
			continue
		}

		if e.retry {
			q.accessCache(cycle, e)
		}

		q.execute(cycle, e)
		if e.valueAvail {
			return e.result(), true
		}
	}

	return LoadResult{}, false
}

func (q *LSQ) execute(cycle uint64, e *entry) {
	q.stats.LoadAttempts++

	store, stall := q.disambiguate(e)
	switch {
	case stall:
		e.stalledDisambig = true
	case store != nil:
		e.forwarded = true
		e.value = emu.Extend(store.value, e.size, e.signed)
		e.valueAvail = true
	case e.retry || (e.missed && cycle < e.missReady):
		e.stalledMiss = true
	default:
		v, err := q.memory.Load(e.addr, e.size, e.signed)
		if err != nil {
			e.fault = fmt.Errorf("failed to load %d bytes at %#x: %w", e.size, e.addr, err)
		}
		e.value = v
		e.valueAvail = true
	}
}

// disambiguate searches older stores, youngest first, for one the load
// depends on. It returns the store to forward from, or stall=true when
// the load cannot proceed yet.
func (q *LSQ) disambiguate(load *entry) (store *entry, stall bool) {
	i := load.boundary
	for i != q.sq.head {
		i = q.sq.prev(i)
		s := &q.sq.entries[i.Pos]

		if !s.addrAvail {
			if load.mdpStall {
				return nil, true
			}
			continue
		}

		if !overlap(s, load) {
			continue
		}

		// A store-conditional only writes if it still holds its
		// reservation at commit.
		if s.atomic || s.size != load.size || !s.valueAvail {
			return nil, true
		}

		return s, false
	}

	return nil, false
}

// Commit retires the oldest load or store. A committing store writes
// memory; a store-conditional writes only while its reservation holds.
func (q *LSQ) Commit(isLoad bool) (CommitResult, error) {
	if isLoad {
		e := q.lq.pop()
		q.countLoad(e)
		return CommitResult{Addr: e.addr, Size: e.size, AtomicSuccess: true}, nil
	}

	e := q.sq.pop()
	q.stats.Stores++
	if e.missed {
		q.stats.StoreMisses++
	}

	res := CommitResult{Addr: e.addr, Size: e.size, AtomicSuccess: true}
	if e.atomic && (q.reserve == nil || !q.reserve.Holds(e.addr)) {
		q.stats.AtomicFailures++
		res.AtomicSuccess = false
		return res, nil
	}

	if err := q.memory.Store(e.addr, e.size, e.value); err != nil {
		return res, fmt.Errorf("failed to store %d bytes at %#x: %w", e.size, e.addr, err)
	}

	return res, nil
}

func (q *LSQ) countLoad(e entry) {
	q.stats.Loads++
	if e.stalledDisambig {
		q.stats.DisambigStalls++
	}
	if e.stalledMiss {
		q.stats.LoadMissStalls++
	}
	if e.forwarded {
		q.stats.Forwards++
	}
	if e.missed {
		q.stats.LoadMisses++
	}
}

// Checkpoint captures the queue tails.
func (q *LSQ) Checkpoint() Checkpoint {
	return Checkpoint{LQTail: q.lq.tail, SQTail: q.sq.tail}
}

// Restore discards every entry allocated after the checkpoint was taken.
func (q *LSQ) Restore(c Checkpoint) {
	q.lq.restore(c.LQTail)
	q.sq.restore(c.SQTail)
}

// Flush empties both queues.
func (q *LSQ) Flush() {
	q.lq.flush()
	q.sq.flush()
}
