// Package cache provides a non-blocking cache timing model using Akita cache
// components.
//
// The model only answers "when": every access returns the cycle at which
// the line is usable. Data lives in the functional memory. Outstanding
// misses are tracked by a fixed pool of MSHRs and serviced through a fixed
// number of miss ports; when the pool is exhausted the access is rejected
// and the caller retries in a later cycle.
package cache

import (
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

const noMSHR = -1

// Config holds cache configuration parameters.
type Config struct {
	// NumSets is the number of sets.
	NumSets int `json:"num_sets"`
	// Associativity is the number of ways per set.
	Associativity int `json:"associativity"`
	// BlockSize is the line size in bytes.
	BlockSize int `json:"block_size"`
	// HitLatency in cycles. Should be at least 1.
	HitLatency uint64 `json:"hit_latency"`
	// MissLatency is the fill (and writeback) time when there is no next
	// level.
	MissLatency uint64 `json:"miss_latency"`
	// NumMSHRs bounds the number of outstanding misses.
	NumMSHRs int `json:"num_mshrs"`
	// MissPorts is the number of misses that can start in one cycle.
	MissPorts int `json:"miss_ports"`
	// MissPortLatency is the number of cycles before a miss port can be
	// reused.
	MissPortLatency uint64 `json:"miss_port_latency"`
}

// DefaultL1IConfig returns the default L1 instruction cache: 64KB, 8-way,
// 64B lines.
func DefaultL1IConfig() Config {
	return Config{
		NumSets:         128,
		Associativity:   8,
		BlockSize:       64,
		HitLatency:      1,
		MissLatency:     100,
		NumMSHRs:        32,
		MissPorts:       1,
		MissPortLatency: 1,
	}
}

// DefaultL1DConfig returns the default L1 data cache: 64KB, 4-way, 64B
// lines.
func DefaultL1DConfig() Config {
	return Config{
		NumSets:         256,
		Associativity:   4,
		BlockSize:       64,
		HitLatency:      1,
		MissLatency:     100,
		NumMSHRs:        64,
		MissPorts:       64,
		MissPortLatency: 1,
	}
}

// DefaultL2Config returns the default unified L2: 256KB, 8-way, 64B lines.
func DefaultL2Config() Config {
	return Config{
		NumSets:         512,
		Associativity:   8,
		BlockSize:       64,
		HitLatency:      10,
		MissLatency:     100,
		NumMSHRs:        64,
		MissPorts:       64,
		MissPortLatency: 1,
	}
}

// Size returns the capacity in bytes.
func (c Config) Size() int {
	return c.NumSets * c.Associativity * c.BlockSize
}

// Validate checks that the configuration describes a buildable cache.
func (c Config) Validate() error {
	if c.NumSets <= 0 {
		return fmt.Errorf("num_sets must be > 0")
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be > 0")
	}
	if c.BlockSize <= 0 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size must be a power of two")
	}
	if c.HitLatency == 0 {
		return fmt.Errorf("hit_latency must be > 0")
	}
	if c.NumMSHRs <= 0 {
		return fmt.Errorf("num_mshrs must be > 0")
	}
	if c.MissPorts <= 0 {
		return fmt.Errorf("miss_ports must be > 0")
	}
	return nil
}

// Request describes one cache access.
type Request struct {
	// Cycle is when the access is made. It may lie in the future, as for
	// fills sent to the next level.
	Cycle uint64
	// Addr is the byte address accessed.
	Addr uint64
	// IsStore marks the line dirty.
	IsStore bool
	// Probe only looks the line up, without changing any state.
	Probe bool
	// NoCommit computes miss timing without replacing a line.
	NoCommit bool
}

// Result is the timing outcome of an accepted access.
type Result struct {
	// Hit is true when the line was present and not filling.
	Hit bool
	// Ready is the cycle at which the access completes.
	Ready uint64
}

// mshr tracks one outstanding line fill.
type mshr struct {
	lineAddr uint64
	resolved uint64
	busy     bool
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Loads            uint64
	Stores           uint64
	Hits             uint64
	Misses           uint64
	PendingHits      uint64 // hits on lines still being filled
	Rejects          uint64 // misses turned away for lack of an MSHR
	Evictions        uint64
	Writebacks       uint64
	NextLevelRejects uint64
}

// Cache is a non-blocking set-associative cache timing model.
type Cache struct {
	config Config

	// Akita cache directory for tag and LRU state
	directory *akitacache.DirectoryImpl

	// Owning MSHR per line, indexed by (setID * associativity + wayID)
	owners []int

	mshrs     []mshr
	portAvail []uint64
	next      *Cache

	stats Statistics
}

// New creates a cache. next is the next level of the hierarchy, or nil if
// this is the last level.
func New(config Config, next *Cache) *Cache {
	c := &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			config.NumSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		owners:    make([]int, config.NumSets*config.Associativity),
		mshrs:     make([]mshr, config.NumMSHRs),
		portAvail: make([]uint64, config.MissPorts),
		next:      next,
	}

	for i := range c.owners {
		c.owners[i] = noMSHR
	}

	return c
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Next returns the next level, or nil.
func (c *Cache) Next() *Cache {
	return c.next
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// blockIndex computes the index into owners for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) lineAddr(addr uint64) uint64 {
	return addr &^ uint64(c.config.BlockSize-1)
}

// Access performs one access and returns when it completes. It returns
// false, without changing any state, when the access misses and no MSHR
// is free; the caller must retry later.
func (c *Cache) Access(req Request) (Result, bool) {
	line := c.lineAddr(req.Addr)
	block := c.directory.Lookup(0, line)

	if req.Probe {
		return Result{Hit: block != nil, Ready: req.Cycle}, true
	}

	if block != nil {
		return c.hit(req, block), true
	}

	return c.miss(req, line)
}

func (c *Cache) count(req Request) {
	if req.IsStore {
		c.stats.Stores++
	} else {
		c.stats.Loads++
	}
}

func (c *Cache) hit(req Request, block *akitacache.Block) Result {
	c.count(req)
	c.directory.Visit(block)

	if req.IsStore {
		block.IsDirty = true
	}

	lineInArray := req.Cycle
	idx := c.blockIndex(block)

	if owner := c.owners[idx]; owner != noMSHR {
		m := &c.mshrs[owner]
		if m.resolved <= req.Cycle {
			c.owners[idx] = noMSHR
			*m = mshr{}
		} else {
			lineInArray = max(m.resolved, req.Cycle+c.config.HitLatency)
		}
	}

	if lineInArray == req.Cycle {
		c.stats.Hits++
	} else {
		c.stats.PendingHits++
	}

	return Result{
		Hit:   lineInArray == req.Cycle,
		Ready: lineInArray + c.config.HitLatency,
	}
}

func (c *Cache) miss(req Request, line uint64) (Result, bool) {
	newMSHR := c.findFreeMSHR(req.Cycle)
	if newMSHR == noMSHR {
		c.stats.Rejects++
		return Result{}, false
	}

	c.count(req)
	c.stats.Misses++

	port := c.findNextPort()
	lineInArray := max(c.portAvail[port], req.Cycle+c.config.HitLatency)

	if !req.NoCommit {
		lineInArray = c.replace(req, line, newMSHR, lineInArray)
	}

	c.portAvail[port] = lineInArray + c.config.MissPortLatency
	lineInArray = c.fetch(lineInArray, req.Addr, false)

	c.mshrs[newMSHR] = mshr{lineAddr: line, resolved: lineInArray, busy: true}

	return Result{Ready: lineInArray + c.config.HitLatency}, true
}

// replace installs line in place of the LRU victim and returns when the
// fill can start: after the victim's own fill and after its writeback.
func (c *Cache) replace(req Request, line uint64, newMSHR int, start uint64) uint64 {
	victim := c.directory.FindVictim(line)
	idx := c.blockIndex(victim)

	if victim.IsValid {
		c.stats.Evictions++

		if owner := c.owners[idx]; owner != noMSHR && c.mshrs[owner].busy {
			start = max(start, c.mshrs[owner].resolved)
		}

		if victim.IsDirty {
			c.stats.Writebacks++
			start = c.fetch(start, victim.Tag, true)
		}
	}

	victim.Tag = line
	victim.IsValid = true
	victim.IsDirty = req.IsStore
	c.owners[idx] = newMSHR
	c.directory.Visit(victim)

	return start
}

// fetch charges one transfer to the next level (or memory) starting at
// cycle and returns when it completes.
func (c *Cache) fetch(cycle, addr uint64, isStore bool) uint64 {
	if c.next == nil {
		return cycle + c.config.MissLatency
	}

	res, ok := c.next.Access(Request{Cycle: cycle, Addr: addr, IsStore: isStore})
	if !ok {
		// The next level has fewer MSHRs than this one. Charge a memory
		// access instead of stalling a fill that is already committed.
		c.stats.NextLevelRejects++
		return cycle + c.config.MissLatency
	}

	return res.Ready
}

// findFreeMSHR returns an MSHR that is unused or whose fill completed
// before cycle. A completed MSHR is detached from its line first.
func (c *Cache) findFreeMSHR(cycle uint64) int {
	for i := range c.mshrs {
		m := &c.mshrs[i]
		if !m.busy {
			return i
		}

		if m.resolved < cycle {
			if block := c.directory.Lookup(0, m.lineAddr); block != nil {
				if idx := c.blockIndex(block); c.owners[idx] == i {
					c.owners[idx] = noMSHR
				}
			}
			*m = mshr{}
			return i
		}
	}

	return noMSHR
}

// findNextPort returns the miss port that frees up soonest.
func (c *Cache) findNextPort() int {
	soonest := 0
	for i := 1; i < len(c.portAvail); i++ {
		if c.portAvail[i] < c.portAvail[soonest] {
			soonest = i
		}
	}
	return soonest
}

// OutstandingMisses returns how many MSHRs hold a fill that has not
// completed by cycle.
func (c *Cache) OutstandingMisses(cycle uint64) int {
	n := 0
	for _, m := range c.mshrs {
		if m.busy && m.resolved >= cycle {
			n++
		}
	}
	return n
}

// Contains reports whether the line holding addr is allocated.
func (c *Cache) Contains(addr uint64) bool {
	return c.directory.Lookup(0, c.lineAddr(addr)) != nil
}

// Reset invalidates all lines, frees all MSHRs and ports, and clears
// statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	for i := range c.owners {
		c.owners[i] = noMSHR
	}
	for i := range c.mshrs {
		c.mshrs[i] = mshr{}
	}
	for i := range c.portAvail {
		c.portAvail[i] = 0
	}
	c.stats = Statistics{}
}
