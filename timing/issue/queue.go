// Package issue implements the issue queue of the out-of-order core.
//
// Dispatched instructions wait in the queue until every source operand has
// been woken up by a tag broadcast; each cycle the queue then selects ready
// instructions for free execution lanes. Entries live in a flat array with
// their own free list. Selection order is either strict age (a doubly-linked
// list threaded through the array by index) or a round-robin scan whose
// starting partition rotates every cycle.
package issue

import (
	"fmt"
	"log"
	"math/bits"
)

// NumSources is the number of source operands per entry.
const NumSources = 3

const none = -1

// Policy selects the scan order used by SelectAndIssue.
type Policy string

// Scan orders.
const (
	AgeOrdered  Policy = "age"
	Partitioned Policy = "partitioned"
)

// Config holds issue queue configuration.
type Config struct {
	Size          int    `json:"size"`
	NumPartitions int    `json:"num_partitions"`
	Policy        Policy `json:"policy"`
}

// DefaultConfig returns the default issue queue configuration.
func DefaultConfig() Config {
	return Config{
		Size:          32,
		NumPartitions: 4,
		Policy:        AgeOrdered,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("size must be > 0")
	}
	if c.NumPartitions <= 0 || c.Size%c.NumPartitions != 0 {
		return fmt.Errorf("size must be a multiple of num_partitions")
	}
	if c.Policy != AgeOrdered && c.Policy != Partitioned {
		return fmt.Errorf("unknown policy %q", c.Policy)
	}
	return nil
}

// Operand is the dispatch-time state of one source operand.
type Operand struct {
	Valid bool
	Ready bool
	Tag   int
}

// Entry is an instruction waiting in the queue.
type Entry struct {
	// Payload identifies the instruction, usually its Active List index.
	Payload int
	// BranchMask has one bit per unresolved branch the instruction
	// depends on.
	BranchMask uint64
	// Lanes is the set of execution lanes the instruction may issue to.
	Lanes uint64
	Src   [NumSources]Operand
}

func (e *Entry) ready() bool {
	for _, s := range e.Src {
		if s.Valid && !s.Ready {
			return false
		}
	}
	return true
}

// Grant is one instruction issued to one lane.
type Grant struct {
	Lane       int
	Payload    int
	BranchMask uint64
}

type slot struct {
	Entry
	valid bool
	prev  int
	next  int
}

// Statistics holds issue queue statistics.
type Statistics struct {
	Dispatched  uint64
	Issued      uint64
	IssueCycles uint64
	Broadcasts  uint64
	Squashed    uint64
}

// Queue is the issue queue.
type Queue struct {
	config Config
	slots  []slot
	length int

	freeList   []int
	freeHead   int
	freeTail   int
	freeLength int

	oldest   int
	youngest int

	partSize int
	partNext int

	stats Statistics
}

// New creates an empty issue queue.
func New(config Config) *Queue {
	if err := config.Validate(); err != nil {
		log.Panicf("issue: invalid config: %v", err)
	}

	q := &Queue{
		config:   config,
		slots:    make([]slot, config.Size),
		freeList: make([]int, config.Size),
		partSize: config.Size / config.NumPartitions,
	}
	q.Flush()

	return q
}

// Config returns the queue configuration.
func (q *Queue) Config() Config {
	return q.config
}

// Stats returns issue queue statistics.
func (q *Queue) Stats() Statistics {
	return q.stats
}

// Len returns the number of waiting instructions.
func (q *Queue) Len() int {
	return q.length
}

// Stall reports whether fewer than n entries are free.
func (q *Queue) Stall(n int) bool {
	return q.freeLength < n
}

// Dispatch inserts an instruction and returns the slot it occupies. The
// caller must have checked Stall.
func (q *Queue) Dispatch(e Entry) int {
	if q.freeLength == 0 {
		log.Panicf("issue: dispatch into a full queue")
	}

	i := q.freeList[q.freeHead]
	q.freeHead = (q.freeHead + 1) % len(q.freeList)
	q.freeLength--

	s := &q.slots[i]
	if s.valid {
		log.Panicf("issue: free slot %d is in use", i)
	}

	*s = slot{Entry: e, valid: true, prev: q.youngest, next: none}
	if q.youngest == none {
		q.oldest = i
	} else {
		q.slots[q.youngest].next = i
	}
	q.youngest = i

	q.length++
	q.stats.Dispatched++

	return i
}

// Wakeup marks every source waiting on tag as ready. A tag is broadcast
// once per producer, so a matching source that is already ready means the
// caller broadcast twice; that panics.
func (q *Queue) Wakeup(tag int) {
	q.stats.Broadcasts++

	for i := range q.slots {
		s := &q.slots[i]
		if !s.valid {
			continue
		}

		for j := range s.Src {
			src := &s.Src[j]
			if !src.Valid || src.Tag != tag {
				continue
			}
			if src.Ready {
				log.Panicf("issue: tag %d broadcast to a ready operand", tag)
			}
			src.Ready = true
		}
	}
}

// SelectAndIssue issues ready instructions into the free lanes given as a
// bitmask, at most one instruction per lane, and removes them from the
// queue.
func (q *Queue) SelectAndIssue(freeLanes uint64) []Grant {
	var grants []Grant

	if q.config.Policy == AgeOrdered {
		for i := q.oldest; i != none && freeLanes != 0; {
			next := q.slots[i].next
			if lane, ok := q.trySelect(i, freeLanes); ok {
				grants = append(grants, q.issue(i, lane))
				freeLanes &^= uint64(1) << lane
			}
			i = next
		}
	} else {
		i := q.partNext
		for j := 0; j < len(q.slots) && freeLanes != 0; j++ {
			if lane, ok := q.trySelect(i, freeLanes); ok {
				grants = append(grants, q.issue(i, lane))
				freeLanes &^= uint64(1) << lane
			}
			i = (i + 1) % len(q.slots)
		}

		q.partNext = (q.partNext + q.partSize) % len(q.slots)
	}

	if len(grants) > 0 {
		q.stats.IssueCycles++
	}

	return grants
}

// trySelect returns the lowest free lane the entry in slot i may use, if
// the entry is ready.
func (q *Queue) trySelect(i int, freeLanes uint64) (int, bool) {
	s := &q.slots[i]
	if !s.valid || !s.ready() {
		return 0, false
	}

	candidates := s.Lanes & freeLanes
	if candidates == 0 {
		return 0, false
	}

	return bits.TrailingZeros64(candidates), true
}

func (q *Queue) issue(i, lane int) Grant {
	s := &q.slots[i]
	g := Grant{Lane: lane, Payload: s.Payload, BranchMask: s.BranchMask}

	q.remove(i)
	q.stats.Issued++

	return g
}

func (q *Queue) remove(i int) {
	s := &q.slots[i]
	if !s.valid {
		log.Panicf("issue: removing free slot %d", i)
	}
	s.valid = false
	q.length--

	q.freeList[q.freeTail] = i
	q.freeTail = (q.freeTail + 1) % len(q.freeList)
	q.freeLength++

	if s.prev == none {
		q.oldest = s.next
	} else {
		q.slots[s.prev].next = s.next
	}

	if s.next == none {
		q.youngest = s.prev
	} else {
		q.slots[s.next].prev = s.prev
	}
}

// Squash removes every instruction that depends on branchID.
func (q *Queue) Squash(branchID int) {
	bit := uint64(1) << branchID
	for i := range q.slots {
		if q.slots[i].valid && q.slots[i].BranchMask&bit != 0 {
			q.remove(i)
			q.stats.Squashed++
		}
	}
}

// ClearBranchBit drops the dependency on a correctly predicted branch.
func (q *Queue) ClearBranchBit(branchID int) {
	bit := uint64(1) << branchID
	for i := range q.slots {
		q.slots[i].BranchMask &^= bit
	}
}

// Flush empties the queue.
func (q *Queue) Flush() {
	for i := range q.slots {
		q.slots[i] = slot{}
		q.freeList[i] = i
	}

	q.length = 0
	q.freeHead = 0
	q.freeTail = 0
	q.freeLength = len(q.slots)
	q.oldest = none
	q.youngest = none
	q.partNext = 0
}

// Entries returns the waiting instructions, oldest first.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, 0, q.length)
	for i := q.oldest; i != none; i = q.slots[i].next {
		out = append(out, q.slots[i].Entry)
	}
	return out
}
