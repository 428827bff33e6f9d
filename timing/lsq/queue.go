package lsq

import "log"

// Index is a position in the load or store queue. Phase flips every time
// the position wraps around, which distinguishes a full queue from an
// empty one.
type Index struct {
	Pos   int
	Phase bool
}

type entry struct {
	valid  bool
	signed bool
	atomic bool
	size   int

	addrAvail  bool
	addr       uint64
	valueAvail bool
	value      uint64
	fault      error

	missed    bool
	missReady uint64
	// retry is set when the data cache had no MSHR for the load.
	retry bool

	alIndex int
	pc      uint64
	// boundary is the SQ tail at dispatch for a load and the LQ tail at
	// dispatch for a store.
	boundary Index
	mdpStall bool

	stalledDisambig bool
	stalledMiss     bool
	forwarded       bool
}

func (e *entry) result() LoadResult {
	return LoadResult{
		ALIndex: e.alIndex,
		Value:   e.value,
		Ready:   e.valueAvail,
		Fault:   e.fault,
	}
}

type queue struct {
	entries []entry
	head    Index
	tail    Index
	length  int
}

func newQueue(size int) *queue {
	return &queue{entries: make([]entry, size)}
}

func (q *queue) size() int {
	return len(q.entries)
}

func (q *queue) next(i Index) Index {
	i.Pos++
	if i.Pos == q.size() {
		i.Pos = 0
		i.Phase = !i.Phase
	}
	return i
}

func (q *queue) prev(i Index) Index {
	if i.Pos == 0 {
		i.Pos = q.size()
		i.Phase = !i.Phase
	}
	i.Pos--
	return i
}

func (q *queue) at(i Index) *entry {
	e := &q.entries[i.Pos]
	if !e.valid {
		log.Panicf("lsq: access to free entry %d", i.Pos)
	}
	return e
}

func (q *queue) push(e entry) {
	if q.length == q.size() {
		log.Panicf("lsq: dispatch into a full queue")
	}

	q.entries[q.tail.Pos] = e
	q.tail = q.next(q.tail)
	q.length++
}

func (q *queue) pop() entry {
	if q.length == 0 {
		log.Panicf("lsq: commit from an empty queue")
	}

	e := q.entries[q.head.Pos]
	q.entries[q.head.Pos].valid = false
	q.head = q.next(q.head)
	q.length--

	return e
}

// restore rolls the tail back and invalidates everything outside
// [head, tail).
func (q *queue) restore(tail Index) {
	q.tail = tail

	q.length = (q.size() + tail.Pos - q.head.Pos) % q.size()
	if q.length == 0 && tail.Phase != q.head.Phase {
		q.length = q.size()
	}

	for i := range q.entries {
		q.entries[i].valid = false
	}
	for i, j := 0, q.head; i < q.length; i, j = i+1, q.next(j) {
		q.entries[j.Pos].valid = true
	}
}

func (q *queue) flush() {
	for i := range q.entries {
		q.entries[i] = entry{}
	}
	q.head = Index{}
	q.tail = Index{}
	q.length = 0
}
