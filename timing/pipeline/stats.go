package pipeline

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Fetched is the number of instructions fetched, wrong path included.
	Fetched uint64
	// Dispatched is the number of instructions renamed and dispatched.
	Dispatched uint64
	// Issued is the number of instructions sent to execution lanes.
	Issued uint64

	// FetchStalls counts cycles fetch waited on the instruction cache.
	FetchStalls uint64
	// The dispatch stall counters record which resource blocked a bundle.
	// A cycle may count against several resources.
	RegStalls    uint64
	BranchStalls uint64
	ALStalls     uint64
	IQStalls     uint64
	LSQStalls    uint64

	// Branches is the number of branches resolved, wrong path included.
	Branches uint64
	// BranchMispredictions is the number of mispredicted branches.
	BranchMispredictions uint64
	// LoadViolations is the number of loads refetched after a memory
	// ordering violation.
	LoadViolations uint64
	// Exceptions is the number of exceptions taken at retirement.
	Exceptions uint64
	// Squashes is the number of full pipeline squashes.
	Squashes uint64
	// Serializations is the number of serializing instructions retired.
	Serializations uint64
	// AtomicFailures is the number of store-conditionals that failed.
	AtomicFailures uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// IPC returns the instructions per cycle.
func (s Statistics) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Instructions) / float64(s.Cycles)
}
