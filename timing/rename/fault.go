package rename

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Fault is a set of sticky fault bits posted on an Active List entry.
type Fault uint8

// Faults. An entry may carry several at once.
const (
	Exception Fault = 1 << iota
	LoadViolation
	BranchMisprediction
	ValueMisprediction
)

const allFaults = Exception | LoadViolation | BranchMisprediction | ValueMisprediction

// DefaultFaultOrder is the resolution priority used when an entry carries
// more than one fault.
var DefaultFaultOrder = []Fault{
	Exception,
	LoadViolation,
	BranchMisprediction,
	ValueMisprediction,
}

var faultNames = []struct {
	f    Fault
	name string
}{
	{Exception, "exception"},
	{LoadViolation, "load-violation"},
	{BranchMisprediction, "branch-misprediction"},
	{ValueMisprediction, "value-misprediction"},
}

func (f Fault) String() string {
	if f == 0 {
		return "none"
	}

	var names []string
	for _, n := range faultNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// MarshalJSON writes the fault by name.
func (f Fault) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON reads a single fault name.
func (f *Fault) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for _, n := range faultNames {
		if n.name == s {
			*f = n.f
			return nil
		}
	}

	return fmt.Errorf("unknown fault %q", s)
}
