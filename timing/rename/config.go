package rename

import "fmt"

// MaxCheckpoints is the largest supported number of outstanding branch
// checkpoints; the live set is kept in a 64-bit mask.
const MaxCheckpoints = 64

// Config holds renamer sizing.
type Config struct {
	// NumLogicalRegs is the number of architectural registers.
	NumLogicalRegs int `json:"num_logical_regs"`
	// ActiveListSize is the reorder buffer capacity. The physical register
	// file holds NumLogicalRegs + ActiveListSize registers.
	ActiveListSize int `json:"active_list_size"`
	// MaxBranches bounds the number of unresolved branch checkpoints.
	MaxBranches int `json:"max_branches"`
	// FaultOrder decides which fault is acted on when an entry carries
	// several. It lists every fault exactly once. Empty means
	// DefaultFaultOrder.
	FaultOrder []Fault `json:"fault_order,omitempty"`
}

// DefaultConfig returns the default renamer configuration.
func DefaultConfig() Config {
	return Config{
		NumLogicalRegs: 32,
		ActiveListSize: 128,
		MaxBranches:    16,
	}
}

// NumPhysRegs returns the size of the physical register file.
func (c Config) NumPhysRegs() int {
	return c.NumLogicalRegs + c.ActiveListSize
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NumLogicalRegs <= 0 {
		return fmt.Errorf("num_logical_regs must be > 0")
	}
	if c.ActiveListSize <= 0 {
		return fmt.Errorf("active_list_size must be > 0")
	}
	if c.MaxBranches <= 0 || c.MaxBranches > MaxCheckpoints {
		return fmt.Errorf("max_branches must be in 1..%d", MaxCheckpoints)
	}

	var seen Fault
	for _, f := range c.FaultOrder {
		if f == 0 || f&(f-1) != 0 || f > ValueMisprediction {
			return fmt.Errorf("fault_order: %v is not a single fault", f)
		}
		if seen&f != 0 {
			return fmt.Errorf("fault_order: %v listed twice", f)
		}
		seen |= f
	}
	if len(c.FaultOrder) > 0 && seen != allFaults {
		return fmt.Errorf("fault_order: %v missing", allFaults&^seen)
	}

	return nil
}
