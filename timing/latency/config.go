package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds execution latencies per functional unit and the
// execution lanes each functional unit is wired to.
type TimingConfig struct {
	// ALULatency is the execution latency of simple integer operations
	// (ADD, SUB, logic, shifts, compares). Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the execution latency of branches and jumps.
	// Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// LoadStoreLatency covers address generation and the L1 data cache
	// hit. Misses add the time reported by the cache. Default: 2 cycles.
	LoadStoreLatency uint64 `json:"load_store_latency"`

	// MultiplyLatency is the latency of integer multiply. Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// DivideLatency is the latency of integer divide. Default: 10 cycles.
	DivideLatency uint64 `json:"divide_latency"`

	// NumLanes is the number of execution lanes. Default: 4.
	NumLanes int `json:"num_lanes"`

	// The lane masks select which lanes each functional unit type may
	// issue to. Bit i stands for lane i.
	BranchLanes    uint64 `json:"branch_lanes"`
	LoadStoreLanes uint64 `json:"load_store_lanes"`
	ALULanes       uint64 `json:"alu_lanes"`
	ComplexLanes   uint64 `json:"complex_lanes"`
}

// DefaultTimingConfig returns a TimingConfig with the default values.
// Lane 0 serves memory, lane 2 the complex unit, and lanes 1 and 3 share
// branches with simple ALU work.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:       1,
		BranchLatency:    1,
		LoadStoreLatency: 2,
		MultiplyLatency:  3,
		DivideLatency:    10,
		NumLanes:         4,
		BranchLanes:      0b1010,
		LoadStoreLanes:   0b0001,
		ALULanes:         0b1110,
		ComplexLanes:     0b0100,
	}
}

// LoadConfig loads a TimingConfig from a JSON file.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latencies are positive and that every
// functional unit can reach at least one existing lane.
func (c *TimingConfig) Validate() error {
	if c.ALULatency == 0 {
		return fmt.Errorf("alu_latency must be > 0")
	}
	if c.BranchLatency == 0 {
		return fmt.Errorf("branch_latency must be > 0")
	}
	if c.LoadStoreLatency == 0 {
		return fmt.Errorf("load_store_latency must be > 0")
	}
	if c.MultiplyLatency == 0 {
		return fmt.Errorf("multiply_latency must be > 0")
	}
	if c.DivideLatency == 0 {
		return fmt.Errorf("divide_latency must be > 0")
	}
	if c.NumLanes <= 0 || c.NumLanes > 64 {
		return fmt.Errorf("num_lanes must be in [1, 64]")
	}

	masks := []struct {
		name string
		mask uint64
	}{
		{"branch_lanes", c.BranchLanes},
		{"load_store_lanes", c.LoadStoreLanes},
		{"alu_lanes", c.ALULanes},
		{"complex_lanes", c.ComplexLanes},
	}
	for _, m := range masks {
		if m.mask&c.allLanes() == 0 {
			return fmt.Errorf("%s selects no lane below num_lanes", m.name)
		}
	}

	return nil
}

func (c *TimingConfig) allLanes() uint64 {
	if c.NumLanes >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<c.NumLanes - 1
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
