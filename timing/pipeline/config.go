package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/ooosim/insts"
	"github.com/sarchlab/ooosim/timing/cache"
	"github.com/sarchlab/ooosim/timing/issue"
	"github.com/sarchlab/ooosim/timing/latency"
	"github.com/sarchlab/ooosim/timing/lsq"
	"github.com/sarchlab/ooosim/timing/rename"
)

// Config holds the configuration of the whole core.
type Config struct {
	// FetchWidth is the maximum number of instructions fetched per cycle.
	FetchWidth int `json:"fetch_width"`
	// DispatchWidth is the maximum number of instructions renamed and
	// dispatched per cycle.
	DispatchWidth int `json:"dispatch_width"`
	// RetireWidth is the maximum number of instructions committed per cycle.
	RetireWidth int `json:"retire_width"`
	// FetchQueueSize is the capacity of the queue between fetch and
	// dispatch.
	FetchQueueSize int `json:"fetch_queue_size"`

	// EarlyBranchRecovery recovers mispredicted branches at writeback
	// through their checkpoint. When false the branch posts a fault and
	// the core recovers once it reaches the head of the Active List.
	EarlyBranchRecovery bool `json:"early_branch_recovery"`

	// Presteer binds every instruction to a single lane at dispatch
	// instead of letting the issue queue pick any lane of its unit.
	Presteer bool `json:"presteer"`

	Rename     rename.Config `json:"rename"`
	IssueQueue issue.Config  `json:"issue_queue"`
	LSQ        lsq.Config    `json:"lsq"`

	L1I cache.Config `json:"l1i"`
	L1D cache.Config `json:"l1d"`
	// L2 is shared by both L1 caches. Nil disables it.
	L2 *cache.Config `json:"l2"`

	Timing *latency.TimingConfig `json:"timing"`
}

// DefaultConfig returns the default 4-wide configuration.
func DefaultConfig() *Config {
	l2 := cache.DefaultL2Config()

	return &Config{
		FetchWidth:          4,
		DispatchWidth:       4,
		RetireWidth:         4,
		FetchQueueSize:      32,
		EarlyBranchRecovery: true,
		Rename:              rename.DefaultConfig(),
		IssueQueue:          issue.DefaultConfig(),
		LSQ:                 lsq.DefaultConfig(),
		L1I:                 cache.DefaultL1IConfig(),
		L1D:                 cache.DefaultL1DConfig(),
		L2:                  &l2,
		Timing:              latency.DefaultTimingConfig(),
	}
}

// LoadConfig loads a Config from a JSON file. Fields missing from the
// file keep their default values; "l2": null disables the L2.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read core config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse core config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize core config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write core config file: %w", err)
	}

	return nil
}

// Validate checks the configuration and every nested configuration.
func (c *Config) Validate() error {
	if c.FetchWidth <= 0 {
		return fmt.Errorf("fetch_width must be > 0")
	}
	if c.DispatchWidth <= 0 {
		return fmt.Errorf("dispatch_width must be > 0")
	}
	if c.RetireWidth <= 0 {
		return fmt.Errorf("retire_width must be > 0")
	}
	if c.FetchQueueSize <= 0 {
		return fmt.Errorf("fetch_queue_size must be > 0")
	}
	if c.Timing == nil {
		return fmt.Errorf("timing must be set")
	}
	if c.Rename.NumLogicalRegs != insts.NumRegs {
		return fmt.Errorf("rename: num_logical_regs must be %d", insts.NumRegs)
	}

	checks := []struct {
		name string
		err  error
	}{
		{"rename", c.Rename.Validate()},
		{"issue_queue", c.IssueQueue.Validate()},
		{"lsq", c.LSQ.Validate()},
		{"l1i", c.L1I.Validate()},
		{"l1d", c.L1D.Validate()},
		{"timing", c.Timing.Validate()},
	}
	if c.L2 != nil {
		checks = append(checks, struct {
			name string
			err  error
		}{"l2", c.L2.Validate()})
	}

	for _, check := range checks {
		if check.err != nil {
			return fmt.Errorf("%s: %w", check.name, check.err)
		}
	}

	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c

	clone.Rename.FaultOrder = append([]rename.Fault(nil), c.Rename.FaultOrder...)
	if c.L2 != nil {
		l2 := *c.L2
		clone.L2 = &l2
	}
	if c.Timing != nil {
		clone.Timing = c.Timing.Clone()
	}

	return &clone
}
