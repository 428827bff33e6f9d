// Package latency provides the execution latency and lane affinity of
// each instruction class.
//
// The values can be configured via TimingConfig.
package latency

import (
	"github.com/sarchlab/ooosim/insts"
)

// Table provides instruction latency and lane lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given
// instruction. Instructions that need no functional unit take one cycle.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Op {
	case insts.OpMUL:
		return t.config.MultiplyLatency
	case insts.OpDIV:
		return t.config.DivideLatency
	}

	switch inst.FU() {
	case insts.FUBranch:
		return t.config.BranchLatency
	case insts.FULoadStore:
		return t.config.LoadStoreLatency
	case insts.FUSimple:
		return t.config.ALULatency
	default:
		return 1
	}
}

// LaneMask returns the lanes a functional unit type may issue to,
// restricted to the configured number of lanes.
func (t *Table) LaneMask(fu insts.FUType) uint64 {
	var mask uint64

	switch fu {
	case insts.FUBranch:
		mask = t.config.BranchLanes
	case insts.FULoadStore:
		mask = t.config.LoadStoreLanes
	case insts.FUSimple:
		mask = t.config.ALULanes
	case insts.FUComplex:
		mask = t.config.ComplexLanes
	}

	return mask & t.config.allLanes()
}

// NumLanes returns the number of execution lanes.
func (t *Table) NumLanes() int {
	return t.config.NumLanes
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
