package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/insts"
	"github.com/sarchlab/ooosim/timing/core"
)

func statsTable(program string, c *core.Core) string {
	s := c.Stats()
	p := c.Pipeline.Stats()

	t := table.NewWriter()
	t.SetTitle(program)
	t.AppendHeader(table.Row{"Statistic", "Value"})
	t.AppendRows([]table.Row{
		{"Cycles", s.Cycles},
		{"Instructions", s.Instructions},
		{"CPI", fmt.Sprintf("%.3f", s.CPI)},
		{"IPC", fmt.Sprintf("%.3f", p.IPC())},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Fetched", p.Fetched},
		{"Dispatched", p.Dispatched},
		{"Issued", p.Issued},
		{"Branch mispredictions", s.BranchMispredictions},
		{"Load violations", s.LoadViolations},
		{"Exceptions", s.Exceptions},
		{"Squashes", s.Squashes},
		{"Store-conditional failures", p.AtomicFailures},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Fetch stalls", p.FetchStalls},
		{"Register stalls", p.RegStalls},
		{"Checkpoint stalls", p.BranchStalls},
		{"Active List stalls", p.ALStalls},
		{"Issue queue stalls", p.IQStalls},
		{"LSQ stalls", p.LSQStalls},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Store forwards", s.Forwards},
		{"L1I misses", s.L1IMisses},
		{"L1D misses", s.L1DMisses},
		{"L2 misses", s.L2Misses},
	})

	return t.Render()
}

// regTable lists the non-zero registers.
func regTable(rf *emu.RegFile) string {
	t := table.NewWriter()
	t.SetTitle("Registers")
	t.AppendHeader(table.Row{"Reg", "Hex", "Signed"})

	for i := 1; i < insts.NumRegs; i++ {
		if rf.X[i] == 0 {
			continue
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("x%d", i),
			fmt.Sprintf("%#x", rf.X[i]),
			int64(rf.X[i]),
		})
	}
	t.AppendFooter(table.Row{"PC", fmt.Sprintf("%#x", rf.PC), ""})

	return t.Render()
}
