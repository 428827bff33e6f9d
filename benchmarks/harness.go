// Package benchmarks runs microbenchmark kernels on the timing core and
// reports their timing characteristics.
package benchmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shirou/gopsutil/process"

	"github.com/sarchlab/ooosim/emu"
	"github.com/sarchlab/ooosim/loader"
	"github.com/sarchlab/ooosim/timing/core"
	"github.com/sarchlab/ooosim/timing/pipeline"
)

// ErrMismatch is returned when the timing core and the reference emulator
// disagree on the final state of a benchmark.
var ErrMismatch = errors.New("timing core disagrees with the emulator")

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	SimulatedCycles     uint64  `json:"simulated_cycles"`
	InstructionsRetired uint64  `json:"instructions_retired"`
	CPI                 float64 `json:"cpi"`

	Branches             uint64 `json:"branches"`
	BranchMispredictions uint64 `json:"branch_mispredictions"`
	LoadViolations       uint64 `json:"load_violations"`
	Squashes             uint64 `json:"squashes"`
	Forwards             uint64 `json:"forwards"`

	ICacheMisses uint64 `json:"icache_misses"`
	DCacheMisses uint64 `json:"dcache_misses"`

	// Result is the final value of the benchmark's result register.
	Result uint64 `json:"result"`
	// Verified is set when the final state matched the emulator.
	Verified bool `json:"verified"`

	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	Name        string
	Description string

	// Source is the assembly program, data directives included.
	Source string

	// ResultReg holds the value checked against Expected. Zero disables
	// the check.
	ResultReg int
	Expected  uint64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Core is the core configuration every benchmark runs on.
	Core *pipeline.Config

	// Verify runs every benchmark on the emulator as well and compares
	// the final registers and memory.
	Verify bool

	// MaxCycles bounds each run. Zero means no limit.
	MaxCycles uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Core:      pipeline.DefaultConfig(),
		Verify:    true,
		MaxCycles: 1_000_000,
		Output:    os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Core == nil {
		config.Core = pipeline.DefaultConfig()
	}

	return &Harness{config: config}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks. It stops at the first benchmark that
// fails and returns the results collected so far.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, fmt.Errorf("benchmark %s: %w", bench.Name, err)
		}
		results = append(results, result)
	}

	return results, nil
}

func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	prog, err := loader.Parse(strings.NewReader(bench.Source))
	if err != nil {
		return BenchmarkResult{}, err
	}

	c := core.NewCore(prog,
		pipeline.WithConfig(h.config.Core.Clone()),
		pipeline.WithMaxCycles(h.config.MaxCycles),
	)

	start := time.Now()
	if err := c.Run(); err != nil {
		return BenchmarkResult{}, err
	}
	wallTime := time.Since(start)

	stats := c.Stats()
	pipeStats := c.Pipeline.Stats()
	rf := c.RegFile()

	result := BenchmarkResult{
		Name:                 bench.Name,
		Description:          bench.Description,
		SimulatedCycles:      stats.Cycles,
		InstructionsRetired:  stats.Instructions,
		CPI:                  stats.CPI,
		Branches:             pipeStats.Branches,
		BranchMispredictions: stats.BranchMispredictions,
		LoadViolations:       stats.LoadViolations,
		Squashes:             stats.Squashes,
		Forwards:             stats.Forwards,
		ICacheMisses:         stats.L1IMisses,
		DCacheMisses:         stats.L1DMisses,
		Result:               rf.X[bench.ResultReg],
		WallTime:             wallTime,
	}

	if bench.ResultReg != 0 && result.Result != bench.Expected {
		return result, fmt.Errorf("x%d = %d, expected %d",
			bench.ResultReg, result.Result, bench.Expected)
	}

	if h.config.Verify {
		if err := verify(prog, c); err != nil {
			return result, err
		}
		result.Verified = true
	}

	return result, nil
}

// verify replays the program on the emulator and compares the committed
// state of the core against it.
func verify(prog *loader.Program, c *core.Core) error {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	ref := emu.NewEmulator(prog.Code, memory)
	if err := ref.Run(); err != nil {
		return fmt.Errorf("emulator: %w", err)
	}

	switch {
	case *ref.RegFile() != *c.RegFile():
		return fmt.Errorf("%w: registers differ", ErrMismatch)
	case !ref.Memory().Equal(c.Memory()):
		return fmt.Errorf("%w: memory differs", ErrMismatch)
	case ref.InstructionCount() != c.Stats().Instructions:
		return fmt.Errorf("%w: retired %d instructions, emulator executed %d",
			ErrMismatch, c.Stats().Instructions, ref.InstructionCount())
	}

	return nil
}

func (h *Harness) resultTable(results []BenchmarkResult) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"Benchmark", "Cycles", "Insts", "CPI", "Branches", "Mispredicts",
		"Violations", "Squashes", "Forwards", "L1I Misses", "L1D Misses",
		"Result", "Verified",
	})

	for _, r := range results {
		t.AppendRow(table.Row{
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			fmt.Sprintf("%.3f", r.CPI),
			r.Branches,
			r.BranchMispredictions,
			r.LoadViolations,
			r.Squashes,
			r.Forwards,
			r.ICacheMisses,
			r.DCacheMisses,
			r.Result,
			r.Verified,
		})
	}

	return t
}

// PrintResults outputs benchmark results as a table.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	t := h.resultTable(results)
	t.SetTitle("ooosim microbenchmarks")
	_, _ = fmt.Fprintln(h.config.Output, t.Render())
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, h.resultTable(results).RenderCSV())
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	Metadata ReportMetadata    `json:"metadata"`
	Results  []BenchmarkResult `json:"results"`
	Summary  ReportSummary     `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	Timestamp string           `json:"timestamp"`
	Config    *pipeline.Config `json:"config"`
	Host      HostUsage        `json:"host"`
}

// HostUsage is the resource usage of the simulator process.
type HostUsage struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

// MeasureHost samples the resource usage of the current process. Fields
// that cannot be sampled are left at zero.
func MeasureHost() HostUsage {
	var usage HostUsage

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.Warn("failed to inspect simulator process", "err", err)
		return usage
	}

	if cpu, err := proc.CPUPercent(); err == nil {
		usage.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		usage.MemorySize = mem.RSS
	}

	return usage
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	TotalCycles       uint64        `json:"total_cycles"`
	TotalInstructions uint64        `json:"total_instructions"`
	AverageCPI        float64       `json:"average_cpi"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime
	}

	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}

	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config:    h.config.Core,
			Host:      MeasureHost(),
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
