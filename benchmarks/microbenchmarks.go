package benchmarks

import (
	"fmt"
	"strings"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks. Each one
// targets a specific core characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchAlternating(),
		storeForwarding(),
		memoryOrdering(),
		matrixMultiply2x2(),
		atomicIncrement(),
		divideChain(),
		serialization(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick
// validation: a loop, a matrix multiply and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		memorySequential(),
		matrixMultiply2x2(),
		branchAlternating(),
	}
}

func arithmeticSequential() Benchmark {
	var b strings.Builder
	for i := 0; i < 4; i++ {
		for r := 1; r <= 5; r++ {
			fmt.Fprintf(&b, "addi x%d, x%d, 1\n", r, r)
		}
	}
	b.WriteString("halt\n")

	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "20 independent adds over 5 registers - measures ALU throughput",
		Source:      b.String(),
		ResultReg:   1,
		Expected:    4,
	}
}

func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "20 dependent adds - measures wakeup to issue latency",
		Source:      strings.Repeat("addi x1, x1, 1\n", 20) + "halt\n",
		ResultReg:   1,
		Expected:    20,
	}
}

func memorySequential() Benchmark {
	return Benchmark{
		Name:        "memory_sequential",
		Description: "Load, double and store an 8-element array - measures data cache streaming",
		Source: `
			.dword 0x2000 1, 2, 3, 4, 5, 6, 7, 8
			li x10, 0x2000
			li x11, 0x2040
			li x5, 0
		loop:
			ld x6, 0(x10)
			add x6, x6, x6
			sd x6, 64(x10)
			add x5, x5, x6
			addi x10, x10, 8
			blt x10, x11, loop
			halt
		`,
		ResultReg: 5,
		Expected:  72,
	}
}

func functionCalls() Benchmark {
	return Benchmark{
		Name:        "function_calls",
		Description: "5 calls and returns through jal/jalr - measures indirect redirects",
		Source: `
			li x1, 0
			li x2, 5
		loop:
			jal x5, inc
			addi x2, x2, -1
			bne x2, x0, loop
			halt
		inc:
			addi x1, x1, 3
			jalr x0, 0(x5)
		`,
		ResultReg: 1,
		Expected:  15,
	}
}

func branchAlternating() Benchmark {
	return Benchmark{
		Name:        "branch_alternating",
		Description: "Loop with a branch that alternates direction - measures misprediction recovery",
		Source: `
			li x1, 0
			li x2, 16
			li x3, 0
			li x7, 1
		loop:
			and x4, x1, x7
			beq x4, x0, even
			addi x3, x3, 1
		even:
			addi x1, x1, 1
			blt x1, x2, loop
			halt
		`,
		ResultReg: 3,
		Expected:  8,
	}
}

func storeForwarding() Benchmark {
	return Benchmark{
		Name:        "store_forwarding",
		Description: "Store then reload the same word behind a divide that holds the store uncommitted - measures store-to-load forwarding",
		Source: `
			li x10, 0x2000
			li x1, 0
			li x2, 10
			li x8, 7
			li x9, 100
		loop:
			div x7, x9, x8
			sd x1, 0(x10)
			ld x3, 0(x10)
			addi x1, x3, 1
			blt x1, x2, loop
			halt
		`,
		ResultReg: 1,
		Expected:  10,
	}
}

func memoryOrdering() Benchmark {
	return Benchmark{
		Name:        "memory_ordering",
		Description: "A load passes a store whose address resolves late - measures violation recovery",
		Source: `
			.dword 0x2000 5
			li x10, 0x2000
			li x1, 42
			ld x7, 0(x10)
			mul x8, x7, x0
			add x6, x10, x8
			sd x1, 0(x6)
			ld x2, 0(x10)
			addi x3, x2, 1
			halt
		`,
		ResultReg: 3,
		Expected:  43,
	}
}

func matrixMultiply2x2() Benchmark {
	return Benchmark{
		Name:        "matrix_multiply_2x2",
		Description: "2x2 matrix multiply - measures multiplier throughput and load parallelism",
		Source: `
			.dword 0x2000 1, 2, 3, 4
			.dword 0x2020 5, 6, 7, 8
			li x10, 0x2000
			li x11, 0x2020
			li x12, 0x2040
			ld x1, 0(x10)
			ld x2, 8(x10)
			ld x3, 16(x10)
			ld x4, 24(x10)
			ld x5, 0(x11)
			ld x6, 8(x11)
			ld x7, 16(x11)
			ld x8, 24(x11)
			mul x13, x1, x5
			mul x14, x2, x7
			add x13, x13, x14
			sd x13, 0(x12)
			mul x13, x1, x6
			mul x14, x2, x8
			add x13, x13, x14
			sd x13, 8(x12)
			mul x13, x3, x5
			mul x14, x4, x7
			add x13, x13, x14
			sd x13, 16(x12)
			mul x13, x3, x6
			mul x14, x4, x8
			add x15, x13, x14
			sd x15, 24(x12)
			halt
		`,
		ResultReg: 15,
		Expected:  50,
	}
}

func atomicIncrement() Benchmark {
	return Benchmark{
		Name:        "atomic_increment",
		Description: "8 load-reserved/store-conditional increments - measures atomic commit latency",
		Source: `
			.dword 0x2000 0
			li x10, 0x2000
			li x2, 8
		loop:
			lr.d x1, 0(x10)
			addi x1, x1, 1
			sc.d x3, x1, (x10)
			bne x3, x0, loop
			addi x2, x2, -1
			bne x2, x0, loop
			ld x5, 0(x10)
			halt
		`,
		ResultReg: 5,
		Expected:  8,
	}
}

func divideChain() Benchmark {
	return Benchmark{
		Name:        "divide_chain",
		Description: "5 dependent divides - measures long-latency execution",
		Source: `
			li x1, 100000
			li x2, 3
			div x1, x1, x2
			div x1, x1, x2
			div x1, x1, x2
			div x1, x1, x2
			div x1, x1, x2
			halt
		`,
		ResultReg: 1,
		Expected:  411,
	}
}

func serialization() Benchmark {
	return Benchmark{
		Name:        "serialization",
		Description: "A fence in every loop iteration - measures the cost of draining the core",
		Source: `
			li x1, 0
			li x2, 4
		loop:
			addi x1, x1, 1
			fence
			blt x1, x2, loop
			halt
		`,
		ResultReg: 1,
		Expected:  4,
	}
}
