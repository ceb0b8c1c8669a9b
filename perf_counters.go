package guda

import (
	"fmt"
	"strings"
	"time"
)

// PerfCounters holds hardware counter readings for one measured region.
// Counters the platform could not provide are left at zero.
type PerfCounters struct {
	Duration time.Duration

	Cycles         uint64
	Instructions   uint64
	BranchMisses   uint64
	CacheMisses    uint64
	L1DCacheMisses uint64

	// Threads is the number of OS threads the counters were attached to.
	Threads int

	// Derived
	IPC            float64
	FlopsPerCycle  float64
	GFLOPS         float64
	MemoryBandwith float64 // GB/s
}

// CalculateMetrics fills the derived fields for a region that performed
// flops floating-point operations and moved bytes of memory.
func (pc *PerfCounters) CalculateMetrics(flops, bytes uint64) {
	if pc.Cycles > 0 {
		pc.IPC = float64(pc.Instructions) / float64(pc.Cycles)
		pc.FlopsPerCycle = float64(flops) / float64(pc.Cycles)
	}
	if pc.Duration > 0 {
		seconds := pc.Duration.Seconds()
		pc.GFLOPS = float64(flops) / (seconds * 1e9)
		pc.MemoryBandwith = float64(bytes) / (seconds * 1e9)
	}
}

// String formats the counters for display.
func (pc *PerfCounters) String() string {
	var sb strings.Builder

	sb.WriteString("Performance counters:\n")
	if pc.Duration > 0 {
		fmt.Fprintf(&sb, "  Duration:          %v\n", pc.Duration)
	}
	if pc.Cycles > 0 {
		fmt.Fprintf(&sb, "  CPU cycles:        %d\n", pc.Cycles)
		fmt.Fprintf(&sb, "  Instructions:      %d\n", pc.Instructions)
		fmt.Fprintf(&sb, "  IPC:               %.2f\n", pc.IPC)
	}
	if pc.FlopsPerCycle > 0 {
		fmt.Fprintf(&sb, "  FLOPs/cycle:       %.3f\n", pc.FlopsPerCycle)
	}
	if pc.BranchMisses > 0 {
		fmt.Fprintf(&sb, "  Branch misses:     %d\n", pc.BranchMisses)
	}
	if pc.CacheMisses > 0 {
		fmt.Fprintf(&sb, "  Cache misses:      %d\n", pc.CacheMisses)
	}
	if pc.L1DCacheMisses > 0 {
		fmt.Fprintf(&sb, "  L1D misses:        %d\n", pc.L1DCacheMisses)
	}
	if pc.GFLOPS > 0 {
		fmt.Fprintf(&sb, "  GFLOPS:            %.2f\n", pc.GFLOPS)
	}
	if pc.MemoryBandwith > 0 {
		fmt.Fprintf(&sb, "  Memory bandwidth:  %.2f GB/s\n", pc.MemoryBandwith)
	}
	if pc.Threads > 0 {
		fmt.Fprintf(&sb, "  Threads observed:  %d\n", pc.Threads)
	}
	return sb.String()
}
