package guda

import (
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks available CPU instruction set extensions
type CPUFeatures struct {
	HasAVX     bool
	HasAVX2    bool
	HasAVX512F bool // Foundation
	HasFMA     bool
	HasSSE4    bool
	HasNEON    bool // ARM64 Advanced SIMD
	HasFP16    bool // ARM64 half precision arithmetic
}

// Global CPU feature detection
var cpuFeatures = detectCPUFeatures()

// detectCPUFeatures reads the host's extensions. The x/sys/cpu fields for
// foreign architectures are always false, so one detector serves every
// GOARCH.
func detectCPUFeatures() CPUFeatures {
	return CPUFeatures{
		HasSSE4:    cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX:     cpu.X86.HasAVX,
		HasAVX2:    cpu.X86.HasAVX2,
		HasAVX512F: cpu.X86.HasAVX512F,
		HasFMA:     cpu.X86.HasFMA,
		HasNEON:    cpu.ARM64.HasASIMD,
		HasFP16:    cpu.ARM64.HasFPHP && cpu.ARM64.HasASIMDHP,
	}
}

// cpuFeatureList returns the detected extensions in a fixed order
func cpuFeatureList() []string {
	var features []string
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}
	add(cpuFeatures.HasSSE4, "SSE4")
	add(cpuFeatures.HasAVX, "AVX")
	add(cpuFeatures.HasAVX2, "AVX2")
	add(cpuFeatures.HasFMA, "FMA")
	add(cpuFeatures.HasAVX512F, "AVX512F")
	add(cpuFeatures.HasNEON, "NEON")
	add(cpuFeatures.HasFP16, "FP16")
	return features
}

// deviceName describes the CPU device, e.g. "GUDA CPU (amd64: AVX2, FMA)"
func deviceName() string {
	features := cpuFeatureList()
	if len(features) == 0 {
		return "GUDA CPU (" + runtime.GOARCH + ")"
	}
	return "GUDA CPU (" + runtime.GOARCH + ": " + strings.Join(features, ", ") + ")"
}

// GetCPUInfo returns a string describing available CPU features
func GetCPUInfo() string {
	features := cpuFeatureList()
	if len(features) == 0 {
		return "No SIMD extensions detected"
	}
	return "CPU features: " + strings.Join(features, ", ")
}
