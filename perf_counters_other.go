//go:build !linux

package guda

// PerfMonitor is a stub on platforms without perf_event_open.
type PerfMonitor struct{}

// NewPerfMonitor returns a monitor that never starts.
func NewPerfMonitor() *PerfMonitor {
	return &PerfMonitor{}
}

// Start always fails on this platform.
func (pm *PerfMonitor) Start() error {
	return NewDeviceError("PerfMonitor.Start", "hardware counters not supported on this platform", nil)
}

// Stop returns empty counters.
func (pm *PerfMonitor) Stop() *PerfCounters {
	return &PerfCounters{}
}
