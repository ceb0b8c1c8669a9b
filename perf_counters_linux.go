//go:build linux

package guda

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

type perfEvent struct {
	name   string
	typ    uint32
	config uint64
}

var perfEvents = []perfEvent{
	{"cycles", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CPU_CYCLES},
	{"instructions", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_INSTRUCTIONS},
	{"branch-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_BRANCH_MISSES},
	{"cache-misses", unix.PERF_TYPE_HARDWARE, unix.PERF_COUNT_HW_CACHE_MISSES},
	{"L1-dcache-load-misses", unix.PERF_TYPE_HW_CACHE, cacheConfig(
		unix.PERF_COUNT_HW_CACHE_L1D,
		unix.PERF_COUNT_HW_CACHE_OP_READ,
		unix.PERF_COUNT_HW_CACHE_RESULT_MISS)},
}

func cacheConfig(cache, op, result uint64) uint64 {
	return cache | op<<8 | result<<16
}

// PerfMonitor reads hardware counters through perf_event_open. Kernel
// threads run on goroutines scheduled over every OS thread of the process,
// so one counter set is opened per thread listed in /proc/self/task and the
// readings are summed.
type PerfMonitor struct {
	mu  sync.Mutex
	fds [][]int // per thread, indexed like perfEvents
}

// NewPerfMonitor returns an idle monitor.
func NewPerfMonitor() *PerfMonitor {
	return &PerfMonitor{}
}

// Start opens and enables the counters. It fails when the kernel refuses
// perf events, typically because of perf_event_paranoid or a container
// seccomp profile.
func (pm *PerfMonitor) Start() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.closeLocked()

	tasks, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return NewDeviceError("PerfMonitor.Start", "cannot list threads", err)
	}

	for _, task := range tasks {
		tid, err := strconv.Atoi(task.Name())
		if err != nil {
			continue
		}
		fds, err := openThreadCounters(tid)
		if errors.Is(err, unix.ESRCH) {
			continue // thread exited
		}
		if err != nil {
			pm.closeLocked()
			return NewDeviceError("PerfMonitor.Start", "perf events unavailable", err)
		}
		pm.fds = append(pm.fds, fds)
	}
	if len(pm.fds) == 0 {
		return NewDeviceError("PerfMonitor.Start", "no threads to monitor", nil)
	}

	for _, fds := range pm.fds {
		for _, fd := range fds {
			if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_RESET, 0); err != nil {
				klog.V(2).Infof("perf reset fd %d: %v", fd, err)
			}
			if err := unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_ENABLE, 0); err != nil {
				klog.V(2).Infof("perf enable fd %d: %v", fd, err)
			}
		}
	}
	klog.V(1).Infof("perf monitor attached to %d threads", len(pm.fds))
	return nil
}

func openThreadCounters(tid int) ([]int, error) {
	fds := make([]int, 0, len(perfEvents))
	for _, ev := range perfEvents {
		attr := unix.PerfEventAttr{
			Type:   ev.typ,
			Config: ev.config,
			Bits:   unix.PerfBitDisabled | unix.PerfBitInherit | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
		}
		attr.Size = uint32(unsafe.Sizeof(attr))
		fd, err := unix.PerfEventOpen(&attr, tid, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			for _, open := range fds {
				unix.Close(open)
			}
			return nil, fmt.Errorf("%s: %w", ev.name, err)
		}
		fds = append(fds, fd)
	}
	return fds, nil
}

// Stop disables the counters and returns their summed readings. Stopping
// a monitor that never started returns zero counters.
func (pm *PerfMonitor) Stop() *PerfCounters {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	counters := &PerfCounters{Threads: len(pm.fds)}
	var buf [8]byte
	for _, fds := range pm.fds {
		for i, fd := range fds {
			unix.IoctlSetInt(fd, unix.PERF_EVENT_IOC_DISABLE, 0)
			n, err := unix.Read(fd, buf[:])
			if err != nil || n != len(buf) {
				continue
			}
			value := binary.NativeEndian.Uint64(buf[:])
			switch perfEvents[i].name {
			case "cycles":
				counters.Cycles += value
			case "instructions":
				counters.Instructions += value
			case "branch-misses":
				counters.BranchMisses += value
			case "cache-misses":
				counters.CacheMisses += value
			case "L1-dcache-load-misses":
				counters.L1DCacheMisses += value
			}
		}
	}
	pm.closeLocked()
	return counters
}

func (pm *PerfMonitor) closeLocked() {
	for _, fds := range pm.fds {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}
	pm.fds = nil
}
