// Package memory reads live system and process memory so load planning and
// cache eviction can react to real pressure instead of static budgets.
package memory

import (
	"runtime"
	"runtime/debug"

	"github.com/shirou/gopsutil/v4/mem"
)

// lowMemoryDeviceBytes is the coarse device classification threshold.
// Devices with less total RAM than this are treated as low-memory.
const lowMemoryDeviceBytes = 8 << 30

// Snapshot is a point-in-time memory reading. All values are bytes.
type Snapshot struct {
	TotalDevice     uint64
	AvailableDevice uint64
	ProcessHeapUsed uint64
	ProcessHeapMax  uint64
}

// Headroom returns how much the process heap can still grow.
func (s Snapshot) Headroom() uint64 {
	if s.ProcessHeapMax <= s.ProcessHeapUsed {
		return 0
	}
	return s.ProcessHeapMax - s.ProcessHeapUsed
}

// LowDevice reports whether the device itself is low-memory class,
// independent of current availability.
func (s Snapshot) LowDevice() bool {
	return s.TotalDevice > 0 && s.TotalDevice < lowMemoryDeviceBytes
}

// Provider yields memory snapshots. Tests substitute a fixed provider;
// production uses Probe.
type Provider func() (Snapshot, error)

// Probe reads current device and process memory. It performs no significant
// allocation of its own and is safe to call from any goroutine.
func Probe() (Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, err
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	// The Go soft memory limit doubles as the heap ceiling when one is set;
	// otherwise the device total is the only real bound.
	heapMax := uint64(vm.Total)
	if lim := debug.SetMemoryLimit(-1); lim > 0 && uint64(lim) < heapMax {
		heapMax = uint64(lim)
	}

	return Snapshot{
		TotalDevice:     vm.Total,
		AvailableDevice: vm.Available,
		ProcessHeapUsed: ms.HeapAlloc,
		ProcessHeapMax:  heapMax,
	}, nil
}

// Fixed returns a Provider that always yields snap. Intended for tests.
func Fixed(snap Snapshot) Provider {
	return func() (Snapshot, error) { return snap, nil }
}
