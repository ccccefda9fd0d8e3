package lifecycle

import (
	"runtime"

	"llmedged/internal/memory"
)

// LoadPlan describes how to perform one native load. Plans are computed
// fresh per attempt from live memory readings and are never cached; memory
// conditions can change between loads of the same model.
type LoadPlan struct {
	// Staged loads sub-components one at a time with releases in between,
	// trading latency for peak memory.
	Staged   bool
	Threads  int
	UseGPU   bool
	UseMmap  bool
	UseMlock bool
}

// Preferences are the caller-supplied knobs for one load attempt.
type Preferences struct {
	// PreferPerformance relaxes (never eliminates) the staging margin,
	// uncaps threads, and enables GPU offload.
	PreferPerformance bool
	// ForceStaged, when non-nil, overrides the pressure heuristics entirely.
	// Escape hatch for callers with external knowledge.
	ForceStaged *bool
	// ForceGPU enables GPU offload without PreferPerformance.
	ForceGPU bool
	// TargetWidth/TargetHeight, when set, let the selector veto GPU for
	// small outputs where mobile GPU backends misbehave.
	TargetWidth  int
	TargetHeight int
}

// SelectorConfig holds the pressure thresholds. Zero values take defaults.
type SelectorConfig struct {
	// DeviceFloorBytes: total device RAM below this always stages.
	DeviceFloorBytes uint64
	// AvailFraction: staging triggers when available/total drops below this.
	AvailFraction float64
	// SevereAvailFraction: the stricter trigger used under PreferPerformance.
	SevereAvailFraction float64
	// SafetyMultiplier covers transient peak allocation during load when
	// comparing heap headroom to the model footprint.
	SafetyMultiplier float64
	// CappedThreads is the thread limit when not preferring performance, so
	// a load never starves the device's foreground work.
	CappedThreads int
	// MinGPUDim: outputs with a side below this never use the GPU backend.
	MinGPUDim int
}

const (
	defaultDeviceFloorBytes    = 6 << 30
	defaultAvailFraction       = 0.25
	defaultSevereAvailFraction = 0.10
	defaultSafetyMultiplier    = 1.4
	defaultCappedThreads       = 2
	defaultMinGPUDim           = 128
)

func (c SelectorConfig) withDefaults() SelectorConfig {
	if c.DeviceFloorBytes == 0 {
		c.DeviceFloorBytes = defaultDeviceFloorBytes
	}
	if c.AvailFraction == 0 {
		c.AvailFraction = defaultAvailFraction
	}
	if c.SevereAvailFraction == 0 {
		c.SevereAvailFraction = defaultSevereAvailFraction
	}
	if c.SafetyMultiplier == 0 {
		c.SafetyMultiplier = defaultSafetyMultiplier
	}
	if c.CappedThreads == 0 {
		c.CappedThreads = defaultCappedThreads
	}
	if c.MinGPUDim == 0 {
		c.MinGPUDim = defaultMinGPUDim
	}
	return c
}

// StrategySelector decides eager vs. staged loading and derives safe thread
// and backend parameters from live memory pressure.
type StrategySelector struct {
	cfg SelectorConfig
}

// NewStrategySelector builds a selector, applying defaults for zero fields.
func NewStrategySelector(cfg SelectorConfig) StrategySelector {
	return StrategySelector{cfg: cfg.withDefaults()}
}

// SelectPlan computes the plan for loading a model of sizeBytes under the
// given snapshot. It never fails: when the probe errored (probeErr non-nil)
// it returns the most conservative plan.
func (s StrategySelector) SelectPlan(sizeBytes int64, snap memory.Snapshot, probeErr error, prefs Preferences) LoadPlan {
	if probeErr != nil {
		return s.conservative(prefs)
	}

	plan := LoadPlan{
		Staged:  s.shouldStage(sizeBytes, snap, prefs),
		Threads: s.threads(prefs),
		UseGPU:  prefs.PreferPerformance || prefs.ForceGPU,
		UseMmap: true,
	}
	if prefs.ForceStaged != nil {
		plan.Staged = *prefs.ForceStaged
	}
	// Mlock only when fully resident and nothing is under pressure; pinning
	// pages while staging defeats the point of staging.
	plan.UseMlock = !plan.Staged && !snap.LowDevice()

	// Small outputs are slower and less stable on mobile GPU backends.
	if plan.UseGPU && prefs.TargetWidth > 0 && prefs.TargetHeight > 0 {
		if prefs.TargetWidth < s.cfg.MinGPUDim || prefs.TargetHeight < s.cfg.MinGPUDim {
			plan.UseGPU = false
		}
	}
	return plan
}

// shouldStage fires on either of two independent signals: device-level
// availability and process-level heap headroom. PreferPerformance narrows
// the device trigger to the severe threshold and drops the process signal,
// but never disables staging outright.
func (s StrategySelector) shouldStage(sizeBytes int64, snap memory.Snapshot, prefs Preferences) bool {
	total := float64(snap.TotalDevice)
	avail := float64(snap.AvailableDevice)

	if prefs.PreferPerformance {
		return total > 0 && avail < total*s.cfg.SevereAvailFraction
	}

	deviceLow := snap.TotalDevice < s.cfg.DeviceFloorBytes ||
		(total > 0 && avail < total*s.cfg.AvailFraction)
	processLow := float64(snap.Headroom()) < float64(sizeBytes)*s.cfg.SafetyMultiplier
	return deviceLow || processLow
}

func (s StrategySelector) threads(prefs Preferences) int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	if !prefs.PreferPerformance && n > s.cfg.CappedThreads {
		n = s.cfg.CappedThreads
	}
	return n
}

// conservative is the fallback plan when memory cannot be read: staged,
// minimal threads, no GPU.
func (s StrategySelector) conservative(prefs Preferences) LoadPlan {
	plan := LoadPlan{Staged: true, Threads: 1, UseMmap: true}
	if prefs.ForceStaged != nil {
		plan.Staged = *prefs.ForceStaged
	}
	return plan
}
