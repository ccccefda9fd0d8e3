package lifecycle

import (
	"testing"

	"llmedged/internal/memory"
)

func selector() StrategySelector { return NewStrategySelector(SelectorConfig{}) }

func TestSelectPlanEagerWhenRoomy(t *testing.T) {
	plan := selector().SelectPlan(1<<30, roomySnapshot(), nil, Preferences{})
	if plan.Staged {
		t.Fatal("plenty of memory must plan an eager load")
	}
	if !plan.UseMmap {
		t.Fatal("mmap is always on")
	}
	if !plan.UseMlock {
		t.Fatal("eager load on a roomy device should pin pages")
	}
	if plan.UseGPU {
		t.Fatal("gpu requires an explicit preference")
	}
}

func TestSelectPlanStagesUnderDevicePressure(t *testing.T) {
	plan := selector().SelectPlan(1<<30, tightSnapshot(), nil, Preferences{})
	if !plan.Staged {
		t.Fatal("low availability must plan a staged load")
	}
	if plan.UseMlock {
		t.Fatal("staged loads must not pin pages")
	}
}

func TestSelectPlanStagesOnLowDeviceTotal(t *testing.T) {
	snap := memory.Snapshot{
		TotalDevice:     4 << 30, // below the 6 GiB floor
		AvailableDevice: 3 << 30,
		ProcessHeapUsed: 10 << 20,
		ProcessHeapMax:  2 << 30,
	}
	plan := selector().SelectPlan(100<<20, snap, nil, Preferences{})
	if !plan.Staged {
		t.Fatal("small devices always stage")
	}
}

func TestSelectPlanStagesOnHeapHeadroom(t *testing.T) {
	// Device looks fine but the process heap cannot fit 1.4x the model.
	snap := memory.Snapshot{
		TotalDevice:     16 << 30,
		AvailableDevice: 12 << 30,
		ProcessHeapUsed: 3 << 30,
		ProcessHeapMax:  4 << 30, // 1 GiB headroom
	}
	plan := selector().SelectPlan(900<<20, snap, nil, Preferences{})
	if !plan.Staged {
		t.Fatal("insufficient heap headroom for size*1.4 must stage")
	}

	plan = selector().SelectPlan(100<<20, snap, nil, Preferences{})
	if plan.Staged {
		t.Fatal("a small model within headroom must load eagerly")
	}
}

// Decreasing availability must never flip the decision from staged back to
// eager with everything else fixed.
func TestSelectPlanMonotoneInAvailability(t *testing.T) {
	s := selector()
	size := int64(1 << 30)
	staged := false
	for avail := uint64(12 << 30); avail > 0; avail -= 1 << 30 {
		snap := memory.Snapshot{
			TotalDevice:     16 << 30,
			AvailableDevice: avail,
			ProcessHeapUsed: 64 << 20,
			ProcessHeapMax:  8 << 30,
		}
		plan := s.SelectPlan(size, snap, nil, Preferences{})
		if staged && !plan.Staged {
			t.Fatalf("staging decision regressed at avail=%d", avail)
		}
		staged = plan.Staged
	}
	if !staged {
		t.Fatal("staging must eventually trigger as availability approaches zero")
	}
}

func TestSelectPlanPerformanceRelaxesToSevereOnly(t *testing.T) {
	s := selector()
	// Tight by the normal threshold (1/16 < 25%) but above severe (10%).
	snap := memory.Snapshot{
		TotalDevice:     16 << 30,
		AvailableDevice: 2 << 30,
		ProcessHeapUsed: 3 << 30,
		ProcessHeapMax:  4 << 30,
	}
	if !s.SelectPlan(1<<30, snap, nil, Preferences{}).Staged {
		t.Fatal("default preferences must stage here")
	}
	if s.SelectPlan(1<<30, snap, nil, Preferences{PreferPerformance: true}).Staged {
		t.Fatal("performance mode must not stage above the severe threshold")
	}

	snap.AvailableDevice = 1 << 30 // under 10%
	if !s.SelectPlan(1<<30, snap, nil, Preferences{PreferPerformance: true}).Staged {
		t.Fatal("performance mode never disables staging under severe pressure")
	}
}

func TestSelectPlanForceStagedOverrides(t *testing.T) {
	s := selector()
	on, off := true, false

	plan := s.SelectPlan(1<<30, roomySnapshot(), nil, Preferences{ForceStaged: &on})
	if !plan.Staged {
		t.Fatal("ForceStaged=true must override a roomy snapshot")
	}
	plan = s.SelectPlan(1<<30, tightSnapshot(), nil, Preferences{ForceStaged: &off})
	if plan.Staged {
		t.Fatal("ForceStaged=false must override pressure")
	}
}

func TestSelectPlanConservativeOnProbeError(t *testing.T) {
	s := selector()
	plan := s.SelectPlan(1<<30, memory.Snapshot{}, errBoom, Preferences{PreferPerformance: true, ForceGPU: true})
	if !plan.Staged || plan.Threads != 1 || plan.UseGPU || plan.UseMlock {
		t.Fatalf("probe failure must produce the conservative plan, got %+v", plan)
	}

	off := false
	plan = s.SelectPlan(1<<30, memory.Snapshot{}, errBoom, Preferences{ForceStaged: &off})
	if plan.Staged {
		t.Fatal("explicit ForceStaged still applies on probe failure")
	}
}

func TestSelectPlanThreadCap(t *testing.T) {
	s := selector()
	plan := s.SelectPlan(1<<20, roomySnapshot(), nil, Preferences{})
	if plan.Threads > 2 {
		t.Fatalf("default plans cap threads at 2, got %d", plan.Threads)
	}
	perf := s.SelectPlan(1<<20, roomySnapshot(), nil, Preferences{PreferPerformance: true})
	if perf.Threads < plan.Threads {
		t.Fatal("performance mode must not use fewer threads than the capped plan")
	}
}

func TestSelectPlanGPUVetoForSmallOutputs(t *testing.T) {
	s := selector()
	prefs := Preferences{ForceGPU: true, TargetWidth: 64, TargetHeight: 64}
	if s.SelectPlan(1<<20, roomySnapshot(), nil, prefs).UseGPU {
		t.Fatal("gpu must be vetoed for sub-128px outputs")
	}
	prefs = Preferences{ForceGPU: true, TargetWidth: 512, TargetHeight: 512}
	if !s.SelectPlan(1<<20, roomySnapshot(), nil, prefs).UseGPU {
		t.Fatal("gpu must be honored for large outputs")
	}
}
