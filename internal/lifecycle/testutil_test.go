package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"llmedged/internal/engine"
	"llmedged/internal/memory"
	"llmedged/pkg/types"
)

// fakeHandle is a scriptable engine.Handle with call counters.
type fakeHandle struct {
	family types.Family
	genFn  func(ctx context.Context, req engine.Request, progress engine.ProgressSink) (engine.Result, error)

	cancels atomic.Int32
	closes  atomic.Int32
	closeErr error
}

func (h *fakeHandle) Family() types.Family { return h.family }

func (h *fakeHandle) Generate(ctx context.Context, req engine.Request, progress engine.ProgressSink) (engine.Result, error) {
	if h.genFn != nil {
		return h.genFn(ctx, req, progress)
	}
	return engine.Result{Text: "ok", Units: 1}, nil
}

func (h *fakeHandle) Cancel()      { h.cancels.Add(1) }
func (h *fakeHandle) Close() error { h.closes.Add(1); return h.closeErr }

// fakeEngine returns a scripted handle per load and counts loads.
type fakeEngine struct {
	loads  atomic.Int32
	loadFn func(ctx context.Context, spec engine.LoadSpec) (engine.Handle, error)

	lastSpec engine.LoadSpec
}

func (e *fakeEngine) Load(ctx context.Context, spec engine.LoadSpec) (engine.Handle, error) {
	e.loads.Add(1)
	e.lastSpec = spec
	if e.loadFn != nil {
		return e.loadFn(ctx, spec)
	}
	return &fakeHandle{family: spec.Family}, nil
}

// createModelFile writes a dummy weight file of n bytes and returns its path.
func createModelFile(t *testing.T, name string, n int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, make([]byte, n), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return p
}

// roomySnapshot is a snapshot with plenty of headroom so plans stay eager.
func roomySnapshot() memory.Snapshot {
	return memory.Snapshot{
		TotalDevice:     16 << 30,
		AvailableDevice: 12 << 30,
		ProcessHeapUsed: 64 << 20,
		ProcessHeapMax:  8 << 30,
	}
}

// tightSnapshot is a snapshot under device pressure.
func tightSnapshot() memory.Snapshot {
	return memory.Snapshot{
		TotalDevice:     16 << 30,
		AvailableDevice: 1 << 30,
		ProcessHeapUsed: 3 << 30,
		ProcessHeapMax:  4 << 30,
	}
}

// newTestManager builds a manager over the fake engine with a roomy fixed
// probe and the given registry.
func newTestManager(t *testing.T, eng engine.Engine, registry []types.Model) *Manager {
	t.Helper()
	floor := int64(-1) // no provider-driven eviction unless a test opts in
	return NewManager(ManagerConfig{
		Engine:           eng,
		Registry:         registry,
		Probe:            memory.Fixed(roomySnapshot()),
		MemoryFloorBytes: floor,
		ReclaimPause:     1, // nanosecond; tests should not sleep
	})
}

var errBoom = errors.New("boom")
