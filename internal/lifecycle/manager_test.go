package lifecycle

import (
	"context"
	"testing"

	"llmedged/internal/engine"
	"llmedged/internal/memory"
	"llmedged/pkg/types"
)

func TestEnsureLoadedCachesHandle(t *testing.T) {
	eng := &fakeEngine{}
	mdl := textModel(t)
	m := newTestManager(t, eng, []types.Model{mdl})

	h1, err := m.EnsureLoaded(context.Background(), mdl, Preferences{})
	if err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	h2, err := m.EnsureLoaded(context.Background(), mdl, Preferences{})
	if err != nil {
		t.Fatalf("EnsureLoaded second: %v", err)
	}
	if h1 != h2 {
		t.Fatal("second ensure must return the cached handle")
	}
	if eng.loads.Load() != 1 {
		t.Fatalf("expected one native load, got %d", eng.loads.Load())
	}
	if !m.Ready() {
		t.Fatal("manager must report ready with a resident model")
	}
}

func TestEnsureLoadedMissingFile(t *testing.T) {
	eng := &fakeEngine{}
	mdl := types.Model{ID: "ghost", Path: "/nonexistent/ghost.gguf", Family: types.FamilyText}
	m := newTestManager(t, eng, []types.Model{mdl})

	_, err := m.EnsureLoaded(context.Background(), mdl, Preferences{})
	if !IsLoadFailure(err) {
		t.Fatalf("missing weight file must be a load failure, got %v", err)
	}
	if eng.loads.Load() != 0 {
		t.Fatal("sizing failure must short-circuit before the engine")
	}
}

func TestEnsureLoadedPassesPlanToEngine(t *testing.T) {
	eng := &fakeEngine{}
	mdl := textModel(t)
	m := NewManager(ManagerConfig{
		Engine:           eng,
		Registry:         []types.Model{mdl},
		Probe:            memory.Fixed(tightSnapshot()),
		MemoryFloorBytes: -1,
	})

	if _, err := m.EnsureLoaded(context.Background(), mdl, Preferences{}); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if !eng.lastSpec.Staged {
		t.Fatal("pressure snapshot must produce a staged load spec")
	}
	if eng.lastSpec.ContextSize != defaultContextSize {
		t.Fatalf("context size: got %d", eng.lastSpec.ContextSize)
	}
	if eng.lastSpec.Family != types.FamilyText {
		t.Fatalf("family: got %s", eng.lastSpec.Family)
	}
}

func TestCrossFamilyEvictionOnHeavyLoad(t *testing.T) {
	handles := map[types.Family]*fakeHandle{}
	eng := &fakeEngine{loadFn: func(ctx context.Context, spec engine.LoadSpec) (engine.Handle, error) {
		h := &fakeHandle{family: spec.Family}
		handles[spec.Family] = h
		return h, nil
	}}
	text := textModel(t)
	image := types.Model{
		ID:     "sd",
		Path:   createModelFile(t, "sd.q8_0.gguf", 1000),
		Family: types.FamilyImage,
	}
	m := newTestManager(t, eng, []types.Model{text, image})

	if _, err := m.EnsureLoaded(context.Background(), text, Preferences{}); err != nil {
		t.Fatalf("load text: %v", err)
	}
	if _, err := m.EnsureLoaded(context.Background(), image, Preferences{}); err != nil {
		t.Fatalf("load image: %v", err)
	}

	if handles[types.FamilyText].closes.Load() != 1 {
		t.Fatal("loading a heavy image model must unload the resident text model")
	}
	if handles[types.FamilyImage].closes.Load() != 0 {
		t.Fatal("the newly loaded model must stay resident")
	}
}

func TestCrossFamilyEvictionDisabled(t *testing.T) {
	handles := map[types.Family]*fakeHandle{}
	eng := &fakeEngine{loadFn: func(ctx context.Context, spec engine.LoadSpec) (engine.Handle, error) {
		h := &fakeHandle{family: spec.Family}
		handles[spec.Family] = h
		return h, nil
	}}
	off := false
	text := textModel(t)
	image := types.Model{
		ID:     "sd",
		Path:   createModelFile(t, "sd.q8_0.gguf", 1000),
		Family: types.FamilyImage,
	}
	m := NewManager(ManagerConfig{
		Engine:              eng,
		Registry:            []types.Model{text, image},
		Probe:               memory.Fixed(roomySnapshot()),
		MemoryFloorBytes:    -1,
		CrossFamilyEviction: &off,
	})

	if _, err := m.EnsureLoaded(context.Background(), text, Preferences{}); err != nil {
		t.Fatalf("load text: %v", err)
	}
	if _, err := m.EnsureLoaded(context.Background(), image, Preferences{}); err != nil {
		t.Fatalf("load image: %v", err)
	}
	if handles[types.FamilyText].closes.Load() != 0 {
		t.Fatal("cross-family eviction disabled: both models must stay resident")
	}
}

func TestUnloadClosesAndResets(t *testing.T) {
	var h *fakeHandle
	eng := &fakeEngine{loadFn: func(ctx context.Context, spec engine.LoadSpec) (engine.Handle, error) {
		h = &fakeHandle{family: spec.Family}
		return h, nil
	}}
	mdl := textModel(t)
	m := newTestManager(t, eng, []types.Model{mdl})

	if _, err := m.EnsureLoaded(context.Background(), mdl, Preferences{}); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	if err := m.Unload(context.Background(), types.FamilyText); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("unload must close the handle, closes=%d", h.closes.Load())
	}
	if m.Ready() {
		t.Fatal("manager must not report ready after unload")
	}

	// Unloading an empty family is a no-op.
	if err := m.Unload(context.Background(), types.FamilyText); err != nil {
		t.Fatalf("idempotent Unload: %v", err)
	}

	// Next ensure loads fresh.
	if _, err := m.EnsureLoaded(context.Background(), mdl, Preferences{}); err != nil {
		t.Fatalf("reload after unload: %v", err)
	}
	if eng.loads.Load() != 2 {
		t.Fatalf("expected a fresh load after unload, loads=%d", eng.loads.Load())
	}
}

func TestStatusCounters(t *testing.T) {
	eng := &fakeEngine{}
	mdl := textModel(t)
	m := newTestManager(t, eng, []types.Model{mdl})

	if _, err := m.RunGeneration(context.Background(), textRequest(mdl)); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}

	st := m.Status()
	if st.LoadsTotal != 1 {
		t.Fatalf("loads_total: got %d", st.LoadsTotal)
	}
	if len(st.Residents) != 1 {
		t.Fatalf("residents: got %d", len(st.Residents))
	}
	if st.Residents[0].Family != types.FamilyText {
		t.Fatalf("resident family: %s", st.Residents[0].Family)
	}
	if st.LastGeneration.ElapsedMS < 0 {
		t.Fatal("last generation elapsed must be non-negative")
	}

	if err := m.UnloadAll(context.Background()); err != nil {
		t.Fatalf("UnloadAll: %v", err)
	}
	st = m.Status()
	if len(st.Residents) != 0 {
		t.Fatal("residents must be empty after UnloadAll")
	}
	if st.EvictionsTotal == 0 {
		t.Fatal("unload must count as an eviction")
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	pub := NewMemoryPublisher()
	eng := &fakeEngine{}
	mdl := textModel(t)
	m := NewManager(ManagerConfig{
		Engine:           eng,
		Registry:         []types.Model{mdl},
		Probe:            memory.Fixed(roomySnapshot()),
		MemoryFloorBytes: -1,
		Publisher:        pub,
	})

	if _, err := m.RunGeneration(context.Background(), textRequest(mdl)); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	if err := m.Unload(context.Background(), types.FamilyText); err != nil {
		t.Fatalf("Unload: %v", err)
	}

	want := map[string]bool{
		"load_start": false, "load_ready": false,
		"generation_done": false, "evicted": false, "unloaded": false,
	}
	for _, e := range pub.Events() {
		if _, ok := want[e.Name]; ok {
			want[e.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("expected %s event", name)
		}
	}
}

func TestModelLookup(t *testing.T) {
	mdlA := types.Model{ID: "a", Path: "/a", Family: types.FamilyText}
	mdlB := types.Model{ID: "b", Path: "/b", Family: types.FamilyImage}
	m := newTestManager(t, &fakeEngine{}, []types.Model{mdlA, mdlB})

	if got, ok := m.ModelByID("b"); !ok || got.Path != "/b" {
		t.Fatalf("ModelByID: %+v ok=%v", got, ok)
	}
	if _, ok := m.ModelByID("nope"); ok {
		t.Fatal("unknown id must miss")
	}
	if got, ok := m.DefaultModel(types.FamilyText); !ok || got.ID != "a" {
		t.Fatalf("DefaultModel: %+v ok=%v", got, ok)
	}
	if _, ok := m.DefaultModel(types.FamilyVideo); ok {
		t.Fatal("family without models must miss")
	}
	if n := len(m.ListModels()); n != 2 {
		t.Fatalf("ListModels: %d", n)
	}
}
