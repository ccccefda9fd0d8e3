package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llmedged/internal/engine"
	"llmedged/internal/memory"
	"llmedged/pkg/types"
)

// Manager orchestrates the strategy selector, the model cache, and the
// generation coordinator to serve "ensure model X loaded and run operation
// Y" requests. One instance is constructed at process start and injected
// into call sites; it holds no package-level state.
type Manager struct {
	log       zerolog.Logger
	engine    engine.Engine
	registry  []types.Model
	probe     memory.Provider
	selector  StrategySelector
	coord     *Coordinator
	publisher EventPublisher

	// cacheMu serializes every cache operation, including Get's recency
	// bump, and guards the per-family slots. Distinct from the generation
	// gates so cache inspection never waits behind a running generation.
	cacheMu sync.Mutex
	cache   *ModelCache
	slots   map[types.Family]*slotState

	// loadMu serializes native loads across families; the device cannot
	// afford two multi-gigabyte loads in flight at once.
	loadMu sync.Mutex

	crossEvict   bool
	perfMode     bool
	reclaimPause time.Duration
	contextSize  int

	loadsTotal         atomic.Uint64
	evictionsTotal     atomic.Uint64
	cancellationsTotal atomic.Uint64

	lastGenMu sync.RWMutex
	lastGen   GenerationMetrics

	startTime time.Time
}

// ListModels returns a copy of the registry.
func (m *Manager) ListModels() []types.Model {
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// ModelByID finds a registry model by id.
func (m *Manager) ModelByID(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// DefaultModel returns the first registry model of the given family.
func (m *Manager) DefaultModel(family types.Family) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.Family == family {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// Ready reports whether any family slot holds a ready model.
func (m *Manager) Ready() bool {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	for _, s := range m.slots {
		if s.state == StateReady || s.state == StateGenerating {
			return true
		}
	}
	return false
}

// CancelGeneration requests cooperative cancellation of the family's active
// generation. Non-blocking; returns whether an in-flight session was
// signalled.
func (m *Manager) CancelGeneration(family types.Family) bool {
	ok := m.coord.CancelGeneration(family)
	if ok {
		m.log.Info().Str("family", string(family)).Msg("cancel requested")
		m.publisher.Publish(Event{Name: "cancel_requested", Fields: map[string]any{"family": string(family)}})
	}
	return ok
}

// Metrics returns the last completed generation's metrics.
func (m *Manager) Metrics() GenerationMetrics {
	m.lastGenMu.RLock()
	defer m.lastGenMu.RUnlock()
	return m.lastGen
}

func (m *Manager) recordGeneration(gm GenerationMetrics) {
	m.lastGenMu.Lock()
	m.lastGen = gm
	m.lastGenMu.Unlock()
	observeGeneration(gm)
}

// slot returns the family's slot, creating it in the unloaded state.
// Caller holds cacheMu.
func (m *Manager) slot(family types.Family) *slotState {
	s, ok := m.slots[family]
	if !ok {
		s = &slotState{state: StateUnloaded}
		m.slots[family] = s
	}
	return s
}

func (m *Manager) setSlot(family types.Family, state State, errMsg string) {
	m.cacheMu.Lock()
	s := m.slot(family)
	s.state = state
	s.err = errMsg
	if state == StateUnloaded || state == StateError {
		s.identity = ModelIdentity{}
	}
	m.cacheMu.Unlock()
}

// noteEviction is the cache's evict hook; runs under cacheMu.
func (m *Manager) noteEviction(e CacheEntry) {
	m.evictionsTotal.Add(1)
	evictionsCounter.WithLabelValues(string(e.Family)).Inc()
	residentGauge.WithLabelValues(string(e.Family)).Sub(float64(e.SizeBytes))
	m.log.Info().Str("model", e.Identity.String()).Str("family", string(e.Family)).
		Int64("size_bytes", e.SizeBytes).Msg("evicted")
	m.publisher.Publish(Event{Name: "evicted", Model: e.Identity.String(), Fields: map[string]any{
		"family": string(e.Family), "size_bytes": e.SizeBytes,
	}})
}
