package lifecycle

import (
	"time"

	"github.com/rs/zerolog"

	"llmedged/internal/engine"
	"llmedged/internal/memory"
	"llmedged/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMemoryFloorBytes = 512 << 20
	defaultReclaimPause     = 150 * time.Millisecond
	defaultContextSize      = 4096
)

// ManagerConfig encapsulates all tunables for Manager construction. The
// engine is the only required field; everything else has working defaults.
type ManagerConfig struct {
	// Engine performs the native loads. Required.
	Engine engine.Engine
	// Registry of models known to the daemon.
	Registry []types.Model
	// Budgets per family; families absent here get package defaults.
	Budgets map[types.Family]FamilyBudget
	// Selector thresholds; zero fields take defaults.
	Selector SelectorConfig
	// Probe supplies memory snapshots; defaults to memory.Probe.
	Probe memory.Provider
	// MemoryFloorBytes is the availability floor for provider-driven
	// proactive cache eviction. Zero takes the default; negative disables.
	MemoryFloorBytes int64
	// CrossFamilyEviction unloads other heavy families before loading a
	// heavy model. Nil means on (the memory-safe default).
	CrossFamilyEviction *bool
	// PreferPerformance keeps hot models resident (disables provider-driven
	// eviction) and relaxes the staging margin process-wide. Per-request
	// preferences still apply on top.
	PreferPerformance bool
	// ReclaimPause is how long Unload yields after requesting GC so native
	// memory is actually returned before the next pressure reading.
	ReclaimPause time.Duration
	// ContextSize for text models.
	ContextSize int
	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
	// Publisher receives lifecycle events; defaults to a no-op publisher.
	Publisher EventPublisher
}

// NewManager constructs a Manager from cfg, applying defaults.
func NewManager(cfg ManagerConfig) *Manager {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	pub := EventPublisher(noopPublisher{})
	if cfg.Publisher != nil {
		pub = cfg.Publisher
	}
	probe := cfg.Probe
	if probe == nil {
		probe = memory.Probe
	}
	floor := cfg.MemoryFloorBytes
	if floor == 0 {
		floor = defaultMemoryFloorBytes
	}
	pause := cfg.ReclaimPause
	if pause == 0 {
		pause = defaultReclaimPause
	}
	ctxSize := cfg.ContextSize
	if ctxSize == 0 {
		ctxSize = defaultContextSize
	}
	crossEvict := true
	if cfg.CrossFamilyEviction != nil {
		crossEvict = *cfg.CrossFamilyEviction
	}

	m := &Manager{
		log:          log,
		engine:       cfg.Engine,
		registry:     cfg.Registry,
		probe:        probe,
		selector:     NewStrategySelector(cfg.Selector),
		coord:        NewCoordinator(),
		cache:        NewModelCache(log, cfg.Budgets),
		publisher:    pub,
		slots:        make(map[types.Family]*slotState),
		crossEvict:   crossEvict,
		perfMode:     cfg.PreferPerformance,
		reclaimPause: pause,
		contextSize:  ctxSize,
		startTime:    time.Now(),
	}
	if floor > 0 {
		m.cache.SetMemoryProvider(func() (uint64, error) {
			snap, err := probe()
			if err != nil {
				return 0, err
			}
			return snap.AvailableDevice, nil
		}, uint64(floor))
	}
	m.cache.SetPerformanceMode(cfg.PreferPerformance)
	m.cache.SetEvictHook(m.noteEviction)
	return m
}
