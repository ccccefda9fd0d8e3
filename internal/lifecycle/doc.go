// Package lifecycle provides model lifecycle, memory-aware caching, and
// generation coordination for on-device inference. It is structured into
// small files by concern:
//
//   - manager.go: core Manager type, simple getters, counters.
//   - config.go: ManagerConfig and package defaults; NewManager applies defaults.
//   - types.go: state types (State, ModelIdentity, CacheEntry, slotState).
//   - errors.go: error types and helpers (IsLoadFailure, IsCancelled, ...).
//   - plan.go: LoadPlan and the pressure-driven StrategySelector.
//   - cache.go: ModelCache, the per-family LRU bounded by count and bytes.
//   - session.go: per-call Session (cancellation flag, progress plumbing).
//   - coordinator.go: per-family generation gates and cancel routing.
//   - ensure.go: EnsureLoaded cache-or-load path with cross-family eviction.
//   - generate.go: RunGeneration entry point and outcome resolution.
//   - unload.go: explicit unload with post-close memory reclamation.
//   - validate.go: canonical parameter bounds, checked before dispatch.
//   - status.go: Status reporting for the HTTP surface.
//   - metrics.go: Prometheus collectors.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (NewManager, RunGeneration, EnsureLoaded, Unload,
// CancelGeneration, Status). Internal types are subject to change.
package lifecycle
