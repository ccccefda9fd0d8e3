package lifecycle

import (
	"time"

	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// State represents the lifecycle state of a family slot.
type State string

const (
	StateUnloaded   State = "unloaded"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateGenerating State = "generating"
	StateError      State = "error"
)

// ModelIdentity is the canonical cache key for one logical model. Two
// identities are equal iff every path component matches exactly, including
// absence. Comparable; usable as a map key.
type ModelIdentity struct {
	Path        string
	AuxPath     string
	DecoderPath string
}

// IdentityFor builds the identity for a registry model.
func IdentityFor(m types.Model) ModelIdentity {
	return ModelIdentity{Path: m.Path, AuxPath: m.AuxPath, DecoderPath: m.DecoderPath}
}

func (id ModelIdentity) String() string {
	s := id.Path
	if id.AuxPath != "" {
		s += "+" + id.AuxPath
	}
	if id.DecoderPath != "" {
		s += "+" + id.DecoderPath
	}
	return s
}

// CacheEntry owns one loaded native handle plus sizing and recency metadata.
// Once evicted, no other component may retain a reference to the handle.
type CacheEntry struct {
	Identity     ModelIdentity
	Handle       engine.Handle
	Family       types.Family
	SizeBytes    int64
	Plan         LoadPlan
	LoadDuration time.Duration
	LastUsed     time.Time

	// pins counts in-flight generations using the handle. Pinned entries are
	// not eviction candidates; closing a handle mid-generation is a native
	// use-after-free.
	pins int
}

// slotState tracks the per-family state machine:
// unloaded -> loading -> ready -> generating -> ready ... -> unloaded,
// with loading/generating -> error -> unloaded. Errored handles are never
// reused; the slot clears and a future request loads fresh.
type slotState struct {
	state    State
	identity ModelIdentity
	err      string
}

// Generation outcomes. A cancelled run is never reported as success even if
// the native layer returned a well-formed result after the flag was raised.
const (
	OutcomeSuccess   = "success"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// GenerationMetrics describes one completed generation.
type GenerationMetrics struct {
	Family        types.Family
	Outcome       string
	Elapsed       time.Duration
	Units         int
	Throughput    float64 // units per second
	PeakHeapBytes uint64
	Backend       string // "cpu" or "gpu"
}
