package lifecycle

import (
	"context"
	"sync"

	"llmedged/pkg/types"
)

// Coordinator provides one FIFO mutual-exclusion gate per model family and
// tracks the active session per gate so cancellation can find its target.
//
// Callers must not re-enter the same family's gate from inside the locked
// block; that deadlocks and is a documented caller contract, not detected at
// runtime.
type Coordinator struct {
	gates map[types.Family]chan struct{}

	mu     sync.Mutex
	active map[types.Family]*Session
}

// NewCoordinator builds gates for every family. Transcription and embedding
// share the text gate: they run on the same class of compute and must not
// overlap a text generation on a constrained device.
func NewCoordinator() *Coordinator {
	c := &Coordinator{
		gates:  make(map[types.Family]chan struct{}),
		active: make(map[types.Family]*Session),
	}
	for _, f := range []types.Family{types.FamilyText, types.FamilyImage, types.FamilyVideo} {
		c.gates[f] = make(chan struct{}, 1)
	}
	return c
}

// gateFamily maps a family to the family whose gate serializes it.
func gateFamily(f types.Family) types.Family {
	switch f {
	case types.FamilyTranscribe, types.FamilyEmbedding:
		return types.FamilyText
	}
	return f
}

// withGenerationLock runs fn with the family's gate held. Waiters queue on
// the gate channel in request order; acquisition respects ctx.
func (c *Coordinator) withGenerationLock(ctx context.Context, family types.Family, fn func() error) error {
	gate := c.gates[gateFamily(family)]
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-gate }()
	return fn()
}

// setActive records the session cancellation targets while a generation is
// in flight on the family's gate.
func (c *Coordinator) setActive(family types.Family, s *Session) {
	c.mu.Lock()
	c.active[gateFamily(family)] = s
	c.mu.Unlock()
}

func (c *Coordinator) clearActive(family types.Family) {
	c.mu.Lock()
	delete(c.active, gateFamily(family))
	c.mu.Unlock()
}

// CancelGeneration requests cooperative cancellation of the family's active
// generation, if any. Returns whether a session was signalled. Non-blocking;
// the in-flight task observes the flag at its next checkpoint.
func (c *Coordinator) CancelGeneration(family types.Family) bool {
	c.mu.Lock()
	s := c.active[gateFamily(family)]
	c.mu.Unlock()
	if s == nil {
		return false
	}
	s.RequestCancel()
	return true
}
