package lifecycle

import (
	"context"
	"errors"
	"time"

	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// heapSampleInterval paces the heap readings taken while a native call runs.
const heapSampleInterval = 25 * time.Millisecond

// GenerationRequest is one end-to-end "ensure loaded, then generate" call.
type GenerationRequest struct {
	Model  types.Model
	Prefs  Preferences
	Params engine.Request
	// OnProgress, if non-nil, receives step reports off the native goroutine.
	OnProgress func(Progress)
}

// GenerationResult carries the native output plus the resolved outcome. Err is
// set for the cancelled and failed outcomes; the Result fields are only
// meaningful on success.
type GenerationResult struct {
	Outcome string
	Result  engine.Result
	Err     error
	Metrics GenerationMetrics
}

// RunGeneration validates, ensures the model is loaded, and executes the
// native call under the family's generation gate. Errors raised before native
// dispatch (validation, load failure, family mismatch) are returned directly;
// once the native call starts, failures and cancellations are reported
// through the result's Outcome so callers can distinguish "user aborted" from
// "engine broke".
//
// A cancellation observed after the native call returned still yields the
// cancelled outcome; a stale success is never passed through.
func (m *Manager) RunGeneration(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	family := req.Model.Family
	if err := ValidateParams(family, req.Params); err != nil {
		return GenerationResult{}, err
	}

	if req.Prefs.TargetWidth == 0 {
		req.Prefs.TargetWidth = req.Params.Width
	}
	if req.Prefs.TargetHeight == 0 {
		req.Prefs.TargetHeight = req.Params.Height
	}

	handle, err := m.EnsureLoaded(ctx, req.Model, req.Prefs)
	if err != nil {
		return GenerationResult{}, err
	}
	if handle.Family() != family {
		return GenerationResult{}, ErrUnsupportedOperation(string(family), string(handle.Family()))
	}

	// Pin the entry for the whole call, including the wait for the gate, so
	// a concurrent load for another model cannot evict and close the handle
	// while it is in use.
	identity := IdentityFor(req.Model)
	m.cacheMu.Lock()
	m.cache.Pin(identity)
	m.cacheMu.Unlock()
	defer func() {
		m.cacheMu.Lock()
		m.cache.Unpin(identity)
		m.cacheMu.Unlock()
	}()

	var out GenerationResult
	err = m.coord.withGenerationLock(ctx, family, func() error {
		out = m.generateLocked(ctx, family, handle, req)
		return nil
	})
	if err != nil {
		// Gate acquisition failed; the native call never started.
		return GenerationResult{}, err
	}

	m.recordGeneration(out.Metrics)
	if out.Outcome == OutcomeCancelled {
		m.cancellationsTotal.Add(1)
		cancellationsCounter.WithLabelValues(string(family)).Inc()
	}
	m.publisher.Publish(Event{Name: "generation_done", Model: identity.String(), Fields: map[string]any{
		"family":  string(family),
		"outcome": out.Outcome,
		"dur_ms":  out.Metrics.Elapsed.Milliseconds(),
	}})
	return out, nil
}

// generateLocked runs with the family gate held.
func (m *Manager) generateLocked(ctx context.Context, family types.Family, handle engine.Handle, req GenerationRequest) GenerationResult {
	m.setSlot(family, StateGenerating, "")

	session := newSession(family, handle)
	m.coord.setActive(family, session)
	defer m.coord.clearActive(family)

	session.forward(req.OnProgress)

	// Endpoint readings alone would miss the allocation high-water mark of a
	// long native call, so heap usage is also sampled while it runs.
	peak := m.heapUsed()
	stopSample := make(chan struct{})
	sampledPeak := make(chan uint64, 1)
	go func() {
		tick := time.NewTicker(heapSampleInterval)
		defer tick.Stop()
		var high uint64
		for {
			select {
			case <-tick.C:
				if h := m.heapUsed(); h > high {
					high = h
				}
			case <-stopSample:
				sampledPeak <- high
				return
			}
		}
	}()

	start := time.Now()
	res, err := handle.Generate(ctx, req.Params, session.sink())
	elapsed := time.Since(start)
	close(stopSample)
	session.finish()

	if h := <-sampledPeak; h > peak {
		peak = h
	}
	if h := m.heapUsed(); h > peak {
		peak = h
	}

	backend := "cpu"
	m.cacheMu.Lock()
	if e := m.cache.Get(IdentityFor(req.Model)); e != nil && e.Plan.UseGPU {
		backend = "gpu"
	}
	m.cacheMu.Unlock()

	gm := GenerationMetrics{
		Family:        family,
		Elapsed:       elapsed,
		Units:         res.Units,
		PeakHeapBytes: peak,
		Backend:       backend,
	}
	if elapsed > 0 && res.Units > 0 {
		gm.Throughput = float64(res.Units) / elapsed.Seconds()
	}

	cancelled := session.CancelRequested() ||
		errors.Is(err, engine.ErrCancelled) ||
		errors.Is(err, context.Canceled)

	switch {
	case cancelled:
		session.acknowledgeCancel()
		gm.Outcome = OutcomeCancelled
		m.setSlot(family, StateReady, "")
		m.log.Info().Str("family", string(family)).Dur("dur", elapsed).Msg("generation cancelled")
		return GenerationResult{Outcome: OutcomeCancelled, Err: ErrCancelled(string(family)), Metrics: gm}
	case err != nil:
		gm.Outcome = OutcomeFailed
		// A handle that failed a generation is never trusted again: drop it
		// from the cache so the next request loads fresh.
		m.cacheMu.Lock()
		m.cache.Remove(IdentityFor(req.Model))
		m.cacheMu.Unlock()
		m.setSlot(family, StateError, err.Error())
		m.log.Error().Err(err).Str("family", string(family)).Msg("generation failed")
		return GenerationResult{Outcome: OutcomeFailed, Err: ErrGenerationFailure(err.Error()), Metrics: gm}
	default:
		gm.Outcome = OutcomeSuccess
		m.setSlot(family, StateReady, "")
		m.log.Info().Str("family", string(family)).Dur("dur", elapsed).
			Int("units", res.Units).Float64("throughput", gm.Throughput).Msg("generation done")
		return GenerationResult{Outcome: OutcomeSuccess, Result: res, Metrics: gm}
	}
}

func (m *Manager) heapUsed() uint64 {
	snap, err := m.probe()
	if err != nil {
		return 0
	}
	return snap.ProcessHeapUsed
}
