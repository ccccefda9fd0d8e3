package lifecycle

import (
	"context"
	"time"

	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// EnsureLoaded returns a ready native handle for the model, loading it if it
// is not resident. On a cache hit the handle is returned immediately. On a
// miss, conflicting heavy families are unloaded first, a fresh LoadPlan is
// computed from live memory readings, and the loaded handle is inserted into
// the cache (evicting older entries if over budget).
//
// A nil or failed native load is a fatal LoadFailure for this request; it is
// not retried and the family slot resets so a future request loads fresh.
func (m *Manager) EnsureLoaded(ctx context.Context, mdl types.Model, prefs Preferences) (engine.Handle, error) {
	identity := IdentityFor(mdl)

	m.cacheMu.Lock()
	if entry := m.cache.Get(identity); entry != nil {
		s := m.slot(mdl.Family)
		if s.state != StateGenerating {
			s.state = StateReady
		}
		s.identity = identity
		m.cacheMu.Unlock()
		return entry.Handle, nil
	}
	m.cacheMu.Unlock()

	// Loads are heavy and the device is memory-constrained: one native load
	// at a time, regardless of family.
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	// Another request may have loaded it while we waited.
	m.cacheMu.Lock()
	if entry := m.cache.Get(identity); entry != nil {
		m.cacheMu.Unlock()
		return entry.Handle, nil
	}
	s := m.slot(mdl.Family)
	s.state = StateLoading
	s.identity = identity
	s.err = ""
	m.cacheMu.Unlock()

	if mdl.Family.Heavy() && m.crossEvict {
		if err := m.unloadConflicting(ctx, mdl.Family); err != nil {
			m.setSlot(mdl.Family, StateError, err.Error())
			return nil, err
		}
	}

	size, err := engine.EstimateWeightBytes(mdl.Path)
	if err != nil {
		m.setSlot(mdl.Family, StateError, err.Error())
		return nil, ErrLoadFailure(identity, err)
	}

	snap, probeErr := m.probe()
	if m.perfMode {
		prefs.PreferPerformance = true
	}
	plan := m.selector.SelectPlan(size, snap, probeErr, prefs)

	m.log.Info().Str("model", identity.String()).Str("family", string(mdl.Family)).
		Int64("est_bytes", size).Bool("staged", plan.Staged).
		Int("threads", plan.Threads).Bool("gpu", plan.UseGPU).Msg("loading")
	m.publisher.Publish(Event{Name: "load_start", Model: identity.String(), Fields: map[string]any{
		"family": string(mdl.Family), "est_bytes": size, "staged": plan.Staged,
	}})

	start := time.Now()
	handle, err := m.engine.Load(ctx, engine.LoadSpec{
		Path:        mdl.Path,
		AuxPath:     mdl.AuxPath,
		DecoderPath: mdl.DecoderPath,
		Family:      mdl.Family,
		Staged:      plan.Staged,
		Threads:     plan.Threads,
		ContextSize: m.contextSize,
		UseGPU:      plan.UseGPU,
		UseMmap:     plan.UseMmap,
		UseMlock:    plan.UseMlock,
	})
	if err == nil && handle == nil {
		err = ErrLoadFailure(identity, errNilHandle)
	}
	if err != nil {
		m.setSlot(mdl.Family, StateError, err.Error())
		m.log.Error().Err(err).Str("model", identity.String()).Msg("load failed")
		m.publisher.Publish(Event{Name: "load_error", Model: identity.String(), Fields: map[string]any{
			"error": err.Error(),
		}})
		if IsLoadFailure(err) {
			return nil, err
		}
		return nil, ErrLoadFailure(identity, err)
	}
	dur := time.Since(start)

	m.cacheMu.Lock()
	m.cache.Put(&CacheEntry{
		Identity:     identity,
		Handle:       handle,
		Family:       mdl.Family,
		SizeBytes:    size,
		Plan:         plan,
		LoadDuration: dur,
	})
	s = m.slot(mdl.Family)
	s.state = StateReady
	s.identity = identity
	s.err = ""
	m.cacheMu.Unlock()

	m.loadsTotal.Add(1)
	loadsCounter.WithLabelValues(string(mdl.Family)).Inc()
	residentGauge.WithLabelValues(string(mdl.Family)).Add(float64(size))

	m.log.Info().Str("model", identity.String()).Dur("dur", dur).Msg("loaded")
	m.publisher.Publish(Event{Name: "load_ready", Model: identity.String(), Fields: map[string]any{
		"dur_ms": dur.Milliseconds(),
	}})
	return handle, nil
}

// unloadConflicting evicts every other heavy family so at most one heavy
// family is resident at a time. Each unload runs under that family's own
// gate to avoid racing an in-flight generation.
func (m *Manager) unloadConflicting(ctx context.Context, loading types.Family) error {
	for _, f := range []types.Family{types.FamilyText, types.FamilyImage, types.FamilyVideo} {
		if f == loading || gateFamily(f) == gateFamily(loading) {
			continue
		}
		m.cacheMu.Lock()
		resident := m.cache.Len(f) > 0
		m.cacheMu.Unlock()
		if !resident {
			continue
		}
		if err := m.Unload(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
