package lifecycle

import (
	"context"
	"runtime"
	"time"

	"llmedged/pkg/types"
)

// Unload closes every resident model of the family and resets its slot. Runs
// under the family's generation gate so it never rips a handle out from under
// an in-flight call; a queued generation that enters afterwards simply loads
// fresh.
//
// After closing, a garbage collection is requested and the manager yields
// briefly so the native allocator actually returns pages before the next
// memory reading is taken.
func (m *Manager) Unload(ctx context.Context, family types.Family) error {
	return m.coord.withGenerationLock(ctx, family, func() error {
		m.cacheMu.Lock()
		had := m.cache.Len(family) > 0
		m.cache.Clear(family)
		s := m.slot(family)
		s.state = StateUnloaded
		s.identity = ModelIdentity{}
		s.err = ""
		m.cacheMu.Unlock()

		if had {
			runtime.GC()
			if m.reclaimPause > 0 {
				select {
				case <-time.After(m.reclaimPause):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			m.log.Info().Str("family", string(family)).Msg("unloaded")
			m.publisher.Publish(Event{Name: "unloaded", Fields: map[string]any{"family": string(family)}})
		}
		return nil
	})
}

// UnloadAll unloads every family. Used at shutdown and by the reset endpoint.
func (m *Manager) UnloadAll(ctx context.Context) error {
	for _, f := range []types.Family{
		types.FamilyText, types.FamilyImage, types.FamilyVideo,
		types.FamilyTranscribe, types.FamilyEmbedding,
	} {
		if err := m.Unload(ctx, f); err != nil {
			return err
		}
	}
	return nil
}
