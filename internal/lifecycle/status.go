package lifecycle

import (
	"sort"
	"time"

	"llmedged/pkg/types"
)

// Status assembles the daemon-wide view served by GET /status: resident
// models, per-family slot states, lifetime counters, and the last
// generation's metrics.
func (m *Manager) Status() types.StatusResponse {
	m.cacheMu.Lock()
	residents := m.cache.Residents()
	families := make([]types.FamilyStatus, 0, len(m.slots))
	for f, s := range m.slots {
		families = append(families, types.FamilyStatus{
			Family: f,
			State:  string(s.state),
			Error:  s.err,
		})
	}
	m.cacheMu.Unlock()

	sort.Slice(families, func(i, j int) bool { return families[i].Family < families[j].Family })

	rs := make([]types.ResidentModel, 0, len(residents))
	for _, e := range residents {
		rs = append(rs, types.ResidentModel{
			Path:      e.Identity.Path,
			Family:    e.Family,
			SizeBytes: e.SizeBytes,
			LoadMS:    e.LoadDuration.Milliseconds(),
			LastUsed:  e.LastUsed.Unix(),
		})
	}

	last := m.Metrics()
	now := time.Now()
	return types.StatusResponse{
		Residents:          rs,
		Families:           families,
		EvictionsTotal:     m.evictionsTotal.Load(),
		LoadsTotal:         m.loadsTotal.Load(),
		CancellationsTotal: m.cancellationsTotal.Load(),
		LastGeneration: types.MetricsSnapshot{
			Family:        last.Family,
			ElapsedMS:     last.Elapsed.Milliseconds(),
			Throughput:    last.Throughput,
			PeakHeapBytes: last.PeakHeapBytes,
			Backend:       last.Backend,
		},
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}
