package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	loadsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmedged",
			Subsystem: "lifecycle",
			Name:      "loads_total",
			Help:      "Total number of native model loads",
		},
		[]string{"family"},
	)

	evictionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmedged",
			Subsystem: "lifecycle",
			Name:      "evictions_total",
			Help:      "Total number of cache evictions",
		},
		[]string{"family"},
	)

	cancellationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llmedged",
			Subsystem: "lifecycle",
			Name:      "cancellations_total",
			Help:      "Total number of cancelled generations",
		},
		[]string{"family"},
	)

	residentGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llmedged",
			Subsystem: "lifecycle",
			Name:      "resident_bytes",
			Help:      "Estimated bytes of model weights resident in the cache",
		},
		[]string{"family"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llmedged",
			Subsystem: "lifecycle",
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of native generation calls",
			// Generations range from sub-second embeddings to multi-minute
			// video renders.
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"family", "outcome"},
	)

	generationThroughput = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "llmedged",
			Subsystem: "lifecycle",
			Name:      "generation_throughput",
			Help:      "Units per second of the last completed generation (tokens, steps or frames by family)",
		},
		[]string{"family"},
	)
)

func init() {
	prometheus.MustRegister(
		loadsCounter,
		evictionsCounter,
		cancellationsCounter,
		residentGauge,
		generationDuration,
		generationThroughput,
	)
}

func observeGeneration(gm GenerationMetrics) {
	f := string(gm.Family)
	generationDuration.WithLabelValues(f, gm.Outcome).Observe(gm.Elapsed.Seconds())
	if gm.Outcome == OutcomeSuccess && gm.Throughput > 0 {
		generationThroughput.WithLabelValues(f).Set(gm.Throughput)
	}
}
