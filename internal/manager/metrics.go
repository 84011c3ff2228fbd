package manager

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// generationMetrics are registered on the Registerer passed in
// ManagerConfig.Metrics. With a nil Registerer the collectors still count but
// are not exported.
type generationMetrics struct {
	requests   *prometheus.CounterVec
	attempts   *prometheus.HistogramVec
	duration   *prometheus.HistogramVec
	stops      *prometheus.CounterVec
	modelLoads prometheus.Counter
	rejected   prometheus.Counter
}

func newGenerationMetrics(reg prometheus.Registerer) *generationMetrics {
	gm := &generationMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "structd",
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Generation requests by backend and outcome kind.",
			},
			[]string{"backend", "outcome"},
		),
		attempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "structd",
				Subsystem: "generation",
				Name:      "attempts",
				Help:      "Attempts needed for a successful structured generation.",
				Buckets:   []float64{1, 2, 3, 4, 5},
			},
			[]string{"backend"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "structd",
				Subsystem: "generation",
				Name:      "duration_seconds",
				Help:      "Wall time of generation requests.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"backend"},
		),
		stops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "structd",
				Subsystem: "generation",
				Name:      "stops_total",
				Help:      "Stop signals that interrupted an in-flight request, by reason.",
			},
			[]string{"reason"},
		),
		modelLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "structd",
			Name:      "model_loads_total",
			Help:      "Local model loads, including reloads after a force stop.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "structd",
			Subsystem: "generation",
			Name:      "rejected_total",
			Help:      "Requests rejected by admission control.",
		}),
	}
	if reg == nil {
		return gm
	}
	for _, c := range []prometheus.Collector{gm.requests, gm.attempts, gm.duration, gm.stops, gm.modelLoads, gm.rejected} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
	return gm
}
