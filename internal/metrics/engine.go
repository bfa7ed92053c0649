package metrics

import "github.com/prometheus/client_golang/prometheus"

// Planner and weather provider metrics.
var (
	PlanRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "plan_runs_total",
			Help:      "Total number of 72h planning runs",
		},
		[]string{"status"}, // "success" / "error"
	)

	PlanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aetheris",
			Name:      "plan_duration_seconds",
			Help:      "End-to-end planning run duration (weather fetch included)",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	WeatherRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aetheris",
			Name:      "weather_requests_total",
			Help:      "Total forecast fetches against the weather provider",
		},
		[]string{"status"}, // "success" / "error"
	)
)

var engineMetricsRegistered bool

// RegisterEngineMetrics registers planner and weather metrics. Must be called once from main.
func RegisterEngineMetrics() {
	if engineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PlanRunsTotal)
	prometheus.MustRegister(PlanDuration)
	prometheus.MustRegister(WeatherRequestsTotal)
	engineMetricsRegistered = true
}
