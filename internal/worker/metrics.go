package worker

import "github.com/prometheus/client_golang/prometheus"

// Label values for the mode and outcome dimensions.
const (
	modeStream   = "stream"
	modeGenerate = "generate"
	modeUnknown  = "unknown"

	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeAbandoned = "abandoned"
)

var (
	inflightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tgiworker",
			Subsystem: "worker",
			Name:      "inflight_requests",
			Help:      "Jobs currently between counter increment and decrement",
		},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tgiworker",
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Finished job lifecycles by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tgiworker",
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "Wall-clock duration of job lifecycles in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"mode"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tgiworker",
			Subsystem: "worker",
			Name:      "stream_tokens_total",
			Help:      "Streamed tokens by disposition (emitted or suppressed special tokens)",
		},
		[]string{"disposition"},
	)

	rejectedParamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tgiworker",
			Subsystem: "worker",
			Name:      "rejected_params_total",
			Help:      "Generation parameters dropped because the target operation does not accept them",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(inflightRequests, requestsTotal, requestDuration, tokensTotal, rejectedParamsTotal)
}

func setInflight(v int64) { inflightRequests.Set(float64(v)) }

func countRejected(scope, _ string) { rejectedParamsTotal.WithLabelValues(scope).Inc() }
