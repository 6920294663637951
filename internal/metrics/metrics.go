package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels calls that returned a payload.
	OutcomeSuccess = "success"
	// OutcomeServerError labels {success:false} payloads.
	OutcomeServerError = "server_error"
	// OutcomeTransport labels calls whose response never loaded.
	OutcomeTransport = "transport_error"
	// OutcomeTimeout labels calls that hit the client timeout.
	OutcomeTimeout = "timeout"
)

var (
	rpcCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stinkmap",
			Name:      "rpc_calls_total",
			Help:      "Endpoint calls, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	rpcDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stinkmap",
			Name:      "rpc_seconds",
			Help:      "Endpoint round-trip latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"operation"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stinkmap",
			Name:      "submissions_total",
			Help:      "Submission attempts, partitioned by gate result.",
		},
		[]string{"result"},
	)

	recordsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stinkmap",
			Name:      "records",
			Help:      "Records held after the last successful refresh.",
		},
	)

	malformedRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stinkmap",
			Name:      "malformed_records",
			Help:      "Records in the working set rendered with fallback values.",
		},
	)
)

// Register attaches stinkmap collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		rpcCallsTotal,
		rpcDurationSeconds,
		submissionsTotal,
		recordsLoaded,
		malformedRecords,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCall records one endpoint call.
func ObserveCall(operation, outcome string, duration time.Duration) {
	rpcCallsTotal.WithLabelValues(operation, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	rpcDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveSubmission counts a gate decision.
func ObserveSubmission(allowed bool) {
	result := "blocked"
	if allowed {
		result = "allowed"
	}
	submissionsTotal.WithLabelValues(result).Inc()
}

// SetRecords publishes the working-set size and its malformed share.
func SetRecords(total, malformed int) {
	recordsLoaded.Set(float64(total))
	malformedRecords.Set(float64(malformed))
}
