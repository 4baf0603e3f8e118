package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clientRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firestore_client_requests_total",
			Help: "Total number of Firestore RPC attempts by final status code",
		},
		[]string{"rpc", "code"},
	)

	clientRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firestore_client_request_duration_seconds",
			Help:    "Firestore RPC attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rpc"},
	)

	clientRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firestore_client_retries_total",
			Help: "Total number of Firestore RPC retries",
		},
		[]string{"rpc"},
	)
)

// ObserveRPC records one RPC attempt.
func ObserveRPC(rpc, code string, d time.Duration) {
	clientRequestsTotal.WithLabelValues(rpc, code).Inc()
	clientRequestDuration.WithLabelValues(rpc).Observe(d.Seconds())
}

// ObserveRetry records a retry of rpc.
func ObserveRetry(rpc string) {
	clientRetriesTotal.WithLabelValues(rpc).Inc()
}
