package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request layer metrics
var (
	// Attempts against a single endpoint, by outcome: success, application_error, failure
	EndpointRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "rpcpool",
			Name:      "endpoint_requests_total",
			Help:      "Total requests sent to a single endpoint",
		},
		[]string{"network", "host", "outcome"},
	)

	EndpointRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletnet",
			Subsystem: "rpcpool",
			Name:      "endpoint_request_duration_seconds",
			Help:      "Single endpoint request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"network", "host"},
	)

	// Cursor moves caused by retryable failures
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "rpcpool",
			Name:      "rotations_total",
			Help:      "Total provider rotations after retryable failures",
		},
		[]string{"network"},
	)

	// Calls where every endpoint failed
	ExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "rpcpool",
			Name:      "exhausted_total",
			Help:      "Total calls that failed on every endpoint of a group",
		},
		[]string{"network", "operation"},
	)

	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "walletnet",
			Subsystem: "rpcpool",
			Name:      "cursor_position",
			Help:      "Index of the endpoint tried first by the next call",
		},
		[]string{"network"},
	)

	HealthCheckFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "rpcpool",
			Name:      "health_check_failures_total",
			Help:      "Total failed background endpoint probes",
		},
		[]string{"network", "host"},
	)
)

// Persistent connection metrics
var (
	// Dial attempts by outcome: success, failure, superseded
	ConnectionDialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "wsconn",
			Name:      "dials_total",
			Help:      "Total persistent connection dial attempts",
		},
		[]string{"host", "outcome"},
	)

	// Disconnects by reason: explicit, idle, ping_failure, io_error, closed
	ConnectionDisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "wsconn",
			Name:      "disconnects_total",
			Help:      "Total persistent connection disconnects",
		},
		[]string{"host", "reason"},
	)

	ConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "walletnet",
			Subsystem: "wsconn",
			Name:      "open",
			Help:      "Currently established persistent connections",
		},
		[]string{"host"},
	)

	KeepalivePingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "wsconn",
			Name:      "keepalive_pings_total",
			Help:      "Total keepalive pings by outcome",
		},
		[]string{"host", "outcome"},
	)
)

// Snapshot job metrics
var (
	SnapshotsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walletnet",
			Subsystem: "stats",
			Name:      "snapshots_written_total",
			Help:      "Total endpoint stats rows persisted",
		},
	)
)
