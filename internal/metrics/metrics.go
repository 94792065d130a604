package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracker protocol engine
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total requests answered by the tracker engine",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "Tracker request handling duration",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	FramingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_framing_errors_total",
			Help: "Connections closed without a response because the request could not be framed",
		},
		[]string{"reason"},
	)

	HookFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_hook_faults_total",
			Help: "Route hooks that failed and fell back to static resolution",
		},
	)

	// Business metrics
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"}, // "success" or "failure"
	)

	PeersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_peers_registered_total",
			Help: "Total peer registrations",
		},
	)

	PeersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_peers_evicted_total",
			Help: "Peers evicted after missing heartbeats",
		},
	)

	OfflineEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_offline_enqueued_total",
			Help: "Messages stored for unreachable recipients",
		},
	)

	OfflineDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_offline_drained_total",
			Help: "Offline messages handed to recipients",
		},
	)
)
