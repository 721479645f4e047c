package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal    *prometheus.CounterVec
	assignLatency    *prometheus.HistogramVec
	registryAgents   *prometheus.GaugeVec
	snapshotFailures prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.GaugeVec, prometheus.Counter) {
	req := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Number of answered service requests",
		},
		[]string{"outcome", "reason"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_response_seconds",
			Help:    "Time from request to answer, including the assignment exchange",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	agents := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_registry_agents",
			Help: "Number of agents known to the registry",
		},
		[]string{"status"},
	)
	snap := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_snapshot_write_failures_total",
			Help: "Number of failed snapshot writes",
		},
	)
	return req, lat, agents, snap
}

func init() {
	requestsTotal, assignLatency, registryAgents, snapshotFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(requestsTotal, assignLatency, registryAgents, snapshotFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	requestsTotal, assignLatency, registryAgents, snapshotFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

// ObserveRegistry publishes the registry size gauges.
func ObserveRegistry(total, available int) {
	registryAgents.WithLabelValues("available").Set(float64(available))
	registryAgents.WithLabelValues("busy").Set(float64(total - available))
}
