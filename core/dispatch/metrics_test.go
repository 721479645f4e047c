package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)

	requestsTotal.WithLabelValues("granted", "").Inc()
	assignLatency.WithLabelValues("granted").Observe(0.1)
	ObserveRegistry(3, 1)
	snapshotFailures.Inc()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, n := range []string{
		"dispatch_requests_total",
		"dispatch_response_seconds",
		"dispatch_registry_agents",
		"dispatch_snapshot_write_failures_total",
	} {
		assert.True(t, names[n], "metric %s not registered", n)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(registryAgents.WithLabelValues("busy")))
}
