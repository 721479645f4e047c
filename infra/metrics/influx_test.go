package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.lines = append(l.lines, strings.TrimSpace(string(b)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInfluxSink_RecordOutcome(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	now := time.Now()
	agent := 2
	ev := coremetrics.OutcomeEvent{AssignmentID: "a1", UserID: 7, AgentID: &agent, Granted: true, Latency: 1500 * time.Microsecond, Time: now}
	require.NoError(t, sink.RecordOutcome(ev))

	p := write.NewPointWithMeasurement("service_outcome").
		AddTag("granted", "true").
		AddTag("assignment_id", "a1").
		AddTag("agent_id", "2").
		AddField("user_id", 7).
		AddField("latency_ms", 1.5).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	require.Len(t, rec.lines, 1)
	assert.Equal(t, expected, rec.lines[0])
}

func TestInfluxSink_RecordProbeAndRole(t *testing.T) {
	var rec lineRecorder
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()

	require.NoError(t, sink.RecordProbe(coremetrics.ProbeEvent{Target: "127.0.0.1:5558", OK: false, ConsecutiveFailures: 2, Time: time.Now()}))
	require.NoError(t, sink.RecordRole(model.RolePrimary))
	require.Len(t, rec.lines, 2)
	assert.True(t, strings.HasPrefix(rec.lines[0], "health_probe,"))
	assert.Contains(t, rec.lines[0], "consecutive_failures=2i")
	assert.Contains(t, rec.lines[1], `role="primary"`)
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}
