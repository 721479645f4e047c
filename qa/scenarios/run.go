package scenarios

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/persistence"
	"github.com/kilianp07/taxidispatch/infra/logger"
	"github.com/kilianp07/taxidispatch/infra/metrics"
	"github.com/kilianp07/taxidispatch/infra/transport"
)

type scriptedAssigner struct {
	fail map[int]error
}

func (s scriptedAssigner) Assign(_ context.Context, a model.AgentRecord, _ string) (string, error) {
	if err, ok := s.fail[a.ID]; ok {
		return "", err
	}
	return "accepted", nil
}

func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	asg := scriptedAssigner{fail: map[int]error{}}
	for id, mode := range sc.FailAgents {
		asg.fail[id], _ = failureFor(mode)
	}

	store := &persistence.MemoryStore{}
	state := dispatch.NewState(store, logger.NopLogger{})
	for _, a := range sc.Agents {
		ingest(t, state, func() (feed.Message, error) { return feed.NewPosition(a.ToModel()) })
	}
	eng := dispatch.NewEngine(state, asg, 10*time.Millisecond, logger.NopLogger{})
	eng.SetMetricsSink(sink)

	for i, r := range sc.Requests {
		for _, id := range r.Busy {
			ingest(t, state, func() (feed.Message, error) { return feed.NewStatus(id, model.StatusBusy) })
		}
		for _, id := range r.Available {
			ingest(t, state, func() (feed.Message, error) { return feed.NewStatus(id, model.StatusAvailable) })
		}
		got := transport.FormatOutcome(eng.Assign(context.Background(), r.ToModel()))
		if got != r.Expect {
			t.Errorf("scenario %s request %d: expected %q, got %q", sc.Name, i, r.Expect, got)
		}
	}

	stats := state.Stats()
	if stats.Granted != sc.Expected.Granted || stats.Denied != sc.Expected.Denied {
		t.Errorf("scenario %s expected %d granted / %d denied, got %d / %d",
			sc.Name, sc.Expected.Granted, sc.Expected.Denied, stats.Granted, stats.Denied)
	}
	snap, err := store.Load()
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if snap.RequestsGranted != stats.Granted || snap.RequestsDenied != stats.Denied {
		t.Errorf("scenario %s snapshot counters %d / %d do not match state", sc.Name, snap.RequestsGranted, snap.RequestsDenied)
	}
	n, err := promtest.GatherAndCount(reg, "taxi_service_outcomes_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(sc.Requests) > 0 && n == 0 {
		t.Errorf("scenario %s recorded no outcome metrics", sc.Name)
	}
}

func ingest(t *testing.T, state *dispatch.State, build func() (feed.Message, error)) {
	t.Helper()
	msg, err := build()
	if err != nil {
		t.Fatalf("build feed message: %v", err)
	}
	if _, err := state.Ingest(msg); err != nil {
		t.Fatalf("ingest: %v", err)
	}
}
