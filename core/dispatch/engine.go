package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/taxidispatch/core/events"
	"github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/internal/eventbus"
)

// Assigner performs the synchronous assignment exchange with one agent. It
// returns the agent's reply or an error wrapping ErrAssignTimeout or
// ErrAssignConnection.
type Assigner interface {
	Assign(ctx context.Context, agent model.AgentRecord, assignmentID string) (string, error)
}

// Engine picks the nearest available agent for a request and drives the
// assignment exchange. It never retries with a second agent.
type Engine struct {
	state    *State
	assigner Assigner
	timeout  time.Duration
	log      logger.Logger
	journal  journal.Store
	metrics  metrics.MetricsSink
	bus      eventbus.EventBus[events.Event]
	now      func() time.Time
}

// NewEngine creates an engine over state. A non-positive timeout defaults to
// five seconds.
func NewEngine(state *State, assigner Assigner, timeout time.Duration, log logger.Logger) *Engine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Engine{
		state:    state,
		assigner: assigner,
		timeout:  timeout,
		log:      log,
		journal:  journal.NopStore{},
		metrics:  metrics.NopSink{},
		now:      time.Now,
	}
}

// SetJournal configures the store receiving one record per answered request.
func (e *Engine) SetJournal(j journal.Store) {
	if j != nil {
		e.journal = j
	}
}

// SetMetricsSink configures the sink receiving outcome events.
func (e *Engine) SetMetricsSink(s metrics.MetricsSink) {
	if s != nil {
		e.metrics = s
	}
}

// SetEventBus configures the bus receiving OutcomeEvents.
func (e *Engine) SetEventBus(b eventbus.EventBus[events.Event]) { e.bus = b }

// Timeout returns the assignment deadline.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Assign answers one request. Every call increments exactly one counter and
// rewrites the snapshot.
func (e *Engine) Assign(ctx context.Context, req model.ServiceRequest) model.ServiceOutcome {
	start := e.now()
	id := uuid.NewString()
	out := e.assign(ctx, req, id)
	out.Latency = e.now().Sub(start)

	stats := e.state.RecordOutcome(out)
	e.observe(id, start, req, out)
	e.log.Debugw("request answered", map[string]any{
		"assignment_id": id,
		"user_id":       req.UserID,
		"granted":       out.Granted,
		"reason":        out.Reason,
		"granted_total": stats.Granted,
		"denied_total":  stats.Denied,
	})
	return out
}

func (e *Engine) assign(ctx context.Context, req model.ServiceRequest, id string) model.ServiceOutcome {
	agent, ok := SelectNearest(e.state.Candidates(), req.Position())
	if !ok {
		e.log.Infof("user %d: no agents available", req.UserID)
		return model.Denied(model.ReasonNoAgents, nil)
	}
	e.log.Infof("user %d at (%g,%g): offering service to agent %d at %s (distance %g)",
		req.UserID, req.X, req.Y, agent.ID, agent.Address, ManhattanDistance(agent.Position(), req.Position()))

	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	reply, err := e.assigner.Assign(actx, agent, id)
	if err != nil {
		reason := classify(err)
		e.log.Warnf("assignment %s to agent %d failed: %v", id, agent.ID, err)
		agentID := agent.ID
		return model.Denied(reason, &agentID)
	}
	e.log.Infof("agent %d accepted assignment %s: %q", agent.ID, id, reply)
	return model.Granted(agent.ID)
}

func classify(err error) string {
	if errors.Is(err, ErrAssignTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return model.ReasonTimeout
	}
	return model.ReasonConnection
}

func (e *Engine) observe(id string, at time.Time, req model.ServiceRequest, out model.ServiceOutcome) {
	label := "granted"
	if !out.Granted {
		label = "denied"
	}
	requestsTotal.WithLabelValues(label, out.Reason).Inc()
	assignLatency.WithLabelValues(label).Observe(out.Latency.Seconds())

	if err := e.journal.Append(context.Background(), journal.NewRecord(id, at, req, out)); err != nil {
		e.log.Errorf("journal append failed: %v", err)
	}
	if err := e.metrics.RecordOutcome(metrics.OutcomeEvent{
		AssignmentID: id,
		UserID:       req.UserID,
		AgentID:      out.AgentID,
		Granted:      out.Granted,
		Reason:       out.Reason,
		Latency:      out.Latency,
		Time:         at,
	}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
	if e.bus != nil {
		e.bus.Publish(events.OutcomeEvent{AssignmentID: id, Request: req, Outcome: out, At: at})
	}
}
