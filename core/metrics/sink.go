package metrics

import (
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
)

// OutcomeEvent is one answered service request.
type OutcomeEvent struct {
	AssignmentID string
	UserID       int
	AgentID      *int
	Granted      bool
	Reason       string
	Latency      time.Duration
	Time         time.Time
}

// MetricsSink records service outcomes.
type MetricsSink interface {
	RecordOutcome(ev OutcomeEvent) error
}

// ProbeEvent is the result of one health probe.
type ProbeEvent struct {
	Target              string
	OK                  bool
	Latency             time.Duration
	ConsecutiveFailures int
	Time                time.Time
}

// ProbeRecorder records health probe results.
type ProbeRecorder interface {
	RecordProbe(ev ProbeEvent) error
}

// RegistrySizeRecorder records the number of known and available agents.
type RegistrySizeRecorder interface {
	RecordRegistrySize(total, available int) error
}

// RoleRecorder records the current dispatch role of the process.
type RoleRecorder interface {
	RecordRole(role model.Role) error
}

// FeedDropRecorder records rejected feed messages by topic.
type FeedDropRecorder interface {
	RecordFeedDrop(topic string) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOutcome(OutcomeEvent) error  { return nil }
func (NopSink) RecordProbe(ProbeEvent) error      { return nil }
func (NopSink) RecordRegistrySize(int, int) error { return nil }
func (NopSink) RecordRole(model.Role) error       { return nil }
func (NopSink) RecordFeedDrop(string) error       { return nil }
