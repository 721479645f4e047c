package events

import (
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
)

// RoleChangedEvent is published when a server is promoted.
type RoleChangedEvent struct {
	From model.Role
	To   model.Role
	At   time.Time
}

// OutcomeEvent is published for each answered service request.
type OutcomeEvent struct {
	AssignmentID string
	Request      model.ServiceRequest
	Outcome      model.ServiceOutcome
	At           time.Time
}

// FeedDropEvent is published when ingestion rejects a message.
type FeedDropEvent struct {
	Topic   string
	AgentID int
	Err     error
}
