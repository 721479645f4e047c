package model

import (
	"fmt"
	"time"
)

// RequestSchemaVersion is the only user request schema version accepted.
const RequestSchemaVersion = 1

// ServiceRequest is a user's request for an agent at a position.
type ServiceRequest struct {
	Version int     `json:"version"`
	UserID  int     `json:"user_id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// Position returns where the user is waiting.
func (r ServiceRequest) Position() Position { return Position{X: r.X, Y: r.Y} }

// Validate checks the schema version.
func (r ServiceRequest) Validate() error {
	if r.Version != RequestSchemaVersion {
		return fmt.Errorf("unsupported request version %d", r.Version)
	}
	return nil
}

// Denial reasons reported to users.
const (
	ReasonNoAgents   = "no agents available"
	ReasonTimeout    = "timeout"
	ReasonConnection = "connection error"
)

// ServiceOutcome is the result of one dispatch attempt. It is never stored as
// an entity; it only feeds the counters, the journal and the reply.
type ServiceOutcome struct {
	Granted bool          `json:"granted"`
	AgentID *int          `json:"agent_id,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Latency time.Duration `json:"-"`
}

// Granted builds a successful outcome for the given agent.
func Granted(agentID int) ServiceOutcome {
	return ServiceOutcome{Granted: true, AgentID: &agentID}
}

// Denied builds a denial. agentID is nil when no agent was selected.
func Denied(reason string, agentID *int) ServiceOutcome {
	return ServiceOutcome{Granted: false, AgentID: agentID, Reason: reason}
}
