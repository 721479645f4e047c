// Package transport carries the request/reply channels over HTTP/1.1: user
// requests, health probes, activation signals and assignment exchanges. Every
// reply body is plain text.
package transport

import (
	"strconv"

	"github.com/kilianp07/taxidispatch/core/model"
)

// Paths served by the dispatch and agent processes.
const (
	PathRequest  = "/v1/requests"
	PathPing     = "/ping"
	PathActivate = "/activate"
	PathAssign   = "/assign"

	HeaderAssignmentID = "X-Assignment-ID"
)

// Fixed message bodies.
const (
	MsgPing           = "ping"
	MsgPong           = "pong"
	MsgAssign         = "service assigned"
	MsgNotPrimary     = "not primary"
	MsgMalformed      = "malformed request"
	MsgAssignAccepted = "accepted"
)

const maxBody = 4 << 10

// FormatOutcome renders an outcome as the user reply.
func FormatOutcome(out model.ServiceOutcome) string {
	switch {
	case out.Granted && out.AgentID != nil:
		return strconv.Itoa(*out.AgentID) + " assigned"
	case out.Reason == model.ReasonNoAgents:
		return model.ReasonNoAgents
	default:
		return "error: " + out.Reason
	}
}
