package dispatch

import "errors"

var (
	// ErrAssignTimeout is returned when an agent does not answer the
	// assignment exchange before the deadline.
	ErrAssignTimeout = errors.New("assignment timeout")
	// ErrAssignConnection is returned when the agent cannot be reached or
	// answers with a failure.
	ErrAssignConnection = errors.New("assignment connection error")
)
