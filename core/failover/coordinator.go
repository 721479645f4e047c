// Package failover implements the standby side of promotion: a replica waits
// in STANDBY, and one well-formed activation signal moves it through
// PROMOTING to ACTIVE. There is no way back.
package failover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/taxidispatch/core/events"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/internal/eventbus"
)

// Ack is the reply to an activation signal.
type Ack string

const (
	AckActivated     Ack = "OK_ACTIVATED"
	AckAlreadyActive Ack = "ALREADY_PRIMARY"
	AckError         Ack = "ERROR"
)

// ActivationSignal is the only accepted activation message.
const ActivationSignal = "ping"

// ParseAck decodes an activation reply.
func ParseAck(s string) (Ack, error) {
	switch a := Ack(strings.TrimSpace(s)); a {
	case AckActivated, AckAlreadyActive, AckError:
		return a, nil
	default:
		return "", fmt.Errorf("unexpected activation reply %q", s)
	}
}

// Success reports whether the replica is serving as primary after the reply.
func (a Ack) Success() bool { return a == AckActivated || a == AckAlreadyActive }

var (
	// ErrRebind is returned when the endpoints could not be moved to the
	// canonical ports.
	ErrRebind = errors.New("endpoint rebind failed")
	// ErrAlreadyActive is returned by Promote on an active coordinator.
	ErrAlreadyActive = errors.New("already active")
	// ErrMalformedSignal is returned for activation messages other than
	// ActivationSignal.
	ErrMalformedSignal = errors.New("malformed activation signal")
)

// State of the coordinator.
type State int

const (
	StateStandby State = iota
	StatePromoting
	StateActive
)

func (s State) String() string {
	switch s {
	case StateStandby:
		return "STANDBY"
	case StatePromoting:
		return "PROMOTING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Binder moves the serving endpoints to the canonical primary addresses and
// switches ingestion to dispatch mode. It must leave the old endpoints
// serving when it fails.
type Binder interface {
	Promote(ctx context.Context) error
}

// Coordinator holds the role of one server process. Transitions are
// serialized by mu; the state itself is read without blocking so the serving
// loop never waits on a promotion in progress.
type Coordinator struct {
	mu         sync.Mutex
	state      atomic.Int32
	binder     Binder
	log        logger.Logger
	bus        eventbus.EventBus[events.Event]
	promotedAt time.Time
}

// NewStandby returns a coordinator waiting for activation.
func NewStandby(binder Binder, log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &Coordinator{binder: binder, log: log}
	c.state.Store(int32(StateStandby))
	return c
}

// NewActive returns a coordinator for a process started as primary.
func NewActive(log logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &Coordinator{log: log, promotedAt: time.Now()}
	c.state.Store(int32(StateActive))
	return c
}

// SetEventBus configures the bus receiving RoleChangedEvents.
func (c *Coordinator) SetEventBus(b eventbus.EventBus[events.Event]) {
	c.mu.Lock()
	c.bus = b
	c.mu.Unlock()
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Role maps the state to a dispatch role. A promotion in progress still
// counts as standby.
func (c *Coordinator) Role() model.Role {
	if c.State() == StateActive {
		return model.RolePrimary
	}
	return model.RoleStandby
}

// HandleActivation answers one activation message.
func (c *Coordinator) HandleActivation(ctx context.Context, msg string) Ack {
	if strings.TrimSpace(msg) != ActivationSignal {
		c.log.Warnf("activation: %v: %q", ErrMalformedSignal, msg)
		return AckError
	}
	err := c.Promote(ctx)
	switch {
	case err == nil:
		return AckActivated
	case errors.Is(err, ErrAlreadyActive):
		c.log.Infof("activation: already active, acknowledging")
		return AckAlreadyActive
	default:
		c.log.Errorf("activation failed: %v", err)
		return AckError
	}
}

// Promote runs STANDBY -> PROMOTING -> ACTIVE. Concurrent callers are
// serialized: the second one observes the outcome of the first. A failed
// rebind returns to STANDBY so the signal can be retried.
func (c *Coordinator) Promote(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateActive {
		return ErrAlreadyActive
	}
	c.state.Store(int32(StatePromoting))
	c.log.Infof("promotion started")
	if c.binder != nil {
		if err := c.binder.Promote(ctx); err != nil {
			c.state.Store(int32(StateStandby))
			return fmt.Errorf("%w: %v", ErrRebind, err)
		}
	}
	c.promotedAt = time.Now()
	c.state.Store(int32(StateActive))
	c.log.Infof("promotion complete, serving as primary")
	if c.bus != nil {
		c.bus.Publish(events.RoleChangedEvent{From: model.RoleStandby, To: model.RolePrimary, At: c.promotedAt})
	}
	return nil
}

// PromotedAt returns when the coordinator became active.
func (c *Coordinator) PromotedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promotedAt
}
