// Package health implements the probe loop that watches the primary and
// activates the replica once the primary stops answering.
//
// It runs in its own process so a crashed primary cannot take its own
// failure detection down with it.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/taxidispatch/core/failover"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/metrics"
)

// State of the monitor.
type State int

const (
	StateProbing State = iota
	StateSignaling
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateProbing:
		return "PROBING_PRIMARY"
	case StateSignaling:
		return "SIGNALING_REPLICA"
	case StateIdle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// ErrBadReply is returned by probers that received something other than the
// expected pong.
var ErrBadReply = errors.New("unexpected probe reply")

// Prober sends one liveness request to the primary.
type Prober interface {
	Ping(ctx context.Context) error
}

// Activator sends the activation signal to the replica.
type Activator interface {
	Activate(ctx context.Context) (failover.Ack, error)
}

// Monitor probes the primary until the replica has been activated.
type Monitor struct {
	prober    Prober
	activator Activator
	cfg       Config
	log       logger.Logger
	sink      metrics.MetricsSink
	target    string
	wait      func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	state       State
	failures    int
	activations int
}

// NewMonitor creates a monitor. target only labels logs and metrics.
func NewMonitor(target string, p Prober, a Activator, cfg Config, log logger.Logger) *Monitor {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Monitor{
		prober:    p,
		activator: a,
		cfg:       cfg,
		log:       log,
		sink:      metrics.NopSink{},
		target:    target,
		wait:      sleep,
	}
}

// SetMetricsSink configures the sink receiving probe results.
func (m *Monitor) SetMetricsSink(s metrics.MetricsSink) {
	if s != nil {
		m.sink = s
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failures returns the current consecutive failure count.
func (m *Monitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Activations returns how many activation signals were sent.
func (m *Monitor) Activations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activations
}

// Run probes until the replica acknowledges activation or ctx is done. It
// returns nil once the monitor retires.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Infof("health monitor watching %s (threshold %d, probe timeout %s)",
		m.target, m.cfg.FailureThreshold, ms(m.cfg.ProbeTimeoutMS))
	for {
		st, pause := m.Step(ctx)
		if st == StateIdle {
			m.log.Infof("replica active, health monitor retiring")
			return nil
		}
		if err := m.wait(ctx, pause); err != nil {
			return err
		}
	}
}

// Step performs one probe, and the activation exchange when the threshold is
// reached. It returns the resulting state and the pause before the next step.
func (m *Monitor) Step(ctx context.Context) (State, time.Duration) {
	if st := m.State(); st == StateIdle {
		return st, 0
	}
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, ms(m.cfg.ProbeTimeoutMS))
	err := m.prober.Ping(pctx)
	cancel()

	m.mu.Lock()
	if err == nil {
		m.failures = 0
	} else {
		m.failures++
	}
	failures := m.failures
	m.mu.Unlock()
	m.recordProbe(err == nil, time.Since(start), failures)

	if err == nil {
		m.log.Debugf("primary %s answered", m.target)
		return StateProbing, ms(m.cfg.ProbeIntervalMS)
	}
	m.log.Warnf("primary %s did not answer (%d/%d): %v", m.target, failures, m.cfg.FailureThreshold, err)
	if failures < m.cfg.FailureThreshold {
		return StateProbing, ms(m.cfg.RetryIntervalMS)
	}
	return m.signal(ctx), ms(m.cfg.RetryIntervalMS)
}

func (m *Monitor) signal(ctx context.Context) State {
	m.mu.Lock()
	m.state = StateSignaling
	m.activations++
	m.mu.Unlock()
	m.log.Errorf("primary %s unresponsive, activating replica", m.target)

	actx, cancel := context.WithTimeout(ctx, ms(m.cfg.ActivationTimeoutMS))
	ack, err := m.activator.Activate(actx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil && ack.Success() {
		m.log.Infof("replica acknowledged activation: %s", ack)
		m.state = StateIdle
		return m.state
	}
	if err != nil {
		m.log.Errorf("replica activation failed: %v", err)
	} else {
		m.log.Errorf("replica refused activation: %s", ack)
	}
	m.failures = 0
	m.state = StateProbing
	return m.state
}

func (m *Monitor) recordProbe(ok bool, lat time.Duration, failures int) {
	r, has := m.sink.(metrics.ProbeRecorder)
	if !has {
		return
	}
	if err := r.RecordProbe(metrics.ProbeEvent{
		Target:              m.target,
		OK:                  ok,
		Latency:             lat,
		ConsecutiveFailures: failures,
		Time:                time.Now(),
	}); err != nil {
		m.log.Errorf("probe metrics error: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
