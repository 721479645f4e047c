package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
)

// PromSink records dispatch and health events in Prometheus metrics.
type PromSink struct {
	outcomes  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	probes    *prometheus.CounterVec
	failures  prometheus.Gauge
	agents    *prometheus.GaugeVec
	role      prometheus.Gauge
	feedDrops *prometheus.CounterVec
}

// NewPromSink registers the sink metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_service_outcomes_total",
			Help: "Answered service requests by agent and result",
		}, []string{"agent_id", "granted", "reason"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taxi_service_latency_seconds",
			Help:    "Time between request arrival and reply",
			Buckets: prometheus.DefBuckets,
		}, []string{"granted"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_health_probes_total",
			Help: "Health probes sent to the active server",
		}, []string{"target", "ok"}),
		failures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxi_health_consecutive_failures",
			Help: "Current run of failed health probes",
		}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "taxi_registry_agents",
			Help: "Agents known to the registry",
		}, []string{"status"}),
		role: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taxi_server_primary",
			Help: "1 when this process serves as primary",
		}),
		feedDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taxi_feed_dropped_total",
			Help: "Feed messages rejected by ingestion",
		}, []string{"topic"}),
	}
	var err error
	if s.outcomes, err = register(reg, s.outcomes); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.probes, err = register(reg, s.probes); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, s.failures); err != nil {
		return nil, err
	}
	if s.agents, err = register(reg, s.agents); err != nil {
		return nil, err
	}
	if s.role, err = register(reg, s.role); err != nil {
		return nil, err
	}
	if s.feedDrops, err = register(reg, s.feedDrops); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOutcome counts the outcome and observes its latency.
func (s *PromSink) RecordOutcome(ev coremetrics.OutcomeEvent) error {
	agent := "none"
	if ev.AgentID != nil {
		agent = strconv.Itoa(*ev.AgentID)
	}
	granted := strconv.FormatBool(ev.Granted)
	s.outcomes.WithLabelValues(agent, granted, ev.Reason).Inc()
	s.latency.WithLabelValues(granted).Observe(ev.Latency.Seconds())
	return nil
}

// RecordProbe counts the probe and exposes the failure run.
func (s *PromSink) RecordProbe(ev coremetrics.ProbeEvent) error {
	s.probes.WithLabelValues(ev.Target, strconv.FormatBool(ev.OK)).Inc()
	s.failures.Set(float64(ev.ConsecutiveFailures))
	return nil
}

// RecordRegistrySize sets the agent gauges.
func (s *PromSink) RecordRegistrySize(total, available int) error {
	s.agents.WithLabelValues(string(model.StatusAvailable)).Set(float64(available))
	s.agents.WithLabelValues(string(model.StatusBusy)).Set(float64(total - available))
	return nil
}

// RecordRole sets the primary gauge.
func (s *PromSink) RecordRole(role model.Role) error {
	if role == model.RolePrimary {
		s.role.Set(1)
	} else {
		s.role.Set(0)
	}
	return nil
}

// RecordFeedDrop counts a rejected feed message.
func (s *PromSink) RecordFeedDrop(topic string) error {
	s.feedDrops.WithLabelValues(topic).Inc()
	return nil
}
