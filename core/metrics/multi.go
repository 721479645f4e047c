package metrics

import "github.com/kilianp07/taxidispatch/core/model"

// MultiSink fans events out to several sinks. Each method returns the first
// error encountered; optional recorders are only called on sinks that
// implement them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordOutcome(ev OutcomeEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordOutcome(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordProbe(ev ProbeEvent) error {
	for _, s := range m.Sinks {
		if r, ok := s.(ProbeRecorder); ok {
			if err := r.RecordProbe(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordRegistrySize(total, available int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(RegistrySizeRecorder); ok {
			if err := r.RecordRegistrySize(total, available); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordRole(role model.Role) error {
	for _, s := range m.Sinks {
		if r, ok := s.(RoleRecorder); ok {
			if err := r.RecordRole(role); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordFeedDrop(topic string) error {
	for _, s := range m.Sinks {
		if r, ok := s.(FeedDropRecorder); ok {
			if err := r.RecordFeedDrop(topic); err != nil {
				return err
			}
		}
	}
	return nil
}
