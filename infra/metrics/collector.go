package metrics

import (
	"context"

	"github.com/kilianp07/taxidispatch/core/events"
	"github.com/kilianp07/taxidispatch/core/logger"
	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// role changes and feed drops. Outcomes reach the sink directly from the
// engine. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus[events.Event], sink coremetrics.MetricsSink, log logger.Logger) {
	if bus == nil || sink == nil {
		return
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				collect(ev, sink, log)
			}
		}
	}()
}

func collect(ev events.Event, sink coremetrics.MetricsSink, log logger.Logger) {
	switch e := ev.(type) {
	case events.RoleChangedEvent:
		log.Infof("role changed %s -> %s", e.From, e.To)
		if r, ok := sink.(coremetrics.RoleRecorder); ok {
			if err := r.RecordRole(e.To); err != nil {
				log.Warnf("record role: %v", err)
			}
		}
	case events.FeedDropEvent:
		if r, ok := sink.(coremetrics.FeedDropRecorder); ok {
			if err := r.RecordFeedDrop(e.Topic); err != nil {
				log.Warnf("record feed drop: %v", err)
			}
		}
	}
}
