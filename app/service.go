package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilianp07/taxidispatch/config"
	"github.com/kilianp07/taxidispatch/core/events"
	"github.com/kilianp07/taxidispatch/core/journal"
	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	coremon "github.com/kilianp07/taxidispatch/core/monitoring"
	"github.com/kilianp07/taxidispatch/core/persistence"
	"github.com/kilianp07/taxidispatch/infra/logger"
	"github.com/kilianp07/taxidispatch/infra/metrics"
	"github.com/kilianp07/taxidispatch/infra/monitoring"
	"github.com/kilianp07/taxidispatch/infra/mqtt"
	"github.com/kilianp07/taxidispatch/infra/transport"
)

// Service is a dispatch server wired to the bus, the journal and the
// metrics sinks.
type Service struct {
	Server   *Server
	client   *mqtt.Client
	journal  journal.Store
	sink     coremetrics.MetricsSink
	promAddr string
	log      logger.Logger
}

// New creates a Service from the configuration. With replica set the
// process starts as standby on the replica ports.
func New(cfg *config.Config, replica bool) (*Service, error) {
	role := model.RolePrimary
	if replica {
		role = model.RoleStandby
	}
	logg := logger.New("server-" + strings.ToLower(role.String()))

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, err
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	jr, err := journal.Open(journalConfig(cfg.Journal, replica))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	client, err := mqtt.NewClient(cfg.SubscriberMQTT(""), logg)
	if err != nil {
		_ = jr.Close()
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	sub := mqtt.NewFeedSubscriber(client, 0, logg)
	deps := Deps{
		Feed:     sub,
		Assigner: transport.NewAssignClient(),
		Journal:  jr,
		Sink:     sink,
		Log:      logg,
	}
	if p := snapshotPath(cfg.Dispatch.StorePath(), replica); p != "" {
		deps.Store = persistence.NewFileStore(p)
	}
	if cfg.Dispatch.StateSyncSeconds > 0 {
		deps.Sync = mqtt.NewStateSync(client, logg)
	}

	n := cfg.Network
	addrs := Addrs{
		Request:          n.Bind(n.RequestPort),
		Health:           n.Bind(n.HealthPort),
		CanonicalRequest: n.Bind(n.RequestPort),
		CanonicalHealth:  n.Bind(n.HealthPort),
	}
	if replica {
		addrs.Request = n.Bind(n.ReplicaPort)
		addrs.Health = n.Bind(n.ReplicaHealthPort)
		addrs.Activation = n.Bind(n.ActivationPort)
	}
	srv, err := NewServer(role, addrs, cfg.Dispatch, deps)
	if err != nil {
		client.Disconnect()
		_ = jr.Close()
		return nil, err
	}
	sub.OnDrop(func(topic string, err error) {
		srv.Events().Publish(events.FeedDropEvent{Topic: topic, Err: err})
	})
	if err := sub.Start(); err != nil {
		client.Disconnect()
		_ = jr.Close()
		return nil, fmt.Errorf("feed subscribe: %w", err)
	}
	if s, ok := deps.Sync.(*mqtt.StateSync); ok {
		if err := s.Start(); err != nil {
			client.Disconnect()
			_ = jr.Close()
			return nil, fmt.Errorf("state sync subscribe: %w", err)
		}
	}
	return &Service{
		Server:   srv,
		client:   client,
		journal:  jr,
		sink:     sink,
		promAddr: cfg.Metrics.PrometheusAddr,
		log:      logg,
	}, nil
}

// Run starts the server and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.Server.Run(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.client.Disconnect()
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return s.journal.Close()
}

// snapshotPath keeps the standby from sharing the primary's state file:
// state.json becomes state.replica.json.
func snapshotPath(path string, replica bool) string {
	if path == "" || !replica {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".replica" + ext
}

func journalConfig(c journal.Config, replica bool) journal.Config {
	if replica && c.Path != "" {
		c.Path = snapshotPath(c.Path, true)
	}
	return c
}
