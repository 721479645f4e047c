package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	apiagents "github.com/kilianp07/taxidispatch/api/agents"
	apijournal "github.com/kilianp07/taxidispatch/api/journal"
	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/events"
	"github.com/kilianp07/taxidispatch/core/failover"
	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/core/logger"
	coremetrics "github.com/kilianp07/taxidispatch/core/metrics"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/monitoring"
	"github.com/kilianp07/taxidispatch/core/persistence"
	"github.com/kilianp07/taxidispatch/infra/metrics"
	"github.com/kilianp07/taxidispatch/infra/mqtt"
	"github.com/kilianp07/taxidispatch/infra/transport"
	"github.com/kilianp07/taxidispatch/internal/eventbus"
)

// Endpoint names.
const (
	EndpointRequest    = "request"
	EndpointHealth     = "health"
	EndpointActivation = "activation"
)

var errStopped = errors.New("server stopped")

// FeedSource delivers parsed feed messages.
type FeedSource interface {
	Messages() <-chan feed.Message
}

// StateSyncer broadcasts and receives state snapshots.
type StateSyncer interface {
	Publish(snap persistence.Snapshot) error
	Messages() <-chan mqtt.SyncMessage
}

// Addrs are the listen addresses of a server. Request and Health are used
// at startup; a standby rebinds to CanonicalRequest and CanonicalHealth when
// promoted.
type Addrs struct {
	Request          string
	Health           string
	Activation       string
	CanonicalRequest string
	CanonicalHealth  string
}

// Deps are the collaborators of a server. Only Feed and Assigner are
// required.
type Deps struct {
	Feed     FeedSource
	Sync     StateSyncer
	Assigner dispatch.Assigner
	Store    persistence.Store
	Journal  journal.Store
	Sink     coremetrics.MetricsSink
	Log      logger.Logger
}

type requestJob struct {
	req   model.ServiceRequest
	reply chan string
}

// Server is one dispatch process, primary or standby. A single loop owns
// the dispatch state: feed ingestion, user requests, health probes and state
// sync are all handled there in turn. Activation is answered on its own
// goroutine so a standby can be promoted while the loop is busy.
type Server struct {
	addrs  Addrs
	state  *dispatch.State
	engine *dispatch.Engine
	coord  *failover.Coordinator
	deps   Deps
	bus    *eventbus.TypedBus[events.Event]
	log    logger.Logger
	syncIv time.Duration

	requests chan requestJob
	probes   chan chan struct{}
	done     chan struct{}

	mu        sync.Mutex
	endpoints map[string]*transport.Endpoint
}

// NewServer wires a server. A standby answers "not primary" until promoted.
func NewServer(role model.Role, addrs Addrs, cfg dispatch.Config, d Deps) (*Server, error) {
	if d.Feed == nil || d.Assigner == nil {
		return nil, errors.New("app: feed and assigner are required")
	}
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	if d.Journal == nil {
		d.Journal = journal.NopStore{}
	}
	if d.Sink == nil {
		d.Sink = coremetrics.NopSink{}
	}
	s := &Server{
		addrs:     addrs,
		deps:      d,
		log:       d.Log,
		bus:       eventbus.NewTypedWithBuffer[events.Event](64),
		syncIv:    cfg.StateSyncInterval(),
		requests:  make(chan requestJob),
		probes:    make(chan chan struct{}),
		done:      make(chan struct{}),
		endpoints: make(map[string]*transport.Endpoint),
	}
	s.state = dispatch.NewState(d.Store, d.Log)
	s.engine = dispatch.NewEngine(s.state, d.Assigner, cfg.AssignTimeout(), d.Log)
	s.engine.SetJournal(d.Journal)
	s.engine.SetMetricsSink(d.Sink)
	s.engine.SetEventBus(s.bus)
	if role == model.RolePrimary {
		s.coord = failover.NewActive(d.Log)
	} else {
		s.coord = failover.NewStandby(binder{s}, d.Log)
	}
	s.coord.SetEventBus(s.bus)
	return s, nil
}

// Role returns the current role.
func (s *Server) Role() model.Role { return s.coord.Role() }

// Coordinator returns the failover coordinator.
func (s *Server) Coordinator() *failover.Coordinator { return s.coord }

// State returns the dispatch state.
func (s *Server) State() *dispatch.State { return s.state }

// Events returns the server event bus.
func (s *Server) Events() eventbus.EventBus[events.Event] { return s.bus }

// Addr returns the bound address of the named endpoint, empty if unbound.
func (s *Server) Addr(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.endpoints[name]; ok {
		return e.Addr()
	}
	return ""
}

// Run starts the server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Start restores the snapshot and binds the endpoints. A bind failure is
// returned so the process can exit.
func (s *Server) Start(ctx context.Context) error {
	if err := s.state.Load(); err != nil {
		return err
	}
	s.observeRegistry()
	if err := s.bind(EndpointRequest, s.addrs.Request, s.requestMux()); err != nil {
		return err
	}
	if err := s.bind(EndpointHealth, s.addrs.Health, transport.NewProbeHandler(s)); err != nil {
		s.shutdown()
		return err
	}
	if s.coord.State() == failover.StateStandby {
		mux := http.NewServeMux()
		mux.Handle(transport.PathActivate, transport.NewActivationHandler(s.coord))
		if err := s.bind(EndpointActivation, s.addrs.Activation, mux); err != nil {
			s.shutdown()
			return err
		}
	}
	metrics.StartEventCollector(ctx, s.bus, s.deps.Sink, s.log)
	s.recordRole(s.coord.Role())
	s.log.Infof("serving as %s", s.coord.Role())
	return nil
}

// Serve runs the serving loop until ctx is canceled, then releases the
// endpoints.
func (s *Server) Serve(ctx context.Context) error {
	defer s.shutdown()
	defer close(s.done)

	var syncIn <-chan mqtt.SyncMessage
	var tick <-chan time.Time
	if s.deps.Sync != nil {
		syncIn = s.deps.Sync.Messages()
		if s.syncIv > 0 {
			t := time.NewTicker(s.syncIv)
			defer t.Stop()
			tick = t.C
		}
	}
	feedIn := s.deps.Feed.Messages()
	for {
		select {
		case <-ctx.Done():
			s.log.Infof("stopping: %v", ctx.Err())
			return nil
		case msg, ok := <-feedIn:
			if !ok {
				feedIn = nil
				s.log.Warnf("feed closed")
				continue
			}
			s.guard("feed", func() { s.ingest(msg) })
		case job := <-s.requests:
			reply := "error: internal"
			s.guard("request", func() { reply = s.answer(ctx, job.req) })
			job.reply <- reply
		case ack := <-s.probes:
			close(ack)
		case m := <-syncIn:
			s.guard("sync", func() { s.applySync(m) })
		case <-tick:
			s.guard("sync", s.publishSync)
		}
	}
}

func (s *Server) guard(stage string, fn func()) {
	if err := monitoring.Guard(map[string]string{"module": "server", "stage": stage}, fn); err != nil {
		s.log.Errorf("%s: %v", stage, err)
	}
}

func (s *Server) ingest(msg feed.Message) {
	changed, err := s.state.Ingest(msg)
	if err != nil {
		s.bus.Publish(events.FeedDropEvent{Topic: msg.Topic, AgentID: msg.AgentID, Err: err})
		return
	}
	if changed {
		s.observeRegistry()
	}
}

func (s *Server) answer(ctx context.Context, req model.ServiceRequest) string {
	if s.coord.Role() != model.RolePrimary {
		return transport.MsgNotPrimary
	}
	return transport.FormatOutcome(s.engine.Assign(ctx, req))
}

func (s *Server) applySync(m mqtt.SyncMessage) {
	if s.coord.Role() == model.RolePrimary {
		s.log.Warnf("ignoring state sync from %s while primary", m.Origin)
		return
	}
	n := s.state.ApplySync(m.Snapshot)
	s.log.Debugw("state sync applied", map[string]any{"origin": m.Origin, "agents_changed": n})
	s.observeRegistry()
}

func (s *Server) publishSync() {
	if s.coord.Role() != model.RolePrimary {
		return
	}
	if err := s.deps.Sync.Publish(s.state.Snapshot()); err != nil {
		s.log.Warnf("state sync publish failed: %v", err)
	}
}

func (s *Server) observeRegistry() {
	total, available := s.state.Counts()
	dispatch.ObserveRegistry(total, available)
	if r, ok := s.deps.Sink.(coremetrics.RegistrySizeRecorder); ok {
		if err := r.RecordRegistrySize(total, available); err != nil {
			s.log.Warnf("record registry size: %v", err)
		}
	}
}

func (s *Server) recordRole(role model.Role) {
	if r, ok := s.deps.Sink.(coremetrics.RoleRecorder); ok {
		if err := r.RecordRole(role); err != nil {
			s.log.Warnf("record role: %v", err)
		}
	}
}

// HandleRequest hands the request to the serving loop and waits for its
// reply. A standby answers without involving the loop.
func (s *Server) HandleRequest(ctx context.Context, req model.ServiceRequest) (string, error) {
	if s.coord.Role() != model.RolePrimary {
		return "", transport.ErrNotPrimary
	}
	job := requestJob{req: req, reply: make(chan string, 1)}
	select {
	case s.requests <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", errStopped
	}
	select {
	case r := <-job.reply:
		if r == transport.MsgNotPrimary {
			return "", transport.ErrNotPrimary
		}
		return r, nil
	case <-s.done:
		return "", errStopped
	}
}

// HandleProbe succeeds once the serving loop picked up the probe.
func (s *Server) HandleProbe(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case s.probes <- ack:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errStopped
	}
	<-ack
	return nil
}

func (s *Server) requestMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(transport.PathRequest, transport.NewRequestHandler(s))
	mux.Handle("/v1/agents", apiagents.NewHandler(s.state))
	mux.Handle("/v1/journal", apijournal.NewHandler(s.deps.Journal))
	mux.HandleFunc("/v1/status", s.serveStatus)
	return mux
}

// Status summarizes a server for GET /v1/status.
type Status struct {
	Role      string         `json:"role"`
	State     string         `json:"state"`
	Stats     dispatch.Stats `json:"stats"`
	Agents    int            `json:"agents"`
	Available int            `json:"available"`
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	total, available := s.state.Counts()
	st := Status{
		Role:      s.coord.Role().String(),
		State:     s.coord.State().String(),
		Stats:     s.state.Stats(),
		Agents:    total,
		Available: available,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) bind(name, addr string, h http.Handler) error {
	e, err := transport.Listen(name, addr, h, s.log)
	if err != nil {
		return fmt.Errorf("bind %s endpoint %s: %w", name, addr, err)
	}
	s.mu.Lock()
	s.endpoints[name] = e
	s.mu.Unlock()
	return nil
}

func (s *Server) shutdown() {
	s.mu.Lock()
	eps := s.endpoints
	s.endpoints = make(map[string]*transport.Endpoint)
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for name, e := range eps {
		if err := e.Shutdown(ctx); err != nil {
			s.log.Warnf("%s endpoint shutdown: %v", name, err)
		}
	}
}

// binder moves a standby onto the canonical endpoints. The new listeners are
// bound before the old ones are released so a failure leaves the standby
// endpoints serving.
type binder struct{ s *Server }

func (b binder) Promote(ctx context.Context) error {
	s := b.s
	req, err := transport.Listen(EndpointRequest, s.addrs.CanonicalRequest, s.requestMux(), s.log)
	if err != nil {
		return fmt.Errorf("request endpoint %s: %w", s.addrs.CanonicalRequest, err)
	}
	health, err := transport.Listen(EndpointHealth, s.addrs.CanonicalHealth, transport.NewProbeHandler(s), s.log)
	if err != nil {
		_ = req.Shutdown(ctx)
		return fmt.Errorf("health endpoint %s: %w", s.addrs.CanonicalHealth, err)
	}
	s.mu.Lock()
	oldReq, oldHealth := s.endpoints[EndpointRequest], s.endpoints[EndpointHealth]
	s.endpoints[EndpointRequest] = req
	s.endpoints[EndpointHealth] = health
	s.mu.Unlock()
	for _, old := range []*transport.Endpoint{oldReq, oldHealth} {
		if old == nil {
			continue
		}
		if err := old.Shutdown(ctx); err != nil {
			s.log.Warnf("release %s endpoint %s: %v", old.Name(), old.Addr(), err)
		}
	}
	s.log.Infof("rebound request endpoint to %s and health endpoint to %s", req.Addr(), health.Addr())
	return nil
}
