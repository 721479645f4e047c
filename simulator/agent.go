// Package simulator runs synthetic agents: each one publishes its position and
// status on the bus, accepts assignment exchanges, stays busy for a random
// service time, then returns to its origin. An agent retires after
// max_services completed services.
package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/infra/transport"
)

// Publisher sends feed lines for an agent.
type Publisher interface {
	PublishPosition(rec model.AgentRecord) error
	PublishStatus(agentID int, st model.Status) error
}

// Agent is one simulated taxi.
type Agent struct {
	cfg     Config
	pub     Publisher
	log     logger.Logger
	bind    string
	address model.Address

	mu     sync.Mutex
	rec    model.AgentRecord
	origin model.Position
	rng    *rand.Rand

	retired chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	// sleep waits for a service to complete.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAgent returns an agent with a random origin on the grid. bind is the
// listen address of its assignment endpoint and address what it advertises.
func NewAgent(id int, bind string, address model.Address, cfg Config, pub Publisher, log logger.Logger) *Agent {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	rng := rand.New(rand.NewPCG(uint64(id), uint64(time.Now().UnixNano())))
	origin := model.Position{
		X: float64(rng.IntN(cfg.GridWidth)),
		Y: float64(rng.IntN(cfg.GridHeight)),
	}
	return &Agent{
		cfg:     cfg,
		pub:     pub,
		log:     log,
		bind:    bind,
		address: address,
		origin:  origin,
		rng:     rng,
		rec: model.AgentRecord{
			ID:          id,
			X:           origin.X,
			Y:           origin.Y,
			Address:     address,
			Status:      model.StatusAvailable,
			MaxServices: cfg.MaxServices,
		},
		retired: make(chan struct{}),
		sleep:   sleepCtx,
	}
}

// Record returns the agent's current record.
func (a *Agent) Record() model.AgentRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec
}

// SetOrigin moves the agent and its home position.
func (a *Agent) SetOrigin(p model.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.origin = p
	a.rec.X, a.rec.Y = p.X, p.Y
}

// Retired is closed once the agent completed its last service.
func (a *Agent) Retired() <-chan struct{} { return a.retired }

// Run serves assignments and publishes the agent's position until ctx is
// canceled or the agent retires.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	mux := http.NewServeMux()
	mux.Handle(transport.PathAssign, a.Handler(ctx))
	ep, err := transport.Listen(fmt.Sprintf("agent-%d", a.rec.ID), a.bind, mux, a.log)
	if err != nil {
		return fmt.Errorf("agent %d: %w", a.rec.ID, err)
	}
	stop := func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		_ = ep.Shutdown(sctx)
		cancel()
		a.wg.Wait()
	}

	a.publishPosition()
	publish := time.NewTicker(a.cfg.publishInterval())
	defer publish.Stop()
	move := time.NewTicker(a.cfg.moveInterval())
	defer move.Stop()
	for {
		select {
		case <-ctx.Done():
			stop()
			return nil
		case <-a.retired:
			stop()
			a.log.Infof("agent %d retired after %d services", a.rec.ID, a.cfg.MaxServices)
			return nil
		case <-move.C:
			if a.Move() {
				a.publishPosition()
			}
		case <-publish.C:
			a.publishPosition()
		}
	}
}

// Move takes one step along a random axis if the agent is available. It
// reports whether the position changed.
func (a *Agent) Move() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rec.Status != model.StatusAvailable {
		return false
	}
	d := a.cfg.step()
	if a.rng.IntN(2) == 0 {
		d = -d
	}
	if a.rng.IntN(2) == 0 {
		nx := clamp(a.rec.X+d, float64(a.cfg.GridWidth-1))
		moved := nx != a.rec.X
		a.rec.X = nx
		return moved
	}
	ny := clamp(a.rec.Y+d, float64(a.cfg.GridHeight-1))
	moved := ny != a.rec.Y
	a.rec.Y = ny
	return moved
}

func clamp(v, hi float64) float64 {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// Handler answers assignment exchanges. A busy or retired agent refuses.
func (a *Agent) Handler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.Header.Get(transport.HeaderAssignmentID)
		if !a.accept() {
			http.Error(w, "busy", http.StatusConflict)
			return
		}
		a.log.Infof("agent %d accepted assignment %s", a.rec.ID, id)
		if err := a.pub.PublishStatus(a.rec.ID, model.StatusBusy); err != nil {
			a.log.Warnf("agent %d: publish busy: %v", a.rec.ID, err)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintf(w, "agent %d %s", a.rec.ID, transport.MsgAssignAccepted)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.serve(ctx)
		}()
	})
}

func (a *Agent) accept() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rec.Status != model.StatusAvailable || a.rec.ServicesCompleted >= a.cfg.MaxServices {
		return false
	}
	a.rec.Status = model.StatusBusy
	return true
}

// serve waits out the service, returns the agent to its origin and makes it
// available again.
func (a *Agent) serve(ctx context.Context) {
	span := a.cfg.ServiceMinMS
	if extra := a.cfg.ServiceMaxMS - a.cfg.ServiceMinMS; extra > 0 {
		a.mu.Lock()
		span += a.rng.IntN(extra + 1)
		a.mu.Unlock()
	}
	if err := a.sleep(ctx, time.Duration(span)*time.Millisecond); err != nil {
		return
	}
	a.mu.Lock()
	a.rec.X, a.rec.Y = a.origin.X, a.origin.Y
	a.rec.ServicesCompleted++
	a.rec.Status = model.StatusAvailable
	done := a.rec.ServicesCompleted >= a.cfg.MaxServices
	if done {
		a.rec.Status = model.StatusBusy
	}
	a.mu.Unlock()

	a.publishPosition()
	if done {
		a.once.Do(func() { close(a.retired) })
	}
}

func (a *Agent) publishPosition() {
	if err := a.pub.PublishPosition(a.Record()); err != nil {
		a.log.Warnf("agent %d: publish position: %v", a.rec.ID, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
