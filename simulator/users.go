package simulator

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
)

// Requester sends one service request and returns the reply text. A
// transport.RequestClient tries the primary and then the replica.
type Requester interface {
	Request(ctx context.Context, req model.ServiceRequest) (string, error)
}

// LoadConfig shapes a run of synthetic users.
type LoadConfig struct {
	// Users is the number of concurrent users in each burst.
	Users int
	// Duration keeps firing bursts until it elapses. Zero fires one burst.
	Duration time.Duration
	// Interval is the pause between bursts.
	Interval time.Duration
	// FirstID is the id of the first user; ids increase across bursts.
	FirstID    int
	GridWidth  int
	GridHeight int
}

func (c *LoadConfig) setDefaults() {
	if c.Users <= 0 {
		c.Users = 1
	}
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.GridWidth <= 0 {
		c.GridWidth = 10
	}
	if c.GridHeight <= 0 {
		c.GridHeight = 10
	}
}

// LoadReport summarises a load run.
type LoadReport struct {
	Users      int
	Granted    int
	Denied     int
	Failed     int
	Elapsed    time.Duration
	MaxLatency time.Duration

	totalLatency time.Duration
}

// MeanLatency is the average time to a reply over users that got one.
func (r LoadReport) MeanLatency() time.Duration {
	n := r.Granted + r.Denied
	if n == 0 {
		return 0
	}
	return r.totalLatency / time.Duration(n)
}

// UsersPerSecond is the rate at which users were started.
func (r LoadReport) UsersPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Users) / r.Elapsed.Seconds()
}

// Write prints the report as plain text.
func (r LoadReport) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"users=%d granted=%d denied=%d failed=%d mean_latency=%s max_latency=%s elapsed=%s users_per_sec=%.2f\n",
		r.Users, r.Granted, r.Denied, r.Failed,
		r.MeanLatency().Round(time.Millisecond), r.MaxLatency.Round(time.Millisecond),
		r.Elapsed.Round(time.Millisecond), r.UsersPerSecond())
	return err
}

func (r *LoadReport) record(reply string, err error, took time.Duration) {
	r.Users++
	if err != nil {
		r.Failed++
		return
	}
	if strings.HasSuffix(reply, " assigned") {
		r.Granted++
	} else {
		r.Denied++
	}
	r.totalLatency += took
	if took > r.MaxLatency {
		r.MaxLatency = took
	}
}

// RunUsers starts bursts of concurrent users at random grid positions and
// waits for every user to get a reply or give up. Only a canceled context
// stops it early.
func RunUsers(ctx context.Context, cfg LoadConfig, client Requester, log logger.Logger) (LoadReport, error) {
	cfg.setDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	rng := rand.New(rand.NewPCG(uint64(cfg.FirstID), uint64(time.Now().UnixNano())))

	var (
		mu  sync.Mutex
		rep LoadReport
	)
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	id := cfg.FirstID
loop:
	for burst := 1; ; burst++ {
		for range cfg.Users {
			req := model.ServiceRequest{
				Version: model.RequestSchemaVersion,
				UserID:  id,
				X:       float64(rng.IntN(cfg.GridWidth)),
				Y:       float64(rng.IntN(cfg.GridHeight)),
			}
			id++
			g.Go(func() error {
				t0 := time.Now()
				reply, err := client.Request(gctx, req)
				took := time.Since(t0)
				if err != nil {
					log.Warnf("user %d: %v", req.UserID, err)
				} else {
					log.Debugf("user %d at (%.0f,%.0f): %s in %s", req.UserID, req.X, req.Y, reply, took)
				}
				mu.Lock()
				rep.record(reply, err, took)
				mu.Unlock()
				return nil
			})
		}
		log.Infof("burst %d: %d users started after %s", burst, id-cfg.FirstID, time.Since(start).Round(100*time.Millisecond))
		if cfg.Duration <= 0 || time.Since(start)+cfg.Interval >= cfg.Duration {
			break loop
		}
		timer := time.NewTimer(cfg.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			break loop
		}
	}
	_ = g.Wait()
	rep.Elapsed = time.Since(start)
	return rep, ctx.Err()
}
