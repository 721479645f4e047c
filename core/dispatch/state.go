package dispatch

import (
	"fmt"
	"sync"

	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/persistence"
	"github.com/kilianp07/taxidispatch/core/registry"
)

// Stats counts answered requests.
type Stats struct {
	Granted int `json:"granted"`
	Denied  int `json:"denied"`
}

// State is the dispatch state owned by the active process: the agent registry
// and the outcome counters. Every mutation is written to the snapshot store.
// The mutex only matters when promotion runs beside the serving loop.
type State struct {
	mu    sync.Mutex
	reg   *registry.Registry
	stats Stats
	store persistence.Store
	log   logger.Logger
}

// NewState returns an empty state persisted to store. A nil store keeps the
// state in memory.
func NewState(store persistence.Store, log logger.Logger) *State {
	if log == nil {
		log = logger.NopLogger{}
	}
	if store == nil {
		store = &persistence.MemoryStore{}
	}
	return &State{reg: registry.New(log), store: store, log: log}
}

// Load replaces the in-memory state with the stored snapshot.
func (s *State) Load() error {
	snap, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.Replace(snap.Agents)
	s.stats = Stats{Granted: snap.RequestsGranted, Denied: snap.RequestsDenied}
	s.log.Infof("restored %d agents, %d granted, %d denied", len(snap.Agents), s.stats.Granted, s.stats.Denied)
	return nil
}

// Ingest applies a feed message. The snapshot is only rewritten when the
// registry changed.
func (s *State) Ingest(msg feed.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed, err := s.reg.Ingest(msg)
	if err != nil || !changed {
		return false, err
	}
	s.persistLocked()
	return true, nil
}

// Candidates returns the available agents ordered by id.
func (s *State) Candidates() []model.AgentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Available()
}

// Agents returns every known agent ordered by id.
func (s *State) Agents() []model.AgentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Snapshot()
}

// Agent returns one agent record.
func (s *State) Agent(id int) (model.AgentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Get(id)
}

// Counts returns the number of known and available agents.
func (s *State) Counts() (total, available int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Len(), len(s.reg.Available())
}

// RecordOutcome increments exactly one counter and persists.
func (s *State) RecordOutcome(out model.ServiceOutcome) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if out.Granted {
		s.stats.Granted++
	} else {
		s.stats.Denied++
	}
	s.persistLocked()
	return s.stats
}

// Stats returns the current counters.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Snapshot returns the persisted form of the state.
func (s *State) Snapshot() persistence.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ApplySync merges a snapshot broadcast by the primary: agents are merged
// last-write-wins by id and the counters are replaced.
func (s *State) ApplySync(snap persistence.Snapshot) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.reg.Merge(snap.Agents)
	s.stats = Stats{Granted: snap.RequestsGranted, Denied: snap.RequestsDenied}
	s.persistLocked()
	return n
}

func (s *State) snapshotLocked() persistence.Snapshot {
	return persistence.Snapshot{
		Agents:          s.reg.Snapshot(),
		RequestsGranted: s.stats.Granted,
		RequestsDenied:  s.stats.Denied,
	}
}

func (s *State) persistLocked() {
	if err := s.store.Save(s.snapshotLocked()); err != nil {
		snapshotFailures.Inc()
		s.log.Errorf("snapshot write failed: %v", err)
	}
}
