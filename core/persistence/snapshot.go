// Package persistence keeps the durable snapshot of the dispatch state.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kilianp07/taxidispatch/core/model"
)

// Snapshot is the on-disk document. It is the source of truth across restarts.
type Snapshot struct {
	Agents          []model.AgentRecord `json:"agents"`
	RequestsGranted int                 `json:"requests_granted"`
	RequestsDenied  int                 `json:"requests_denied"`
}

// Store loads and saves snapshots.
type Store interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// FileStore writes the snapshot as a JSON file, replacing it atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store bound to path. The parent directory is created
// on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file yields an empty snapshot.
func (s *FileStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{Agents: []model.AgentRecord{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parsing snapshot %s: %w", s.path, err)
	}
	if snap.Agents == nil {
		snap.Agents = []model.AgentRecord{}
	}
	return snap, nil
}

// Save writes snap to a temporary file in the same directory, syncs it and
// renames it over the previous snapshot.
func (s *FileStore) Save(snap Snapshot) error {
	if snap.Agents == nil {
		snap.Agents = []model.AgentRecord{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating temporary snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing temporary snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing temporary snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing temporary snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// MemoryStore keeps the snapshot in memory. Used by tests and by processes
// started without a snapshot path.
type MemoryStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
}

func (m *MemoryStore) Load() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap
	out.Agents = append([]model.AgentRecord{}, m.snap.Agents...)
	return out, nil
}

func (m *MemoryStore) Save(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s
	m.snap.Agents = append([]model.AgentRecord{}, s.Agents...)
	m.saves++
	return nil
}

// SaveCount returns how many times Save succeeded.
func (m *MemoryStore) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
