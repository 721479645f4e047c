package mqtt

import (
	"encoding/json"
	"time"

	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/persistence"
)

// SyncMessage is one state broadcast from the primary.
type SyncMessage struct {
	Origin   string               `json:"origin"`
	SentAt   time.Time            `json:"sent_at"`
	Snapshot persistence.Snapshot `json:"snapshot"`
}

// StateSync broadcasts and receives dispatch state snapshots. Messages sent
// by the same client are ignored on receipt.
type StateSync struct {
	cli *Client
	out chan SyncMessage
	log logger.Logger
}

// NewStateSync returns a state sync channel on cli.
func NewStateSync(cli *Client, log logger.Logger) *StateSync {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &StateSync{cli: cli, out: make(chan SyncMessage, 4), log: log}
}

// Publish broadcasts snap.
func (s *StateSync) Publish(snap persistence.Snapshot) error {
	b, err := json.Marshal(SyncMessage{Origin: s.cli.ID(), SentAt: time.Now().UTC(), Snapshot: snap})
	if err != nil {
		return err
	}
	return s.cli.Publish(s.cli.Config().StateTopic(), b)
}

// Start subscribes to the state topic.
func (s *StateSync) Start() error {
	return s.cli.Subscribe(s.cli.Config().StateTopic(), s.handle)
}

// Messages returns received snapshots from other processes.
func (s *StateSync) Messages() <-chan SyncMessage { return s.out }

func (s *StateSync) handle(_ string, payload []byte) {
	var m SyncMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		s.log.Warnf("dropping state sync message: %v", err)
		return
	}
	if m.Origin == s.cli.ID() {
		return
	}
	select {
	case s.out <- m:
	default:
		s.log.Warnf("state sync buffer full, dropping snapshot from %s", m.Origin)
	}
}
