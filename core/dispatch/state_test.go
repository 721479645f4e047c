package dispatch

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/model"
	"github.com/kilianp07/taxidispatch/core/persistence"
)

func mustLine(t *testing.T, s string) feed.Message {
	t.Helper()
	m, err := feed.ParseLine(s)
	require.NoError(t, err)
	return m
}

func TestState_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.json")
	st := NewState(persistence.NewFileStore(path), nil)
	require.NoError(t, st.Load())

	_, err := st.Ingest(mustLine(t, `position 1 {"x": 0, "y": 0, "address": {"host": "127.0.0.1", "port": 6001}, "status": "available", "max_services": 3}`))
	require.NoError(t, err)
	_, err = st.Ingest(mustLine(t, `position 2 {"x": 5, "y": 5, "address": {"host": "127.0.0.1", "port": 6002}}`))
	require.NoError(t, err)
	_, err = st.Ingest(mustLine(t, `status 2 {"status": "busy"}`))
	require.NoError(t, err)
	st.RecordOutcome(model.Granted(1))
	st.RecordOutcome(model.Denied(model.ReasonTimeout, nil))

	reloaded := NewState(persistence.NewFileStore(path), nil)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, st.Agents(), reloaded.Agents())
	assert.Equal(t, Stats{Granted: 1, Denied: 1}, reloaded.Stats())
}

func TestState_IdenticalIngestDoesNotPersistTwice(t *testing.T) {
	store := &persistence.MemoryStore{}
	st := NewState(store, nil)
	msg := mustLine(t, `position 1 {"x": 1, "y": 1, "address": {"host": "h", "port": 6001}}`)

	changed, err := st.Ingest(msg)
	require.NoError(t, err)
	assert.True(t, changed)
	before, _ := json.Marshal(st.Snapshot())

	changed, err = st.Ingest(msg)
	require.NoError(t, err)
	assert.False(t, changed)
	after, _ := json.Marshal(st.Snapshot())

	assert.Equal(t, before, after)
	assert.Equal(t, 1, store.SaveCount())
	assert.Equal(t, Stats{}, st.Stats())
}

func TestState_StatusForUnknownAgent(t *testing.T) {
	st := NewState(nil, nil)
	_, err := st.Ingest(mustLine(t, `status 5 {"status": "available"}`))
	assert.Error(t, err)
	total, _ := st.Counts()
	assert.Zero(t, total)
}

func TestState_ApplySync(t *testing.T) {
	st := NewState(nil, nil)
	st.reg.Replace([]model.AgentRecord{agent(1, 0, 0, model.StatusAvailable), agent(9, 9, 9, model.StatusBusy)})

	n := st.ApplySync(persistence.Snapshot{
		Agents:          []model.AgentRecord{agent(1, 2, 2, model.StatusBusy), agent(3, 1, 1, model.StatusAvailable)},
		RequestsGranted: 7,
		RequestsDenied:  2,
	})
	assert.Equal(t, 2, n)
	total, available := st.Counts()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, available)
	assert.Equal(t, Stats{Granted: 7, Denied: 2}, st.Stats())
	a1, _ := st.Agent(1)
	assert.Equal(t, model.StatusBusy, a1.Status)
}
