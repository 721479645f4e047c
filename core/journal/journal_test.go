package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/model"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func sampleRecords(base time.Time) []Record {
	return []Record{
		NewRecord("a", base, model.ServiceRequest{Version: 1, UserID: 1, X: 0, Y: 2}, model.Granted(1)),
		NewRecord("b", base.Add(time.Minute), model.ServiceRequest{Version: 1, UserID: 2}, model.Denied(model.ReasonNoAgents, nil)),
		NewRecord("c", base.Add(2*time.Minute), model.ServiceRequest{Version: 1, UserID: 3}, model.Denied(model.ReasonTimeout, intPtr(2))),
		NewRecord("d", base.Add(3*time.Minute), model.ServiceRequest{Version: 1, UserID: 4}, model.Granted(2)),
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, r := range sampleRecords(base) {
		require.NoError(t, s.Append(ctx, r))
	}

	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, 0.0, all[0].X)
	assert.Equal(t, 2.0, all[0].Y)

	byAgent, err := s.Query(ctx, Query{AgentID: intPtr(2)})
	require.NoError(t, err)
	assert.Len(t, byAgent, 2)

	granted, err := s.Query(ctx, Query{Granted: boolPtr(true)})
	require.NoError(t, err)
	assert.Len(t, granted, 2)

	window, err := s.Query(ctx, Query{Start: base.Add(30 * time.Second), End: base.Add(150 * time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, model.ReasonNoAgents, window[0].Reason)

	last, err := s.Query(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "d", last[0].ID)
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "j", "assignments.jsonl"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "assignments.jsonl"), 1, 5, 0)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestRotatingJSONLStore_QueriesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assignments.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 5, 0)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()
	recs := sampleRecords(time.Now())

	require.NoError(t, s.Append(ctx, recs[0]))
	require.NoError(t, s.Rotate())
	require.NoError(t, s.Append(ctx, recs[1]))

	files, err := filepath.Glob(filepath.Join(dir, "assignments*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	out, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{BackendJSONL, BackendRotating, BackendSQLite} {
		s, err := Open(Config{Backend: backend, Path: filepath.Join(dir, backend+".journal")})
		require.NoError(t, err, backend)
		require.NoError(t, s.Append(context.Background(), Record{ID: backend, Timestamp: time.Now()}))
		require.NoError(t, s.Close())
	}

	s, err := Open(Config{Backend: BackendNone})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	_, err = Open(Config{Backend: "csv", Path: "x"})
	assert.Error(t, err)
}

func TestNewRecord_Latency(t *testing.T) {
	out := model.Granted(3)
	out.Latency = 1500 * time.Microsecond
	rec := NewRecord("x", time.Now(), model.ServiceRequest{UserID: 9}, out)
	assert.Equal(t, 1.5, rec.LatencyMS)
	assert.Equal(t, 3, *rec.AgentID)
	assert.True(t, rec.Granted)
}
