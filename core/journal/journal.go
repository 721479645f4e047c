// Package journal keeps an append-only history of answered service requests.
// Backends: plain JSONL, size-rotated JSONL and SQLite.
package journal

import (
	"context"
	"time"

	"github.com/kilianp07/taxidispatch/core/model"
)

// Record captures one answered request.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int       `json:"user_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	AgentID   *int      `json:"agent_id,omitempty"`
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason,omitempty"`
	LatencyMS float64   `json:"latency_ms"`
}

// NewRecord builds the journal entry for a request and its outcome.
func NewRecord(id string, at time.Time, req model.ServiceRequest, out model.ServiceOutcome) Record {
	return Record{
		ID:        id,
		Timestamp: at,
		UserID:    req.UserID,
		X:         req.X,
		Y:         req.Y,
		AgentID:   out.AgentID,
		Granted:   out.Granted,
		Reason:    out.Reason,
		LatencyMS: float64(out.Latency.Microseconds()) / 1000,
	}
}

// Query filters records. Zero values match everything.
type Query struct {
	Start   time.Time
	End     time.Time
	AgentID *int
	Granted *bool
	// Limit keeps only the most recent matches when positive.
	Limit int
}

// Match reports whether r satisfies q, ignoring Limit.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.AgentID != nil && (r.AgentID == nil || *r.AgentID != *q.AgentID) {
		return false
	}
	if q.Granted != nil && r.Granted != *q.Granted {
		return false
	}
	return true
}

func (q Query) limit(recs []Record) []Record {
	if q.Limit > 0 && len(recs) > q.Limit {
		return recs[len(recs)-q.Limit:]
	}
	return recs
}

// Store persists records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
