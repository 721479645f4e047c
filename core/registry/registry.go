package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/taxidispatch/core/feed"
	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
)

// ErrUnknownAgent is returned when a status update names an agent that never
// published a position.
var ErrUnknownAgent = errors.New("unknown agent")

// Registry maps agent ids to their latest record. It is not safe for
// concurrent use; the owning dispatch state serializes access.
type Registry struct {
	agents map[int]model.AgentRecord
	log    logger.Logger
}

// New returns an empty registry.
func New(log logger.Logger) *Registry {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Registry{agents: map[int]model.AgentRecord{}, log: log}
}

// Ingest applies one feed message. Rejected messages are logged and leave the
// registry untouched. changed is false when the message reproduced the stored
// record exactly.
func (r *Registry) Ingest(msg feed.Message) (changed bool, err error) {
	var rec model.AgentRecord
	switch msg.Topic {
	case feed.TopicPosition:
		rec, err = r.applyPosition(msg)
	case feed.TopicStatus:
		rec, err = r.applyStatus(msg)
	default:
		err = fmt.Errorf("%w: unknown topic %q", feed.ErrMalformedMessage, msg.Topic)
	}
	if err != nil {
		r.log.Warnf("registry: drop %s message for agent %d: %v", msg.Topic, msg.AgentID, err)
		return false, err
	}
	if prev, ok := r.agents[rec.ID]; ok && prev == rec {
		r.log.Debugf("registry: agent %d unchanged", rec.ID)
		return false, nil
	}
	r.agents[rec.ID] = rec
	r.log.Debugw("registry: agent updated", map[string]any{
		"agent_id": rec.ID,
		"x":        rec.X,
		"y":        rec.Y,
		"status":   string(rec.Status),
	})
	return true, nil
}

func (r *Registry) applyPosition(msg feed.Message) (model.AgentRecord, error) {
	var p feed.PositionPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return model.AgentRecord{}, fmt.Errorf("%w: %v", feed.ErrMalformedMessage, err)
	}
	if p.X == nil || p.Y == nil || p.Address == nil {
		return model.AgentRecord{}, fmt.Errorf("%w: position requires x, y and address", feed.ErrMalformedMessage)
	}
	if !p.Address.Valid() {
		return model.AgentRecord{}, fmt.Errorf("%w: invalid address %q", feed.ErrMalformedMessage, p.Address.String())
	}
	rec := model.AgentRecord{
		ID:                msg.AgentID,
		X:                 *p.X,
		Y:                 *p.Y,
		Address:           *p.Address,
		ServicesCompleted: p.ServicesCompleted,
		MaxServices:       p.MaxServices,
	}
	switch {
	case p.Status != "":
		st, err := model.ParseStatus(p.Status)
		if err != nil {
			return model.AgentRecord{}, fmt.Errorf("%w: %v", feed.ErrMalformedMessage, err)
		}
		rec.Status = st
	default:
		if prev, ok := r.agents[msg.AgentID]; ok {
			rec.Status = prev.Status
		} else {
			rec.Status = model.StatusAvailable
		}
	}
	return rec, nil
}

func (r *Registry) applyStatus(msg feed.Message) (model.AgentRecord, error) {
	var p feed.StatusPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return model.AgentRecord{}, fmt.Errorf("%w: %v", feed.ErrMalformedMessage, err)
	}
	if p.Status == "" {
		return model.AgentRecord{}, fmt.Errorf("%w: status requires status", feed.ErrMalformedMessage)
	}
	st, err := model.ParseStatus(p.Status)
	if err != nil {
		return model.AgentRecord{}, fmt.Errorf("%w: %v", feed.ErrMalformedMessage, err)
	}
	rec, ok := r.agents[msg.AgentID]
	if !ok {
		return model.AgentRecord{}, fmt.Errorf("%w: %d", ErrUnknownAgent, msg.AgentID)
	}
	rec.Status = st
	return rec, nil
}

// Get returns the record for id.
func (r *Registry) Get(id int) (model.AgentRecord, bool) {
	rec, ok := r.agents[id]
	return rec, ok
}

// Len returns the number of known agents.
func (r *Registry) Len() int { return len(r.agents) }

// Snapshot returns a copy of all records ordered by id.
func (r *Registry) Snapshot() []model.AgentRecord {
	out := make([]model.AgentRecord, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Available returns the available records ordered by id.
func (r *Registry) Available() []model.AgentRecord {
	all := r.Snapshot()
	out := all[:0]
	for _, rec := range all {
		if rec.Available() {
			out = append(out, rec)
		}
	}
	return out
}

// Replace discards the current content and loads recs.
func (r *Registry) Replace(recs []model.AgentRecord) {
	r.agents = make(map[int]model.AgentRecord, len(recs))
	for _, rec := range recs {
		r.agents[rec.ID] = rec
	}
}

// Merge overwrites records by id and keeps the ones not present in recs.
// It returns the number of records that changed.
func (r *Registry) Merge(recs []model.AgentRecord) int {
	n := 0
	for _, rec := range recs {
		if prev, ok := r.agents[rec.ID]; ok && prev == rec {
			continue
		}
		r.agents[rec.ID] = rec
		n++
	}
	return n
}
