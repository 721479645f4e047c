package journal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	corejournal "github.com/kilianp07/taxidispatch/core/journal"
)

// NewHandler returns an HTTP handler exposing the assignment journal via
// GET /v1/journal. Supported query parameters: start, end (RFC3339),
// agent_id, granted and limit.
func NewHandler(store corejournal.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q, err := ParseQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []corejournal.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// ParseQuery builds a journal query from the request parameters.
func ParseQuery(r *http.Request) (corejournal.Query, error) {
	var q corejournal.Query
	v := r.URL.Query()
	if s := v.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("invalid start: %w", err)
		}
		q.Start = t
	}
	if s := v.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("invalid end: %w", err)
		}
		q.End = t
	}
	if s := v.Get("agent_id"); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			return q, fmt.Errorf("invalid agent_id: %w", err)
		}
		q.AgentID = &id
	}
	if s := v.Get("granted"); s != "" {
		g, err := strconv.ParseBool(s)
		if err != nil {
			return q, fmt.Errorf("invalid granted: %w", err)
		}
		q.Granted = &g
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		q.Limit = n
	}
	return q, nil
}
