package agents

import (
	"encoding/json"
	"net/http"

	"github.com/kilianp07/taxidispatch/core/model"
)

// Lister exposes the registry view of agents.
type Lister interface {
	Agents() []model.AgentRecord
}

// NewHandler returns an HTTP handler exposing the registry via GET /v1/agents.
// The optional status query parameter filters by availability.
func NewHandler(src Lister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var want model.Status
		if s := r.URL.Query().Get("status"); s != "" {
			st, err := model.ParseStatus(s)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			want = st
		}
		entries := make([]model.AgentRecord, 0)
		for _, a := range src.Agents() {
			if want == "" || a.Status == want {
				entries = append(entries, a)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
