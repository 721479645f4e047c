package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/taxidispatch/core/journal"
)

// WriteJSON writes the journal records to w as a JSON array.
func WriteJSON(w io.Writer, recs []journal.Record) error {
	if recs == nil {
		recs = []journal.Record{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(recs)
}

// WriteCSV writes the journal records to w in CSV format with a header row.
// An empty agent_id means no agent was selected.
func WriteCSV(w io.Writer, recs []journal.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "timestamp", "user_id", "x", "y", "agent_id", "granted", "reason", "latency_ms"}); err != nil {
		return err
	}
	for _, r := range recs {
		agent := ""
		if r.AgentID != nil {
			agent = strconv.Itoa(*r.AgentID)
		}
		rec := []string{
			r.ID,
			r.Timestamp.Format(time.RFC3339),
			strconv.Itoa(r.UserID),
			strconv.FormatFloat(r.X, 'f', -1, 64),
			strconv.FormatFloat(r.Y, 'f', -1, 64),
			agent,
			strconv.FormatBool(r.Granted),
			r.Reason,
			strconv.FormatFloat(r.LatencyMS, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
