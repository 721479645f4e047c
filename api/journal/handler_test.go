package journal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corejournal "github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/core/model"
)

func seeded(t *testing.T) corejournal.Store {
	t.Helper()
	s, err := corejournal.NewJSONLStore(filepath.Join(t.TempDir(), "assignments.jsonl"))
	require.NoError(t, err)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := 2
	recs := []corejournal.Record{
		corejournal.NewRecord("a", base, model.ServiceRequest{UserID: 1}, model.Granted(1)),
		corejournal.NewRecord("b", base.Add(time.Minute), model.ServiceRequest{UserID: 2}, model.Granted(2)),
		corejournal.NewRecord("c", base.Add(2*time.Minute), model.ServiceRequest{UserID: 3}, model.Denied(model.ReasonTimeout, &id)),
	}
	for _, r := range recs {
		require.NoError(t, s.Append(context.Background(), r))
	}
	return s
}

func query(t *testing.T, h http.Handler, url string) (int, []corejournal.Record) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	var out []corejournal.Record
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr.Code, out
}

func TestHandler_Filters(t *testing.T) {
	h := NewHandler(seeded(t))

	code, out := query(t, h, "/v1/journal")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out, 3)

	_, out = query(t, h, "/v1/journal?agent_id=2")
	assert.Len(t, out, 2)

	_, out = query(t, h, "/v1/journal?agent_id=2&granted=false")
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)

	_, out = query(t, h, "/v1/journal?start=2024-05-01T12:01:00Z&limit=1")
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)
}

func TestHandler_BadParameters(t *testing.T) {
	h := NewHandler(corejournal.NopStore{})
	for _, url := range []string{
		"/v1/journal?start=yesterday",
		"/v1/journal?agent_id=x",
		"/v1/journal?granted=maybe",
		"/v1/journal?limit=-1",
	} {
		code, _ := query(t, h, url)
		assert.Equal(t, http.StatusBadRequest, code, url)
	}
	code, out := query(t, h, "/v1/journal")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, out)
}
