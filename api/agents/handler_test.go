package agents

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/model"
)

type staticLister []model.AgentRecord

func (s staticLister) Agents() []model.AgentRecord { return s }

var fleet = staticLister{
	{ID: 1, Status: model.StatusAvailable},
	{ID: 2, Status: model.StatusBusy},
	{ID: 3, Status: model.StatusAvailable},
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
	return rr
}

func TestHandler_ListsAll(t *testing.T) {
	rr := get(t, NewHandler(fleet), "/v1/agents")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []model.AgentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Len(t, out, 3)
}

func TestHandler_FilterByStatus(t *testing.T) {
	rr := get(t, NewHandler(fleet), "/v1/agents?status=BUSY")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []model.AgentRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].ID)

	rr = get(t, NewHandler(fleet), "/v1/agents?status=parked")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_EmptyRegistryIsEmptyList(t *testing.T) {
	rr := get(t, NewHandler(staticLister(nil)), "/v1/agents")
	assert.JSONEq(t, `[]`, rr.Body.String())
}
