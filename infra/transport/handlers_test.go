package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/taxidispatch/core/failover"
	"github.com/kilianp07/taxidispatch/core/model"
)

type requestFunc func(context.Context, model.ServiceRequest) (string, error)

func (f requestFunc) HandleRequest(ctx context.Context, r model.ServiceRequest) (string, error) {
	return f(ctx, r)
}

type probeFunc func(context.Context) error

func (f probeFunc) HandleProbe(ctx context.Context) error { return f(ctx) }

type activationFunc func(context.Context, string) failover.Ack

func (f activationFunc) HandleActivation(ctx context.Context, msg string) failover.Ack {
	return f(ctx, msg)
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rr
}

func TestRequestHandler(t *testing.T) {
	var got model.ServiceRequest
	h := NewRequestHandler(requestFunc(func(_ context.Context, r model.ServiceRequest) (string, error) {
		got = r
		return FormatOutcome(model.Granted(1)), nil
	}))
	rr := post(h, PathRequest, `{"version":1,"user_id":7,"x":0,"y":2}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1 assigned", rr.Body.String())
	assert.Equal(t, model.ServiceRequest{Version: 1, UserID: 7, X: 0, Y: 2}, got)
}

func TestRequestHandler_Malformed(t *testing.T) {
	called := false
	h := NewRequestHandler(requestFunc(func(context.Context, model.ServiceRequest) (string, error) {
		called = true
		return "", nil
	}))
	for _, body := range []string{
		`Usuario 1 en posición (0,2)`,
		`{"version":1,"user_id":7,"x":0}`,
		`{"version":2,"user_id":7,"x":0,"y":1}`,
		`{"version":1,"user_id":"seven","x":0,"y":1}`,
		`{"version":1,"user_id":7,"x":0,"y":1,"extra":true}`,
	} {
		rr := post(h, PathRequest, body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, MsgMalformed, rr.Body.String(), body)
	}
	assert.False(t, called)
}

func TestRequestHandler_NotPrimary(t *testing.T) {
	h := NewRequestHandler(requestFunc(func(context.Context, model.ServiceRequest) (string, error) {
		return "", ErrNotPrimary
	}))
	rr := post(h, PathRequest, `{"version":1,"user_id":7,"x":0,"y":2}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, MsgNotPrimary, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, PathRequest, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestProbeHandler(t *testing.T) {
	down := errors.New("loop stalled")
	var fail bool
	h := NewProbeHandler(probeFunc(func(context.Context) error {
		if fail {
			return down
		}
		return nil
	}))
	rr := post(h, PathPing, "ping")
	assert.Equal(t, MsgPong, rr.Body.String())

	rr = post(h, PathPing, "hello")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	fail = true
	rr = post(h, PathPing, "ping")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestActivationHandler(t *testing.T) {
	var msgs []string
	h := NewActivationHandler(activationFunc(func(_ context.Context, m string) failover.Ack {
		msgs = append(msgs, m)
		if m == "ping" {
			return failover.AckActivated
		}
		return failover.AckError
	}))
	rr := post(h, PathActivate, "ping")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK_ACTIVATED", rr.Body.String())

	rr = post(h, PathActivate, "pong")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "ERROR", rr.Body.String())
	require.Equal(t, []string{"ping", "pong"}, msgs)
}

func TestFormatOutcome(t *testing.T) {
	id := 3
	assert.Equal(t, "3 assigned", FormatOutcome(model.Granted(3)))
	assert.Equal(t, "no agents available", FormatOutcome(model.Denied(model.ReasonNoAgents, nil)))
	assert.Equal(t, "error: timeout", FormatOutcome(model.Denied(model.ReasonTimeout, &id)))
	assert.Equal(t, "error: connection error", FormatOutcome(model.Denied(model.ReasonConnection, &id)))
}
