package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kilianp07/taxidispatch/core/failover"
	"github.com/kilianp07/taxidispatch/core/model"
)

// ErrNotPrimary is returned by a RequestHandler running on a standby.
var ErrNotPrimary = errors.New("not primary")

// ErrMalformedRequest is returned for request bodies that do not decode.
var ErrMalformedRequest = errors.New("malformed request")

// RequestHandler answers one decoded service request with the user reply.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req model.ServiceRequest) (string, error)
}

// ProbeHandler answers one liveness probe.
type ProbeHandler interface {
	HandleProbe(ctx context.Context) error
}

// ActivationHandler answers one activation message.
type ActivationHandler interface {
	HandleActivation(ctx context.Context, msg string) failover.Ack
}

// wireRequest requires every field to be present.
type wireRequest struct {
	Version *int     `json:"version"`
	UserID  *int     `json:"user_id"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
}

// DecodeRequest parses a request body.
func DecodeRequest(body []byte) (model.ServiceRequest, error) {
	var w wireRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return model.ServiceRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if w.Version == nil || w.UserID == nil || w.X == nil || w.Y == nil {
		return model.ServiceRequest{}, fmt.Errorf("%w: version, user_id, x and y are required", ErrMalformedRequest)
	}
	req := model.ServiceRequest{Version: *w.Version, UserID: *w.UserID, X: *w.X, Y: *w.Y}
	if err := req.Validate(); err != nil {
		return model.ServiceRequest{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// EncodeRequest renders req as a request body.
func EncodeRequest(req model.ServiceRequest) ([]byte, error) {
	if req.Version == 0 {
		req.Version = model.RequestSchemaVersion
	}
	return json.Marshal(req)
}

// NewRequestHandler serves POST /v1/requests.
func NewRequestHandler(h RequestHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := readBody(r)
		if err != nil {
			writeText(w, http.StatusBadRequest, MsgMalformed)
			return
		}
		req, err := DecodeRequest(body)
		if err != nil {
			writeText(w, http.StatusBadRequest, MsgMalformed)
			return
		}
		reply, err := h.HandleRequest(r.Context(), req)
		switch {
		case errors.Is(err, ErrNotPrimary):
			writeText(w, http.StatusServiceUnavailable, MsgNotPrimary)
		case err != nil:
			writeText(w, http.StatusServiceUnavailable, "error: "+err.Error())
		default:
			writeText(w, http.StatusOK, reply)
		}
	})
}

// NewProbeHandler serves POST /ping.
func NewProbeHandler(h ProbeHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := readBody(r)
		if err != nil || strings.TrimSpace(string(body)) != MsgPing {
			writeText(w, http.StatusBadRequest, MsgMalformed)
			return
		}
		if err := h.HandleProbe(r.Context()); err != nil {
			writeText(w, http.StatusServiceUnavailable, "error: "+err.Error())
			return
		}
		writeText(w, http.StatusOK, MsgPong)
	})
}

// NewActivationHandler serves POST /activate. The body is forwarded as is;
// the coordinator decides whether it is a valid signal.
func NewActivationHandler(h ActivationHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := readBody(r)
		if err != nil {
			writeText(w, http.StatusBadRequest, string(failover.AckError))
			return
		}
		ack := h.HandleActivation(r.Context(), string(body))
		status := http.StatusOK
		if !ack.Success() {
			status = http.StatusConflict
		}
		writeText(w, status, string(ack))
	})
}

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxBody))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
