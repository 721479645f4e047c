package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/taxidispatch/core/dispatch"
	"github.com/kilianp07/taxidispatch/core/failover"
	"github.com/kilianp07/taxidispatch/core/health"
	"github.com/kilianp07/taxidispatch/core/model"
)

// exchange posts body to url and returns the status and reply text.
func exchange(ctx context.Context, c *http.Client, url, body string, header http.Header) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(b)), nil
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	return "http://" + addr
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ProbeClient pings a health endpoint.
type ProbeClient struct {
	addr   string
	client *http.Client
}

// NewProbeClient returns a prober for the health endpoint at addr.
func NewProbeClient(addr string) *ProbeClient {
	return &ProbeClient{addr: addr, client: &http.Client{Transport: oneShot()}}
}

// Ping sends one probe. The deadline comes from ctx.
func (p *ProbeClient) Ping(ctx context.Context) error {
	_, reply, err := exchange(ctx, p.client, baseURL(p.addr)+PathPing, MsgPing, nil)
	if err != nil {
		return err
	}
	if reply != MsgPong {
		return fmt.Errorf("%w: %q", health.ErrBadReply, reply)
	}
	return nil
}

// ActivationClient signals a replica.
type ActivationClient struct {
	addr   string
	client *http.Client
}

// NewActivationClient returns an activator for the endpoint at addr.
func NewActivationClient(addr string) *ActivationClient {
	return &ActivationClient{addr: addr, client: &http.Client{Transport: oneShot()}}
}

// Activate sends the activation signal and decodes the acknowledgment.
func (a *ActivationClient) Activate(ctx context.Context) (failover.Ack, error) {
	_, reply, err := exchange(ctx, a.client, baseURL(a.addr)+PathActivate, failover.ActivationSignal, nil)
	if err != nil {
		return "", err
	}
	return failover.ParseAck(reply)
}

// AssignClient performs assignment exchanges with agents. A fresh connection
// is used for every attempt.
type AssignClient struct {
	client *http.Client
}

func NewAssignClient() *AssignClient {
	return &AssignClient{client: &http.Client{Transport: oneShot()}}
}

// Assign offers the service to agent. Any 2xx reply is an acceptance.
func (a *AssignClient) Assign(ctx context.Context, agent model.AgentRecord, assignmentID string) (string, error) {
	h := http.Header{}
	h.Set(HeaderAssignmentID, assignmentID)
	status, reply, err := exchange(ctx, a.client, baseURL(agent.Address.String())+PathAssign, MsgAssign, h)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: agent %d: %v", dispatch.ErrAssignTimeout, agent.ID, err)
		}
		return "", fmt.Errorf("%w: agent %d: %v", dispatch.ErrAssignConnection, agent.ID, err)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("%w: agent %d answered %d %q", dispatch.ErrAssignConnection, agent.ID, status, reply)
	}
	return reply, nil
}

// RequestClient sends user requests, trying each address in order until one
// answers as primary.
type RequestClient struct {
	addrs   []string
	client  *http.Client
	timeout time.Duration
}

// NewRequestClient returns a client for the given request endpoints. timeout
// bounds each attempt.
func NewRequestClient(timeout time.Duration, addrs ...string) *RequestClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RequestClient{addrs: addrs, client: &http.Client{Transport: oneShot()}, timeout: timeout}
}

// Request returns the first primary reply. Standby replies and transport
// failures move on to the next address.
func (c *RequestClient) Request(ctx context.Context, req model.ServiceRequest) (string, error) {
	body, err := EncodeRequest(req)
	if err != nil {
		return "", err
	}
	var errs []error
	for _, addr := range c.addrs {
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		status, reply, err := exchange(actx, c.client, baseURL(addr)+PathRequest, string(body), nil)
		cancel()
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		case status == http.StatusServiceUnavailable && reply == MsgNotPrimary:
			errs = append(errs, fmt.Errorf("%s: %w", addr, ErrNotPrimary))
		default:
			return reply, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}

func oneShot() *http.Transport {
	return &http.Transport{DisableKeepAlives: true, Proxy: nil}
}
