package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/kilianp07/taxidispatch/core/logger"
)

// Endpoint is a bound listener served by an http.Server. Binding happens in
// Listen so that address conflicts surface to the caller immediately.
type Endpoint struct {
	name     string
	listener net.Listener
	server   *http.Server
	done     chan struct{}
	log      logger.Logger
}

// Listen binds addr and starts serving handler in the background.
func Listen(name, addr string, handler http.Handler, log logger.Logger) (*Endpoint, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	e := &Endpoint{
		name:     name,
		listener: l,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan struct{}),
		log:  log,
	}
	go func() {
		defer close(e.done)
		if err := e.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Errorf("%s endpoint stopped: %v", e.name, err)
		}
	}()
	log.Infof("%s endpoint listening on %s", name, l.Addr())
	return e, nil
}

// Addr returns the bound address in host:port form.
func (e *Endpoint) Addr() string { return e.listener.Addr().String() }

// Name returns the endpoint label.
func (e *Endpoint) Name() string { return e.name }

// Shutdown stops accepting connections and waits for in-flight exchanges
// until ctx expires, then closes them.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	err := e.server.Shutdown(ctx)
	if err != nil {
		_ = e.server.Close()
	}
	<-e.done
	return err
}
