package provider

import (
	"context"
	"sync"
	"time"
)

// Endpoint is one configured RPC endpoint. The connection is dialed on first
// use and redialed after Reset or Invalidate.
type Endpoint struct {
	Config  EndpointConfig
	Monitor *ProviderMonitor

	dial DialFunc

	// dialing admits one dialer at a time; mu only guards conn, so status
	// reads never wait on a dial.
	dialing chan struct{}

	mu   sync.Mutex
	conn Conn
}

// NewEndpoint creates an endpoint that dials with the given function.
func NewEndpoint(cfg EndpointConfig, dial DialFunc) *Endpoint {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if dial == nil {
		dial = DialEth
	}
	return &Endpoint{
		Config:  cfg,
		Monitor: NewProviderMonitor(),
		dial:    dial,
		dialing: make(chan struct{}, 1),
	}
}

// Name returns the endpoint's name.
func (e *Endpoint) Name() string {
	return e.Config.Name
}

// Conn returns the live connection, dialing if needed.
func (e *Endpoint) Conn(ctx context.Context) (Conn, error) {
	if conn := e.held(); conn != nil {
		return conn, nil
	}

	select {
	case e.dialing <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.dialing }()

	// Another caller may have finished dialing while we waited.
	if conn := e.held(); conn != nil {
		return conn, nil
	}
	conn, err := e.dial(ctx, e.Config.URL)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
	return conn, nil
}

func (e *Endpoint) held() Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// Connected reports whether a connection is currently held.
func (e *Endpoint) Connected() bool {
	return e.held() != nil
}

// Reset closes the held connection so the next Conn call redials.
func (e *Endpoint) Reset() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Invalidate closes conn if it is still the held connection. A failure seen
// on a connection that was already replaced leaves the new one alone.
func (e *Endpoint) Invalidate(conn Conn) bool {
	if conn == nil {
		return false
	}
	e.mu.Lock()
	if e.conn != conn {
		e.mu.Unlock()
		return false
	}
	e.conn = nil
	e.mu.Unlock()

	conn.Close()
	return true
}
