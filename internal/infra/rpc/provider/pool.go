package provider

import (
	"context"
	"errors"
	"log/slog"
	"sort"
)

// ErrEmptyPool is returned when a pool is built without endpoints.
var ErrEmptyPool = errors.New("endpoint pool is empty")

// Pool is the fixed, ordered set of endpoints. Endpoints are never added or
// removed after construction; selection state lives with the executor.
type Pool struct {
	endpoints []*Endpoint
}

// NewPool orders endpoints by descending weight (stable for ties) and wraps
// each one. Connections are dialed lazily.
func NewPool(configs []EndpointConfig, dial DialFunc) (*Pool, error) {
	if len(configs) == 0 {
		return nil, ErrEmptyPool
	}

	ordered := make([]EndpointConfig, len(configs))
	copy(ordered, configs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Weight > ordered[j].Weight
	})

	p := &Pool{endpoints: make([]*Endpoint, len(ordered))}
	for i, cfg := range ordered {
		p.endpoints[i] = NewEndpoint(cfg, dial)
	}
	return p, nil
}

// Size returns the number of endpoints.
func (p *Pool) Size() int {
	return len(p.endpoints)
}

// At returns the endpoint at index i.
func (p *Pool) At(i int) *Endpoint {
	return p.endpoints[i]
}

// Endpoints returns the endpoints in pool order.
func (p *Pool) Endpoints() []*Endpoint {
	out := make([]*Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Warmup dials every endpoint once so startup logs show which are reachable.
// Failures are logged and left for the executor to handle.
func (p *Pool) Warmup(ctx context.Context) int {
	ok := 0
	for _, ep := range p.endpoints {
		dialCtx, cancel := context.WithTimeout(ctx, ep.Config.Timeout)
		_, err := ep.Conn(dialCtx)
		cancel()
		if err != nil {
			slog.Warn("Endpoint unreachable at startup", "endpoint", ep.Name(), "error", err)
			continue
		}
		ok++
	}
	return ok
}

// Close closes every held connection.
func (p *Pool) Close() {
	for _, ep := range p.endpoints {
		ep.Reset()
	}
}
