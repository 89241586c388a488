package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/swapwatch/internal/indexing/mempool"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
	"github.com/vietddude/swapwatch/internal/infra/rpc/routing"
)

// checkInterval bounds how often a report probes the RPC endpoints.
const checkInterval = 10 * time.Second

// EndpointSource is the failover executor as seen by the monitor.
type EndpointSource interface {
	HealthCheck(ctx context.Context) bool
	CurrentProvider() routing.ProviderInfo
	ProviderStatus() []provider.EndpointStatus
	Rotations() int
}

// PriceSource exposes the freshness of the spot price.
type PriceSource interface {
	Stale() bool
	UpdatedAt() time.Time
}

// PipelineSource exposes the mempool pipeline state.
type PipelineSource interface {
	Running() bool
	Stats() mempool.Stats
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	chain    string
	rpc      EndpointSource
	price    PriceSource
	pipeline PipelineSource
	now      func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. price and pipeline may be nil.
func NewMonitor(chain string, rpc EndpointSource, price PriceSource, pipeline PipelineSource) *Monitor {
	return &Monitor{
		chain:    chain,
		rpc:      rpc,
		price:    price,
		pipeline: pipeline,
		now:      time.Now,
	}
}

// CheckHealth builds a report, reusing the previous one if it is recent.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	report := HealthReport{
		Chain:     m.chain,
		RPC:       m.checkRPC(ctx),
		Price:     m.checkPrice(),
		Pipeline:  m.checkPipeline(),
		CheckedAt: now,
	}
	report.SystemStatus = worst(report.RPC.Status, report.Price.Status, report.Pipeline.Status)

	m.lastCheck = now
	m.lastReport = &report
	return report
}

func (m *Monitor) checkRPC(ctx context.Context) RPCHealth {
	h := RPCHealth{Status: StatusHealthy}
	if m.rpc == nil {
		h.Status = StatusUnavailable
		return h
	}

	h.Current = m.rpc.CurrentProvider().Name
	h.Rotations = m.rpc.Rotations()
	h.Endpoints = m.rpc.ProviderStatus()

	if !m.rpc.HealthCheck(ctx) {
		// The probe makes a single attempt, so a failure means the active
		// endpoint is exhausted for this call.
		h.Status = StatusUnavailable
		return h
	}
	for _, ep := range h.Endpoints {
		if ep.FailureCount > 0 || !ep.Connected || ep.RetryAfter > 0 {
			h.Status = StatusDegraded
			break
		}
	}
	return h
}

func (m *Monitor) checkPrice() PriceHealth {
	h := PriceHealth{Status: StatusHealthy}
	if m.price == nil {
		h.Status = StatusDegraded
		h.Stale = true
		return h
	}
	h.UpdatedAt = m.price.UpdatedAt()
	if m.price.Stale() {
		h.Status = StatusDegraded
		h.Stale = true
	}
	return h
}

func (m *Monitor) checkPipeline() PipelineHealth {
	h := PipelineHealth{Status: StatusHealthy}
	if m.pipeline == nil {
		h.Status = StatusCritical
		return h
	}
	stats := m.pipeline.Stats()
	h.Running = m.pipeline.Running()
	h.Subscribed = stats.Subscribed
	h.QueueDepth = stats.QueueDepth
	h.Dropped = stats.Dropped

	switch {
	case !h.Running:
		h.Status = StatusCritical
	case !h.Subscribed:
		h.Status = StatusDegraded
	}
	return h
}

func worst(statuses ...SystemStatus) SystemStatus {
	out := StatusHealthy
	for _, s := range statuses {
		if s.severity() > out.severity() {
			out = s
		}
	}
	if out == StatusUnavailable {
		return StatusCritical
	}
	return out
}
