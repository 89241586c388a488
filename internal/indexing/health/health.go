// Package health provides system health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy     SystemStatus = "healthy"
	StatusDegraded    SystemStatus = "degraded"
	StatusCritical    SystemStatus = "critical"
	StatusUnavailable SystemStatus = "unavailable"
)

// severity orders statuses so the worst one wins when aggregating.
func (s SystemStatus) severity() int {
	switch s {
	case StatusDegraded:
		return 1
	case StatusCritical, StatusUnavailable:
		return 2
	default:
		return 0
	}
}

// RPCHealth describes the endpoint pool behind the failover executor.
type RPCHealth struct {
	Status    SystemStatus              `json:"status"`
	Current   string                    `json:"current"`
	Rotations int                       `json:"rotations"`
	Endpoints []provider.EndpointStatus `json:"endpoints"`
}

// PriceHealth describes the spot price cache.
type PriceHealth struct {
	Status    SystemStatus `json:"status"`
	Stale     bool         `json:"stale"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

// PipelineHealth describes the mempool subscription and its queue.
type PipelineHealth struct {
	Status     SystemStatus `json:"status"`
	Running    bool         `json:"running"`
	Subscribed bool         `json:"subscribed"`
	QueueDepth int          `json:"queue_depth"`
	Dropped    uint64       `json:"dropped"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus   `json:"system_status"`
	Chain        string         `json:"chain"`
	RPC          RPCHealth      `json:"rpc"`
	Price        PriceHealth    `json:"price"`
	Pipeline     PipelineHealth `json:"pipeline"`
	CheckedAt    time.Time      `json:"checked_at"`
}
