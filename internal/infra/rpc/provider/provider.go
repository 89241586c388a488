// Package provider implements the RPC endpoint pool.
//
// This package contains:
//   - Conn: the chain reads the rest of the system performs against one endpoint
//   - EthConn: Conn over a go-ethereum JSON-RPC client (HTTP or WebSocket)
//   - Endpoint: one configured endpoint with a lazily dialed connection
//   - ProviderMonitor: latency and throttle tracking per endpoint
//   - Pool: the ordered, fixed set of endpoints
package provider

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Conn is a live connection to one blockchain RPC endpoint.
type Conn interface {
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error)
	Close()
}

// DialFunc opens a Conn to the given url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// EndpointConfig is the static description of one endpoint.
type EndpointConfig struct {
	Name       string
	URL        string
	Weight     int
	MaxRetries int
	Timeout    time.Duration
}

// EndpointStatus is a read-only snapshot of one endpoint.
type EndpointStatus struct {
	Name           string        `json:"name"`
	URL            string        `json:"url"`
	Active         bool          `json:"active"`
	FailureCount   int           `json:"failure_count"`
	LastFailure    time.Time     `json:"last_failure,omitempty"`
	Connected      bool          `json:"connected"`
	Health         string        `json:"health"`
	AverageLatency time.Duration `json:"average_latency"`
	RetryAfter     time.Duration `json:"retry_after,omitempty"`
}
