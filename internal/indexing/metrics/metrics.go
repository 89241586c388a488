package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks RPC attempts per endpoint and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_rpc_calls_total",
			Help: "Total number of RPC attempts",
		},
		[]string{"chain", "provider", "method"},
	)

	// RPCErrorsTotal tracks failed RPC attempts per endpoint
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_rpc_errors_total",
			Help: "Total number of failed RPC attempts",
		},
		[]string{"chain", "provider", "error_type"},
	)

	// RPCLatency tracks RPC attempt latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swapwatch_rpc_latency_seconds",
			Help:    "RPC attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "provider", "method"},
	)

	// RPCRotationsTotal tracks active endpoint rotations
	RPCRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_rpc_rotations_total",
			Help: "Total number of active endpoint rotations",
		},
		[]string{"chain", "reason"},
	)

	// RPCExhaustedTotal tracks calls that failed on every attempt
	RPCExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_rpc_exhausted_total",
			Help: "Total number of calls that exhausted all attempts",
		},
		[]string{"chain", "method"},
	)

	// RPCActiveEndpoint is 1 for the currently bound endpoint and 0 otherwise
	RPCActiveEndpoint = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swapwatch_rpc_active_endpoint",
			Help: "Whether the endpoint is the active one",
		},
		[]string{"chain", "provider"},
	)

	// RPCEndpointFailures mirrors each endpoint's consecutive failure counter
	RPCEndpointFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swapwatch_rpc_endpoint_failures",
			Help: "Consecutive failure count per endpoint",
		},
		[]string{"chain", "provider"},
	)

	// MempoolTxTotal counts pending transactions by pipeline stage
	MempoolTxTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_mempool_transactions_total",
			Help: "Pending transactions by pipeline stage",
		},
		[]string{"chain", "stage"},
	)

	// MempoolDroppedTotal counts hashes or events dropped on full buffers
	MempoolDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_mempool_dropped_total",
			Help: "Items dropped because a bounded buffer was full",
		},
		[]string{"chain", "buffer"},
	)

	// MempoolQueueDepth tracks pending hashes waiting for a worker
	MempoolQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swapwatch_mempool_queue_depth",
			Help: "Pending hashes waiting for a worker",
		},
		[]string{"chain"},
	)

	// SubscriptionErrorsTotal counts pending-transaction subscription failures
	SubscriptionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_subscription_errors_total",
			Help: "Pending-transaction subscription failures",
		},
		[]string{"chain", "provider"},
	)

	// SwapsDecodedTotal counts decoded swaps per router and method
	SwapsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_swaps_decoded_total",
			Help: "Decoded swap calls",
		},
		[]string{"chain", "router", "method"},
	)

	// SwapValueUSD tracks estimated swap notional
	SwapValueUSD = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swapwatch_swap_value_usd",
			Help:    "Estimated USD value of decoded swaps",
			Buckets: prometheus.ExponentialBuckets(100, 4, 10),
		},
		[]string{"chain", "router"},
	)

	// OpportunitiesTotal counts emitted opportunity events
	OpportunitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_opportunities_total",
			Help: "Opportunity events emitted",
		},
		[]string{"chain", "router"},
	)

	// SinkErrorsTotal counts failed deliveries per sink
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapwatch_sink_errors_total",
			Help: "Failed opportunity deliveries per sink",
		},
		[]string{"sink"},
	)

	// SpotPriceUSD tracks the cached native spot price
	SpotPriceUSD = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swapwatch_spot_price_usd",
			Help: "Cached native asset spot price in USD",
		},
		[]string{"chain"},
	)

	// SpotPriceStale is 1 while the cached price is older than its max age
	SpotPriceStale = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swapwatch_spot_price_stale",
			Help: "Whether the cached spot price is stale",
		},
		[]string{"chain"},
	)

	// DBConnectionPoolUsage tracks journal connection pool usage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapwatch_db_connection_pool_usage_percent",
			Help: "Percentage of database connection pool in use",
		},
	)
)
