package config

import (
	"time"

	"github.com/vietddude/swapwatch/internal/core/domain"
	redisclient "github.com/vietddude/swapwatch/internal/infra/redis"
	"github.com/vietddude/swapwatch/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Chain       ChainConfig        `yaml:"chain"`
	Endpoints   []EndpointConfig   `yaml:"endpoints"`
	Failover    FailoverConfig     `yaml:"failover"`
	Opportunity OpportunityConfig  `yaml:"opportunity"`
	Mempool     MempoolConfig      `yaml:"mempool"`
	Price       PriceConfig        `yaml:"price"`
	Stats       StatsConfig        `yaml:"stats"`
	Routers     []RouterConfig     `yaml:"routers"`
	Tokens      []TokenConfig      `yaml:"tokens"`
	Redis       redisclient.Config `yaml:"redis"`
	Logging     LoggingConfig      `yaml:"logging"`
	Database    postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig identifies the monitored chain.
type ChainConfig struct {
	ID   domain.ChainID   `yaml:"id"`
	Name domain.ChainName `yaml:"name"`
}

// EndpointConfig holds settings for one RPC endpoint.
type EndpointConfig struct {
	Name       string        `yaml:"name"`
	URL        string        `yaml:"url"`
	Weight     int           `yaml:"weight"`
	MaxRetries int           `yaml:"max_retries"` // retries on this endpoint within one call before rotating
	Timeout    time.Duration `yaml:"timeout"`
}

// FailoverConfig controls sustained-failure rotation.
type FailoverConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// OpportunityConfig holds the value and impact gates.
type OpportunityConfig struct {
	MinValueUSD     float64 `yaml:"min_value_usd"`
	ImpactThreshold float64 `yaml:"impact_threshold"` // percent
	ImpactDivisor   float64 `yaml:"impact_divisor"`
	ImpactCap       float64 `yaml:"impact_cap"`
	ChannelSize     int     `yaml:"channel_size"`
	StreamKey       string  `yaml:"stream_key"`
	StreamMaxLen    int64   `yaml:"stream_max_len"`

	JournalCapacity int           `yaml:"journal_capacity"` // in-memory journal size
	Retention       time.Duration `yaml:"retention"`        // journal pruning age, 0 keeps everything
}

// MempoolConfig holds pipeline sizing.
type MempoolConfig struct {
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	DedupCeiling     int           `yaml:"dedup_ceiling"`
	DedupRetain      int           `yaml:"dedup_retain"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	ResubscribeDelay time.Duration `yaml:"resubscribe_delay"`
}

// PriceConfig configures the native spot price feed.
type PriceConfig struct {
	Feed            string        `yaml:"feed"` // Chainlink aggregator address
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MaxAge          time.Duration `yaml:"max_age"`
	Initial         float64       `yaml:"initial"` // seed price used until the first refresh
}

// StatsConfig configures the periodic statistics report.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// RouterConfig registers an extra router on top of the built-in ones.
type RouterConfig struct {
	Address string             `yaml:"address"`
	Name    string             `yaml:"name"`
	Style   domain.RouterStyle `yaml:"style"`
}

// TokenConfig registers token metadata used for amount scaling.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
	Stable   bool   `yaml:"stable"`
	Native   bool   `yaml:"native"` // wrapped native asset
}
