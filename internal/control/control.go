// Package control assembles the surveillance pipeline from configuration and
// owns its lifecycle.
package control

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/swapwatch/internal/core/config"
	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/classifier"
	"github.com/vietddude/swapwatch/internal/indexing/tokens"
	redisclient "github.com/vietddude/swapwatch/internal/infra/redis"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
	"github.com/vietddude/swapwatch/internal/infra/storage/postgres"
)

// Config holds the application configuration.
type Config struct {
	Port        int
	Chain       config.ChainConfig
	Endpoints   []config.EndpointConfig
	Failover    config.FailoverConfig
	Opportunity config.OpportunityConfig
	Mempool     config.MempoolConfig
	Price       config.PriceConfig
	Stats       config.StatsConfig
	Routers     []config.RouterConfig
	Tokens      []config.TokenConfig
	Redis       redisclient.Config
	Database    postgres.Config

	// Dial opens endpoint connections. Defaults to provider.DialEth.
	Dial provider.DialFunc
	// MetricsInterval is how often endpoint gauges are refreshed.
	MetricsInterval time.Duration
}

// FromAppConfig maps the loaded file configuration onto the watcher config.
func FromAppConfig(cfg *config.AppConfig) Config {
	return Config{
		Port:        cfg.Server.Port,
		Chain:       cfg.Chain,
		Endpoints:   cfg.Endpoints,
		Failover:    cfg.Failover,
		Opportunity: cfg.Opportunity,
		Mempool:     cfg.Mempool,
		Price:       cfg.Price,
		Stats:       cfg.Stats,
		Routers:     cfg.Routers,
		Tokens:      cfg.Tokens,
		Redis:       cfg.Redis,
		Database:    cfg.Database,
	}
}

func endpointConfigs(in []config.EndpointConfig) []provider.EndpointConfig {
	out := make([]provider.EndpointConfig, len(in))
	for i, ep := range in {
		out[i] = provider.EndpointConfig{
			Name:       ep.Name,
			URL:        ep.URL,
			Weight:     ep.Weight,
			MaxRetries: ep.MaxRetries,
			Timeout:    ep.Timeout,
		}
	}
	return out
}

// routerRegistry combines the built-in routers of the chain with configured ones.
func routerRegistry(chain domain.ChainID, extra []config.RouterConfig) *classifier.Registry {
	r := classifier.NewRegistry(classifier.DefaultRouters(chain)...)
	for _, rc := range extra {
		r.Add(domain.RouterInfo{
			Address: common.HexToAddress(rc.Address),
			Name:    rc.Name,
			Style:   rc.Style,
		})
	}
	return r
}

// tokenRegistry combines the well-known tokens of the chain with configured ones.
func tokenRegistry(chain domain.ChainID, extra []config.TokenConfig) *tokens.Registry {
	r := tokens.NewRegistry(tokens.DefaultTokens(chain)...)
	for _, tc := range extra {
		r.Add(tokens.Token{
			Address:  common.HexToAddress(tc.Address),
			Symbol:   tc.Symbol,
			Decimals: tc.Decimals,
			Stable:   tc.Stable,
			Native:   tc.Native,
		})
	}
	return r
}
