package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/swapwatch/internal/core/domain"
)

// defaultPriceFeeds are the Chainlink native/USD aggregators per chain.
var defaultPriceFeeds = map[domain.ChainID]string{
	domain.ChainIDEthereum: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
	domain.ChainIDPolygon:  "0xAB594600376Ec9fD91F8e885dADF0CE036862dE0",
	domain.ChainIDArbitrum: "0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612",
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	// A missing .env is fine; real deployments inject env directly.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Chain.ID == "" {
		cfg.Chain.ID = domain.ChainIDEthereum
	}
	if cfg.Chain.Name == "" {
		cfg.Chain.Name = domain.ChainIDToName[cfg.Chain.ID]
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Timeout == 0 {
			cfg.Endpoints[i].Timeout = 10 * time.Second
		}
		if cfg.Endpoints[i].Name == "" {
			cfg.Endpoints[i].Name = fmt.Sprintf("endpoint-%d", i)
		}
	}

	if cfg.Failover.Threshold == 0 {
		cfg.Failover.Threshold = 3
	}
	if cfg.Failover.Cooldown == 0 {
		cfg.Failover.Cooldown = 30 * time.Second
	}

	o := &cfg.Opportunity
	if o.MinValueUSD == 0 {
		o.MinValueUSD = 10000
	}
	if o.ImpactThreshold == 0 {
		o.ImpactThreshold = 0.3
	}
	if o.ImpactDivisor == 0 {
		o.ImpactDivisor = 200000
	}
	if o.ImpactCap == 0 {
		o.ImpactCap = 50
	}
	if o.ChannelSize == 0 {
		o.ChannelSize = 256
	}
	if o.StreamKey == "" {
		o.StreamKey = "swapwatch:opportunities"
	}
	if o.StreamMaxLen == 0 {
		o.StreamMaxLen = 10000
	}
	if o.JournalCapacity == 0 {
		o.JournalCapacity = 1000
	}

	m := &cfg.Mempool
	if m.Workers == 0 {
		m.Workers = 8
	}
	if m.QueueSize == 0 {
		m.QueueSize = 4096
	}
	if m.DedupCeiling == 0 {
		m.DedupCeiling = 10000
	}
	if m.DedupRetain == 0 {
		m.DedupRetain = m.DedupCeiling / 2
	}
	if m.FetchTimeout == 0 {
		m.FetchTimeout = 5 * time.Second
	}
	if m.ResubscribeDelay == 0 {
		m.ResubscribeDelay = 3 * time.Second
	}

	if cfg.Price.Feed == "" {
		cfg.Price.Feed = defaultPriceFeeds[cfg.Chain.ID]
	}
	if cfg.Price.RefreshInterval == 0 {
		cfg.Price.RefreshInterval = 30 * time.Second
	}
	if cfg.Price.MaxAge == 0 {
		cfg.Price.MaxAge = 5 * time.Minute
	}
	if cfg.Stats.Interval == 0 {
		cfg.Stats.Interval = time.Minute
	}
}

// Validate reports structural problems that defaults cannot fix.
func (c *AppConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("config: at least one endpoint is required")
	}
	for i, ep := range c.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("config: endpoint %d (%s) has no url", i, ep.Name)
		}
		if ep.MaxRetries < 0 {
			return fmt.Errorf("config: endpoint %s has negative max_retries", ep.Name)
		}
	}
	if c.Mempool.DedupRetain >= c.Mempool.DedupCeiling {
		return fmt.Errorf(
			"config: dedup_retain (%d) must be below dedup_ceiling (%d)",
			c.Mempool.DedupRetain, c.Mempool.DedupCeiling,
		)
	}
	if c.Price.Feed != "" && !common.IsHexAddress(c.Price.Feed) {
		return fmt.Errorf("config: price feed %q is not an address", c.Price.Feed)
	}
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("config: token %s has invalid address %q", t.Symbol, t.Address)
		}
	}
	for _, r := range c.Routers {
		if !common.IsHexAddress(r.Address) {
			return fmt.Errorf("config: router %s has invalid address %q", r.Name, r.Address)
		}
		if r.Style != domain.RouterStyleSimple && r.Style != domain.RouterStyleConcentrated {
			return fmt.Errorf("config: router %s has unknown style %q", r.Name, r.Style)
		}
	}
	return nil
}
