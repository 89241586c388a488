// Package price caches the native asset's USD spot price read from an
// on-chain reference feed.
package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/swapwatch/internal/indexing/metrics"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
	"github.com/vietddude/swapwatch/internal/infra/rpc/routing"
)

const aggregatorABI = `[
 {"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
 {"name":"latestRoundData","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},{"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},{"name":"answeredInRound","type":"uint80"}]}
]`

// ErrNoFeed is returned by Refresh when no feed address is configured.
var ErrNoFeed = errors.New("no price feed configured")

// Config holds the feed location and freshness bounds.
type Config struct {
	ChainName       string
	Feed            common.Address
	RefreshInterval time.Duration
	MaxAge          time.Duration
	// Initial seeds the cache. It is reported as stale until a refresh succeeds.
	Initial float64
}

// Cache is a read-through cache over a Chainlink-style aggregator.
type Cache struct {
	exec *routing.Executor
	cfg  Config
	abi  abi.ABI
	log  *slog.Logger
	now  func() time.Time

	mu        sync.RWMutex
	price     float64
	updatedAt time.Time
	decimals  *uint8
}

// New creates a price cache reading through exec.
func New(exec *routing.Executor, cfg Config) (*Cache, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	return &Cache{
		exec:  exec,
		cfg:   cfg,
		abi:   parsed,
		log:   slog.Default().With("component", "price", "chain", cfg.ChainName),
		now:   time.Now,
		price: cfg.Initial,
	}, nil
}

// SpotPriceUSD returns the cached price and whether it is stale.
func (c *Cache) SpotPriceUSD() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.price, c.staleLocked()
}

// UpdatedAt returns when the feed last updated the cached price.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Stale reports whether the feed's last update is older than MaxAge.
func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleLocked()
}

func (c *Cache) staleLocked() bool {
	return c.updatedAt.IsZero() || c.now().Sub(c.updatedAt) > c.cfg.MaxAge
}

// Refresh reads the feed once and updates the cache. On failure the previous
// value is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	if c.cfg.Feed == (common.Address{}) {
		return ErrNoFeed
	}

	dec, err := c.feedDecimals(ctx)
	if err != nil {
		return err
	}

	out, err := c.call(ctx, "latestRoundData")
	if err != nil {
		return err
	}
	values, err := c.abi.Unpack("latestRoundData", out)
	if err != nil {
		return fmt.Errorf("unpack latestRoundData: %w", err)
	}
	if len(values) < 2 {
		return fmt.Errorf("latestRoundData returned %d values", len(values))
	}
	answer, ok := values[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return fmt.Errorf("feed returned non-positive answer %v", values[1])
	}

	var updatedAt time.Time
	if len(values) >= 4 {
		if ts, ok := values[3].(*big.Int); ok && ts.Sign() > 0 {
			updatedAt = time.Unix(ts.Int64(), 0)
		}
	}
	if updatedAt.IsZero() {
		return errors.New("feed round has no update time")
	}
	// A feed clock ahead of ours counts as fresh, not as future-dated.
	if now := c.now(); updatedAt.After(now) {
		updatedAt = now
	}

	price := decimal.NewFromBigInt(answer, -int32(dec)).InexactFloat64()

	c.mu.Lock()
	c.price = price
	c.updatedAt = updatedAt
	stale := c.staleLocked()
	c.mu.Unlock()

	metrics.SpotPriceUSD.WithLabelValues(c.cfg.ChainName).Set(price)
	if stale {
		metrics.SpotPriceStale.WithLabelValues(c.cfg.ChainName).Set(1)
		c.log.Warn("Price feed has not updated within max age",
			"updated_at", updatedAt,
			"max_age", c.cfg.MaxAge,
		)
	} else {
		metrics.SpotPriceStale.WithLabelValues(c.cfg.ChainName).Set(0)
	}
	return nil
}

// Run refreshes the price on every interval until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) error {
	if c.cfg.Feed == (common.Address{}) {
		c.log.Warn("No price feed configured, using static price", "price", c.cfg.Initial)
		<-ctx.Done()
		return ctx.Err()
	}

	c.refreshAndLog(ctx)

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refreshAndLog(ctx)
		}
	}
}

func (c *Cache) refreshAndLog(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		stale := c.Stale()
		if stale {
			metrics.SpotPriceStale.WithLabelValues(c.cfg.ChainName).Set(1)
		}
		c.log.Warn("Price refresh failed", "error", err, "stale", stale)
		return
	}
	price, _ := c.SpotPriceUSD()
	c.log.Debug("Price refreshed", "price_usd", price)
}

func (c *Cache) feedDecimals(ctx context.Context) (uint8, error) {
	c.mu.RLock()
	known := c.decimals
	c.mu.RUnlock()
	if known != nil {
		return *known, nil
	}

	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	values, err := c.abi.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}

	c.mu.Lock()
	c.decimals = &dec
	c.mu.Unlock()
	return dec, nil
}

func (c *Cache) call(ctx context.Context, method string) ([]byte, error) {
	data, err := c.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	feed := c.cfg.Feed
	out, err := routing.Do(ctx, c.exec, func(ctx context.Context, conn provider.Conn) ([]byte, error) {
		return conn.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: data}, nil)
	}, routing.WithMethod("eth_call"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}
