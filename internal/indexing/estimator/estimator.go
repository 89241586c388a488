// Package estimator values decoded swaps in USD and derives a coarse price
// impact figure from that value.
package estimator

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/tokens"
)

// PriceSource supplies the native asset's USD spot price. stale is set when
// the value is older than the source's freshness bound or was never fetched.
type PriceSource interface {
	SpotPriceUSD() (price float64, stale bool)
}

// Config holds the impact proxy parameters.
type Config struct {
	ImpactDivisor float64
	ImpactCap     float64
}

// Estimate is the valuation of one swap.
type Estimate struct {
	ValueUSD      float64
	ImpactPercent float64
	PriceStale    bool
}

// Estimator converts NormalizedSwap amounts into USD.
type Estimator struct {
	tokens *tokens.Registry
	price  PriceSource
	cfg    Config
}

// New creates an estimator. Zero config values fall back to a divisor of
// 200000 and a cap of 50 percent.
func New(registry *tokens.Registry, price PriceSource, cfg Config) *Estimator {
	if cfg.ImpactDivisor <= 0 {
		cfg.ImpactDivisor = 200000
	}
	if cfg.ImpactCap <= 0 {
		cfg.ImpactCap = 50
	}
	if registry == nil {
		registry = tokens.NewRegistry()
	}
	return &Estimator{tokens: registry, price: price, cfg: cfg}
}

// Estimate values the swap and derives its impact.
func (e *Estimator) Estimate(swap *domain.NormalizedSwap, nativeValue *big.Int) Estimate {
	value, stale := e.value(swap, nativeValue)
	return Estimate{
		ValueUSD:      value,
		ImpactPercent: e.Impact(value),
		PriceStale:    stale,
	}
}

// ValueUSD returns the approximate USD notional of the swap's input leg.
//
// A native input is valued at the spot price, using the attached transaction
// value when there is one. A stable input is taken 1:1. Any other token is
// multiplied by the native spot price, which is only a heuristic.
func (e *Estimator) ValueUSD(swap *domain.NormalizedSwap, nativeValue *big.Int) float64 {
	v, _ := e.value(swap, nativeValue)
	return v
}

// Impact maps a USD value onto a linear impact proxy capped at the configured
// ceiling. It does not model pool depth.
func (e *Estimator) Impact(valueUSD float64) float64 {
	if valueUSD <= 0 {
		return 0
	}
	impact := valueUSD * 100 / e.cfg.ImpactDivisor
	if impact > e.cfg.ImpactCap {
		return e.cfg.ImpactCap
	}
	return impact
}

func (e *Estimator) value(swap *domain.NormalizedSwap, nativeValue *big.Int) (float64, bool) {
	if swap == nil {
		return 0, false
	}

	if swap.NativeIn || e.tokens.IsNative(swap.TokenIn) {
		amount := swap.AmountIn
		if nativeValue != nil && nativeValue.Sign() > 0 {
			amount = tokens.ScaleAmount(nativeValue, tokens.DefaultDecimals)
		}
		return e.atSpot(amount)
	}

	if e.tokens.IsStable(swap.TokenIn) {
		return swap.AmountIn.InexactFloat64(), false
	}

	return e.atSpot(swap.AmountIn)
}

func (e *Estimator) atSpot(amount decimal.Decimal) (float64, bool) {
	if e.price == nil {
		return 0, true
	}
	spot, stale := e.price.SpotPriceUSD()
	return amount.Mul(decimal.NewFromFloat(spot)).InexactFloat64(), stale
}
