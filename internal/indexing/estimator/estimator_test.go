package estimator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/tokens"
)

type fixedPrice struct {
	price float64
	stale bool
}

func (f fixedPrice) SpotPriceUSD() (float64, bool) { return f.price, f.stale }

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2").Hex()
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48").Hex()
	wbtc = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599").Hex()
)

func newEstimator(price float64, stale bool) *Estimator {
	return New(
		tokens.NewRegistry(tokens.DefaultTokens(domain.ChainIDEthereum)...),
		fixedPrice{price: price, stale: stale},
		Config{ImpactDivisor: 200000, ImpactCap: 50},
	)
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestValueUSD(t *testing.T) {
	tests := []struct {
		name        string
		swap        *domain.NormalizedSwap
		nativeValue *big.Int
		want        float64
	}{
		{
			name:        "native input uses transaction value",
			swap:        &domain.NormalizedSwap{TokenIn: weth, AmountIn: decimal.NewFromInt(10), NativeIn: true},
			nativeValue: ether(10),
			want:        2000,
		},
		{
			name: "wrapped native without value uses amount",
			swap: &domain.NormalizedSwap{TokenIn: weth, AmountIn: decimal.NewFromInt(10)},
			want: 2000,
		},
		{
			name: "stable input is taken at par",
			swap: &domain.NormalizedSwap{TokenIn: usdc, AmountIn: decimal.NewFromInt(25000)},
			want: 25000,
		},
		{
			name: "other token falls back to spot",
			swap: &domain.NormalizedSwap{TokenIn: wbtc, AmountIn: decimal.NewFromInt(3)},
			want: 600,
		},
		{
			name: "encoded path falls back to spot",
			swap: &domain.NormalizedSwap{TokenIn: domain.EncodedToken, AmountIn: decimal.NewFromInt(1)},
			want: 200,
		},
		{
			name: "nil swap",
			want: 0,
		},
	}

	e := newEstimator(200, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.ValueUSD(tt.swap, tt.nativeValue); got != tt.want {
				t.Errorf("ValueUSD = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImpact(t *testing.T) {
	e := newEstimator(200, false)

	tests := []struct {
		value float64
		want  float64
	}{
		{0, 0},
		{-5, 0},
		{2000, 1},
		{125000, 50},
		{200000, 50},
		{50000, 25},
	}
	for _, tt := range tests {
		if got := e.Impact(tt.value); got != tt.want {
			t.Errorf("Impact(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestEstimate_CarriesStaleness(t *testing.T) {
	e := newEstimator(2500, true)
	swap := &domain.NormalizedSwap{TokenIn: weth, AmountIn: decimal.NewFromInt(50), NativeIn: true}

	got := e.Estimate(swap, ether(50))
	if got.ValueUSD != 125000 {
		t.Errorf("ValueUSD = %v, want 125000", got.ValueUSD)
	}
	if got.ImpactPercent != 50 {
		t.Errorf("ImpactPercent = %v, want 50", got.ImpactPercent)
	}
	if !got.PriceStale {
		t.Error("expected stale price to be reported")
	}
}

func TestNew_Defaults(t *testing.T) {
	e := New(nil, fixedPrice{price: 1}, Config{})
	if got := e.Impact(200000); got != 50 {
		t.Errorf("Impact with defaults = %v, want 50", got)
	}
	if got := e.Impact(20000); got != 10 {
		t.Errorf("Impact with defaults = %v, want 10", got)
	}
}
