// Package tokens holds the token metadata used to scale and value swap amounts.
package tokens

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/swapwatch/internal/core/domain"
)

// DefaultDecimals applies to tokens that are not registered.
const DefaultDecimals int32 = 18

// Token describes one ERC-20 asset.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals int32
	Stable   bool // priced 1:1 in USD
	Native   bool // wrapped native asset, priced at the native spot price
}

// Registry is a concurrent-safe token lookup keyed by lowercase address.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewRegistry creates a registry preloaded with the given tokens.
func NewRegistry(tokens ...Token) *Registry {
	r := &Registry{tokens: make(map[string]Token, len(tokens))}
	for _, t := range tokens {
		r.Add(t)
	}
	return r
}

// Add registers a token, replacing any previous entry at the same address.
func (r *Registry) Add(t Token) {
	if t.Decimals == 0 {
		t.Decimals = DefaultDecimals
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[strings.ToLower(t.Address.Hex())] = t
}

// Lookup returns the token registered at address.
func (r *Registry) Lookup(address string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[strings.ToLower(address)]
	return t, ok
}

// Decimals returns the token's decimals, or DefaultDecimals when unknown.
func (r *Registry) Decimals(address string) int32 {
	if t, ok := r.Lookup(address); ok {
		return t.Decimals
	}
	return DefaultDecimals
}

// IsStable reports whether the token is a USD stablecoin.
func (r *Registry) IsStable(address string) bool {
	t, ok := r.Lookup(address)
	return ok && t.Stable
}

// IsNative reports whether the token is the wrapped native asset.
func (r *Registry) IsNative(address string) bool {
	t, ok := r.Lookup(address)
	return ok && t.Native
}

// Size returns the number of registered tokens.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Scale converts a raw on-chain amount into whole units of the token at address.
func (r *Registry) Scale(address string, raw *big.Int) decimal.Decimal {
	return ScaleAmount(raw, r.Decimals(address))
}

// ScaleAmount converts a raw integer amount into whole units.
func ScaleAmount(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// DefaultTokens returns well-known token metadata for a chain.
func DefaultTokens(chain domain.ChainID) []Token {
	if chain != domain.ChainIDEthereum {
		return nil
	}
	return []Token{
		{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH", Decimals: 18, Native: true},
		{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC", Decimals: 6, Stable: true},
		{Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Symbol: "USDT", Decimals: 6, Stable: true},
		{Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Symbol: "DAI", Decimals: 18, Stable: true},
		{Address: common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"), Symbol: "WBTC", Decimals: 8},
	}
}
