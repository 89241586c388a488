package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// EncodedToken marks a token that sits inside a packed multi-hop path and was not unpacked.
const EncodedToken = "encoded"

// SwapKind tags the decode rule that produced a swap.
type SwapKind string

const (
	SwapKindV2Path   SwapKind = "v2_path"
	SwapKindV3Single SwapKind = "v3_single"
	SwapKindV3Path   SwapKind = "v3_path"
)

// NormalizedSwap is the router-independent shape of a decoded swap call.
type NormalizedSwap struct {
	Kind        SwapKind        `json:"kind"`
	Method      string          `json:"method"`
	TokenIn     string          `json:"token_in"`
	TokenOut    string          `json:"token_out"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountInRaw *big.Int        `json:"amount_in_raw"`
	Route       []string        `json:"route,omitempty"`
	FeeTier     *uint32         `json:"fee_tier,omitempty"`
	// NativeIn is set when the input leg is paid with the transaction value.
	NativeIn bool `json:"native_in"`
	// ExactOut is set when AmountIn is the caller's maximum rather than an exact amount.
	ExactOut bool `json:"exact_out"`
}
