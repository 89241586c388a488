// Package decoder turns router calldata into NormalizedSwap values.
//
// Dispatch is a static table from 4-byte selector to a decode rule, built once
// per router style from the router ABIs. Calldata that matches no rule, or
// that fails to unpack, is reported as "no swap" and never as an error.
package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/tokens"
)

type ruleKind int

const (
	ruleV2Path ruleKind = iota
	ruleV3Single
	ruleV3Path
	ruleMulticall
)

// rule is one decode variant. Argument indexes refer to the method's inputs.
type rule struct {
	kind      ruleKind
	method    abi.Method
	amountArg int  // v2: amount-in argument, -1 when paid with the transaction value
	pathArg   int  // v2: address[] path argument
	dataArg   int  // multicall: bytes[] argument
	exactOut  bool // amount is the caller's maximum input
	deadline  bool // v3: params struct carries a deadline field
}

type table map[[4]byte]rule

var (
	v2Rules = map[string]rule{
		"swapExactTokensForTokens":                              {kind: ruleV2Path, amountArg: 0, pathArg: 2},
		"swapTokensForExactTokens":                              {kind: ruleV2Path, amountArg: 1, pathArg: 2, exactOut: true},
		"swapExactETHForTokens":                                 {kind: ruleV2Path, amountArg: -1, pathArg: 1},
		"swapTokensForExactETH":                                 {kind: ruleV2Path, amountArg: 1, pathArg: 2, exactOut: true},
		"swapExactTokensForETH":                                 {kind: ruleV2Path, amountArg: 0, pathArg: 2},
		"swapETHForExactTokens":                                 {kind: ruleV2Path, amountArg: -1, pathArg: 1, exactOut: true},
		"swapExactTokensForTokensSupportingFeeOnTransferTokens": {kind: ruleV2Path, amountArg: 0, pathArg: 2},
		"swapExactETHForTokensSupportingFeeOnTransferTokens":    {kind: ruleV2Path, amountArg: -1, pathArg: 1},
		"swapExactTokensForETHSupportingFeeOnTransferTokens":    {kind: ruleV2Path, amountArg: 0, pathArg: 2},
	}

	swapRouterRules = map[string]rule{
		"exactInputSingle":  {kind: ruleV3Single, deadline: true},
		"exactOutputSingle": {kind: ruleV3Single, deadline: true, exactOut: true},
		"exactInput":        {kind: ruleV3Path, deadline: true},
		"exactOutput":       {kind: ruleV3Path, deadline: true, exactOut: true},
		"multicall":         {kind: ruleMulticall, dataArg: 0},
	}

	swapRouter02Rules = map[string]rule{
		"exactInputSingle":         {kind: ruleV3Single},
		"exactOutputSingle":        {kind: ruleV3Single, exactOut: true},
		"exactInput":               {kind: ruleV3Path},
		"exactOutput":              {kind: ruleV3Path, exactOut: true},
		"swapExactTokensForTokens": {kind: ruleV2Path, amountArg: 0, pathArg: 2},
		"swapTokensForExactTokens": {kind: ruleV2Path, amountArg: 1, pathArg: 2, exactOut: true},
		"multicall":                {kind: ruleMulticall, dataArg: 1},
	}

	tables = map[domain.RouterStyle]table{
		domain.RouterStyleSimple:       mustTable(rulesFor(uniswapV2RouterABI, v2Rules)),
		domain.RouterStyleConcentrated: mustTable(rulesFor(swapRouterABI, swapRouterRules), rulesFor(swapRouter02ABI, swapRouter02Rules)),
	}
)

type ruleSet struct {
	abiJSON string
	rules   map[string]rule
}

func rulesFor(abiJSON string, rules map[string]rule) ruleSet {
	return ruleSet{abiJSON: abiJSON, rules: rules}
}

func buildTable(sets ...ruleSet) (table, error) {
	t := make(table)
	for _, set := range sets {
		parsed, err := abi.JSON(strings.NewReader(set.abiJSON))
		if err != nil {
			return nil, fmt.Errorf("parse router abi: %w", err)
		}
		for name, r := range set.rules {
			m, ok := parsed.Methods[name]
			if !ok {
				return nil, fmt.Errorf("router abi has no method %s", name)
			}
			r.method = m
			var sel [4]byte
			copy(sel[:], m.ID)
			t[sel] = r
		}
	}
	return t, nil
}

func mustTable(sets ...ruleSet) table {
	t, err := buildTable(sets...)
	if err != nil {
		panic(err)
	}
	return t
}

// Params layouts. Copy fills them by position, so field order and types must
// follow the ABI tuple exactly.
type singleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Amount            *big.Int // amountIn or amountOut
	Limit             *big.Int // amountOutMinimum or amountInMaximum
	SqrtPriceLimitX96 *big.Int
}

type singleParamsDeadline struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	Amount            *big.Int
	Limit             *big.Int
	SqrtPriceLimitX96 *big.Int
}

type pathParams struct {
	Path      []byte
	Recipient common.Address
	Amount    *big.Int
	Limit     *big.Int
}

type pathParamsDeadline struct {
	Path      []byte
	Recipient common.Address
	Deadline  *big.Int
	Amount    *big.Int
	Limit     *big.Int
}

// Decoder decodes swap calldata for known router styles.
type Decoder struct {
	tokens *tokens.Registry
}

// New creates a decoder that scales amounts with the given token registry.
func New(registry *tokens.Registry) *Decoder {
	if registry == nil {
		registry = tokens.NewRegistry()
	}
	return &Decoder{tokens: registry}
}

// Decode returns the swap encoded in the transaction's calldata, or false
// when the call is not a swap this decoder understands.
func (d *Decoder) Decode(
	tx *domain.PendingTransaction,
	router domain.RouterInfo,
) (swap *domain.NormalizedSwap, ok bool) {
	if tx == nil {
		return nil, false
	}
	// Calldata is attacker-controlled; treat any unpacking panic as "no swap".
	defer func() {
		if r := recover(); r != nil {
			swap, ok = nil, false
		}
	}()
	return d.decodeCall(tx, tables[router.Style], tx.Input, 0)
}

func (d *Decoder) decodeCall(
	tx *domain.PendingTransaction,
	t table,
	data []byte,
	depth int,
) (*domain.NormalizedSwap, bool) {
	if len(data) < 4 {
		return nil, false
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	r, ok := t[sel]
	if !ok {
		return nil, false
	}

	values, err := r.method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, false
	}

	switch r.kind {
	case ruleV2Path:
		return d.decodeV2(tx, r, values)
	case ruleV3Single:
		return d.decodeV3Single(tx, r, values)
	case ruleV3Path:
		return d.decodeV3Path(tx, r, values)
	case ruleMulticall:
		// Nested multicalls are not unwrapped.
		if depth > 0 || r.dataArg >= len(values) {
			return nil, false
		}
		calls, ok := values[r.dataArg].([][]byte)
		if !ok {
			return nil, false
		}
		for _, call := range calls {
			if swap, ok := d.decodeCall(tx, t, call, depth+1); ok {
				swap.Method = r.method.RawName + "/" + swap.Method
				return swap, true
			}
		}
	}
	return nil, false
}

func (d *Decoder) decodeV2(
	tx *domain.PendingTransaction,
	r rule,
	values []any,
) (*domain.NormalizedSwap, bool) {
	if r.pathArg >= len(values) || r.amountArg >= len(values) {
		return nil, false
	}
	path, ok := values[r.pathArg].([]common.Address)
	if !ok || len(path) < 2 {
		return nil, false
	}

	native := r.amountArg < 0
	var raw *big.Int
	if native {
		raw = tx.ValueOrZero()
	} else if raw, ok = values[r.amountArg].(*big.Int); !ok {
		return nil, false
	}

	route := make([]string, len(path))
	for i, addr := range path {
		route[i] = addr.Hex()
	}
	tokenIn := route[0]

	return &domain.NormalizedSwap{
		Kind:        domain.SwapKindV2Path,
		Method:      r.method.RawName,
		TokenIn:     tokenIn,
		TokenOut:    route[len(route)-1],
		AmountIn:    d.tokens.Scale(tokenIn, raw),
		AmountInRaw: raw,
		Route:       route,
		NativeIn:    native,
		ExactOut:    r.exactOut,
	}, true
}

func (d *Decoder) decodeV3Single(
	tx *domain.PendingTransaction,
	r rule,
	values []any,
) (*domain.NormalizedSwap, bool) {
	var p singleParams
	if r.deadline {
		var wrapped struct{ Params singleParamsDeadline }
		if err := r.method.Inputs.Copy(&wrapped, values); err != nil {
			return nil, false
		}
		w := wrapped.Params
		p = singleParams{
			TokenIn: w.TokenIn, TokenOut: w.TokenOut, Fee: w.Fee, Recipient: w.Recipient,
			Amount: w.Amount, Limit: w.Limit, SqrtPriceLimitX96: w.SqrtPriceLimitX96,
		}
	} else {
		var wrapped struct{ Params singleParams }
		if err := r.method.Inputs.Copy(&wrapped, values); err != nil {
			return nil, false
		}
		p = wrapped.Params
	}

	raw := p.Amount
	if r.exactOut {
		raw = p.Limit
	}
	if raw == nil || p.Fee == nil {
		return nil, false
	}

	tokenIn, tokenOut := p.TokenIn.Hex(), p.TokenOut.Hex()
	fee := uint32(p.Fee.Uint64())

	return &domain.NormalizedSwap{
		Kind:        domain.SwapKindV3Single,
		Method:      r.method.RawName,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    d.tokens.Scale(tokenIn, raw),
		AmountInRaw: raw,
		Route:       []string{tokenIn, tokenOut},
		FeeTier:     &fee,
		NativeIn:    tx.ValueOrZero().Sign() > 0,
		ExactOut:    r.exactOut,
	}, true
}

func (d *Decoder) decodeV3Path(
	tx *domain.PendingTransaction,
	r rule,
	values []any,
) (*domain.NormalizedSwap, bool) {
	var amount, limit *big.Int
	if r.deadline {
		var wrapped struct{ Params pathParamsDeadline }
		if err := r.method.Inputs.Copy(&wrapped, values); err != nil {
			return nil, false
		}
		amount, limit = wrapped.Params.Amount, wrapped.Params.Limit
	} else {
		var wrapped struct{ Params pathParams }
		if err := r.method.Inputs.Copy(&wrapped, values); err != nil {
			return nil, false
		}
		amount, limit = wrapped.Params.Amount, wrapped.Params.Limit
	}

	raw := amount
	if r.exactOut {
		raw = limit
	}
	if raw == nil {
		return nil, false
	}

	// Hops stay packed; only the input amount is read.
	return &domain.NormalizedSwap{
		Kind:        domain.SwapKindV3Path,
		Method:      r.method.RawName,
		TokenIn:     domain.EncodedToken,
		TokenOut:    domain.EncodedToken,
		AmountIn:    tokens.ScaleAmount(raw, tokens.DefaultDecimals),
		AmountInRaw: raw,
		NativeIn:    tx.ValueOrZero().Sign() > 0,
		ExactOut:    r.exactOut,
	}, true
}
