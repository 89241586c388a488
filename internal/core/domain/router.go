package domain

import "github.com/ethereum/go-ethereum/common"

// RouterStyle selects the decode table used for a router's calldata.
type RouterStyle string

const (
	// RouterStyleSimple covers constant-product routers (UniswapV2 and forks).
	RouterStyleSimple RouterStyle = "simple"
	// RouterStyleConcentrated covers concentrated-liquidity routers (UniswapV3 SwapRouter, SwapRouter02).
	RouterStyleConcentrated RouterStyle = "concentrated"
)

// RouterInfo identifies a known DEX router contract.
type RouterInfo struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Style   RouterStyle    `json:"style"`
}
