package domain

type ChainID string
type ChainName string

const (
	// Chain IDs
	ChainIDEthereum ChainID = "1"
	ChainIDPolygon  ChainID = "137"
	ChainIDArbitrum ChainID = "42161"

	// Chain Names (Internal Codes)
	ChainNameEthereum ChainName = "ETHEREUM_MAINNET"
	ChainNamePolygon  ChainName = "POLYGON_MAINNET"
	ChainNameArbitrum ChainName = "ARBITRUM_ONE"
)

// ChainIDToName maps ChainID to its human-readable InternalCode/Name.
var ChainIDToName = map[ChainID]ChainName{
	ChainIDEthereum: ChainNameEthereum,
	ChainIDPolygon:  ChainNamePolygon,
	ChainIDArbitrum: ChainNameArbitrum,
}
