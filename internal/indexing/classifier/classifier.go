// Package classifier maps transaction destinations to known DEX routers.
package classifier

import (
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/swapwatch/internal/core/domain"
)

// Classifier identifies the router a transaction is sent to.
type Classifier interface {
	// Identify returns the router registered at address, matched case-insensitively.
	Identify(address string) (domain.RouterInfo, bool)

	// IdentifyTx returns the router a pending transaction targets.
	IdentifyTx(tx *domain.PendingTransaction) (domain.RouterInfo, bool)
}

// Registry implements Classifier using an in-memory map keyed by lowercase address.
type Registry struct {
	routers map[string]domain.RouterInfo
	mu      sync.RWMutex
}

// NewRegistry creates a registry preloaded with the given routers.
func NewRegistry(routers ...domain.RouterInfo) *Registry {
	r := &Registry{
		routers: make(map[string]domain.RouterInfo, len(routers)),
	}
	r.AddBatch(routers)
	return r
}

// Identify returns the router registered at address.
func (r *Registry) Identify(address string) (domain.RouterInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.routers[strings.ToLower(address)]
	return info, ok
}

// IdentifyTx returns the router the transaction targets. Contract creations
// never match.
func (r *Registry) IdentifyTx(tx *domain.PendingTransaction) (domain.RouterInfo, bool) {
	if tx == nil || tx.To == nil {
		return domain.RouterInfo{}, false
	}
	return r.Identify(tx.To.Hex())
}

// Add registers a router.
func (r *Registry) Add(info domain.RouterInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routers[strings.ToLower(info.Address.Hex())] = info
}

// AddBatch registers multiple routers.
func (r *Registry) AddBatch(routers []domain.RouterInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range routers {
		r.routers[strings.ToLower(info.Address.Hex())] = info
	}
}

// Size returns the number of registered routers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routers)
}

// Routers returns every registered router ordered by name.
func (r *Registry) Routers() []domain.RouterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.RouterInfo, 0, len(r.routers))
	for _, info := range r.routers {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// DefaultRouters returns the well-known router deployments for a chain.
func DefaultRouters(chain domain.ChainID) []domain.RouterInfo {
	if chain != domain.ChainIDEthereum {
		return nil
	}
	return []domain.RouterInfo{
		{
			Address: common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
			Name:    "UniswapV2Router02",
			Style:   domain.RouterStyleSimple,
		},
		{
			Address: common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
			Name:    "SushiSwapRouter",
			Style:   domain.RouterStyleSimple,
		},
		{
			Address: common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
			Name:    "UniswapV3SwapRouter",
			Style:   domain.RouterStyleConcentrated,
		},
		{
			Address: common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"),
			Name:    "UniswapV3SwapRouter02",
			Style:   domain.RouterStyleConcentrated,
		},
	}
}
