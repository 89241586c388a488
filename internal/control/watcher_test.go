package control

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/swapwatch/internal/core/config"
	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/health"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
)

// =============================================================================
// Mocks
// =============================================================================

type nodeSub struct {
	errCh chan error
	once  sync.Once
}

func (s *nodeSub) Err() <-chan error { return s.errCh }
func (s *nodeSub) Unsubscribe()      { s.once.Do(func() {}) }

// node is a fake chain that announces its whole mempool to every subscriber.
type node struct {
	mu  sync.Mutex
	txs map[common.Hash]*types.Transaction
}

func (n *node) dial(ctx context.Context, url string) (provider.Conn, error) {
	return &nodeConn{node: n}, nil
}

type nodeConn struct {
	node *node
}

func (c *nodeConn) BlockNumber(ctx context.Context) (uint64, error) { return 19_000_000, nil }
func (c *nodeConn) ChainID(ctx context.Context) (*big.Int, error)   { return big.NewInt(1), nil }
func (c *nodeConn) CallContract(ctx context.Context, m ethereum.CallMsg, b *big.Int) ([]byte, error) {
	return nil, nil
}
func (c *nodeConn) Close() {}

func (c *nodeConn) TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, bool, error) {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	tx, ok := c.node.txs[h]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, true, nil
}

func (c *nodeConn) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	c.node.mu.Lock()
	defer c.node.mu.Unlock()
	for h := range c.node.txs {
		ch <- h
	}
	return &nodeSub{errCh: make(chan error)}, nil
}

// =============================================================================
// Helpers
// =============================================================================

const swapETHABI = `[{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]}]`

func ethSwap(t *testing.T, ether int64) *types.Transaction {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(swapETHABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	path := []common.Address{
		common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	}
	data, err := parsed.Pack("swapExactETHForTokens",
		big.NewInt(1), path, common.HexToAddress("0xaa"), big.NewInt(1_700_000_000))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	router := common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	chainID := big.NewInt(1)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       200_000,
		To:        &router,
		Value:     new(big.Int).Mul(big.NewInt(ether), big.NewInt(1e18)),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func testConfig(n *node) Config {
	return Config{
		Port:  0,
		Chain: config.ChainConfig{ID: domain.ChainIDEthereum, Name: domain.ChainNameEthereum},
		Endpoints: []config.EndpointConfig{
			{Name: "primary", URL: "ws://primary", Timeout: time.Second},
			{Name: "backup", URL: "ws://backup", Timeout: time.Second},
		},
		Opportunity: config.OpportunityConfig{
			MinValueUSD:     10000,
			ImpactThreshold: 0.3,
			JournalCapacity: 10,
		},
		Mempool: config.MempoolConfig{Workers: 2, ResubscribeDelay: 10 * time.Millisecond},
		Price:   config.PriceConfig{Initial: 2500},
		Dial:    n.dial,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestWatcher_Lifecycle(t *testing.T) {
	large := ethSwap(t, 50)
	minor := ethSwap(t, 1)
	n := &node{txs: map[common.Hash]*types.Transaction{
		large.Hash(): large,
		minor.Hash(): minor,
	}}

	w, err := NewWatcher(testConfig(n))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "journaled opportunity", func() bool {
		count, _ := w.Journal().Count(ctx)
		return count == 1
	})

	events, err := w.Journal().Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(events) != 1 || events[0].TxHash != large.Hash().Hex() {
		t.Fatalf("expected only the large swap, got %+v", events)
	}
	if events[0].ValueUSD != 125000 {
		t.Errorf("expected value 125000, got %v", events[0].ValueUSD)
	}

	report := w.Health(ctx)
	if report.RPC.Status != health.StatusHealthy {
		t.Errorf("expected healthy rpc, got %s", report.RPC.Status)
	}
	if !report.Price.Stale {
		t.Error("seed price must be reported stale")
	}

	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if w.pipeline.Running() {
		t.Error("pipeline still running after Stop")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w, err := NewWatcher(testConfig(&node{txs: map[common.Hash]*types.Transaction{}}))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestNewWatcher_RequiresEndpoints(t *testing.T) {
	cfg := testConfig(&node{})
	cfg.Endpoints = nil
	if _, err := NewWatcher(cfg); err == nil {
		t.Fatal("expected error for empty endpoint list")
	}
}

func TestFromAppConfig(t *testing.T) {
	app := &config.AppConfig{
		Server:    config.ServerConfig{Port: 9090},
		Chain:     config.ChainConfig{ID: domain.ChainIDEthereum},
		Endpoints: []config.EndpointConfig{{Name: "a", URL: "ws://a"}},
		Routers: []config.RouterConfig{{
			Address: "0x1111111254EEB25477B68fb85Ed929f73A960582",
			Name:    "Custom",
			Style:   domain.RouterStyleSimple,
		}},
		Tokens: []config.TokenConfig{{
			Address:  "0x514910771AF9Ca656af840dff83E8264EcF986CA",
			Symbol:   "LINK",
			Decimals: 18,
		}},
	}

	cfg := FromAppConfig(app)
	if cfg.Port != 9090 || len(cfg.Endpoints) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	routers := routerRegistry(cfg.Chain.ID, cfg.Routers)
	if _, ok := routers.Identify("0x1111111254eeb25477b68fb85ed929f73a960582"); !ok {
		t.Error("configured router not registered")
	}
	if _, ok := routers.Identify("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"); !ok {
		t.Error("built-in router missing")
	}

	reg := tokenRegistry(cfg.Chain.ID, cfg.Tokens)
	if tok, ok := reg.Lookup("0x514910771af9ca656af840dff83e8264ecf986ca"); !ok || tok.Symbol != "LINK" {
		t.Errorf("configured token not registered: %+v", tok)
	}
}

func TestCloseAll_ReverseOrderPastErrors(t *testing.T) {
	var order []string
	fns := []func() error{
		func() error { order = append(order, "db"); return nil },
		func() error { order = append(order, "redis"); return errors.New("already closed") },
		func() error { order = append(order, "pool"); return nil },
	}

	closeAll(slog.Default(), fns)

	want := []string{"pool", "redis", "db"}
	if len(order) != len(want) {
		t.Fatalf("closed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("close %d = %s, want %s", i, order[i], want[i])
		}
	}
}
