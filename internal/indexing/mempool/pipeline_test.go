package mempool

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/swapwatch/internal/core/domain"
	"github.com/vietddude/swapwatch/internal/indexing/classifier"
	"github.com/vietddude/swapwatch/internal/indexing/decoder"
	"github.com/vietddude/swapwatch/internal/indexing/emitter"
	"github.com/vietddude/swapwatch/internal/indexing/estimator"
	"github.com/vietddude/swapwatch/internal/indexing/tokens"
	"github.com/vietddude/swapwatch/internal/infra/rpc/provider"
	"github.com/vietddude/swapwatch/internal/infra/rpc/routing"
)

// =============================================================================
// Mocks
// =============================================================================

type fakeSub struct {
	errCh chan error
	once  sync.Once
	done  chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{errCh: make(chan error, 1), done: make(chan struct{})}
}

func (s *fakeSub) Err() <-chan error { return s.errCh }
func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.done) }) }

type subscription struct {
	endpoint string
	hashes   chan<- common.Hash
	sub      *fakeSub
}

// mempoolConn serves transactions from a shared map and reports every
// subscription it opens. Closing it ends its subscriptions the way a
// websocket client does.
type mempoolConn struct {
	name   string
	txs    *txStore
	subs   chan subscription
	closes *atomic.Int32

	mu   sync.Mutex
	open []*fakeSub
}

type txStore struct {
	mu   sync.Mutex
	txs  map[common.Hash]*types.Transaction
	slow map[common.Hash]bool
}

func (s *txStore) add(tx *types.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.Hash()] = tx
}

// hang makes lookups of h block until the caller gives up.
func (s *txStore) hang(h common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slow[h] = true
}

func (c *mempoolConn) BlockNumber(ctx context.Context) (uint64, error) { return 1, nil }
func (c *mempoolConn) ChainID(ctx context.Context) (*big.Int, error)   { return big.NewInt(1), nil }
func (c *mempoolConn) CallContract(ctx context.Context, m ethereum.CallMsg, b *big.Int) ([]byte, error) {
	return nil, nil
}
func (c *mempoolConn) Close() {
	c.closes.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.open {
		select {
		case sub.errCh <- errors.New("client is closed"):
		default:
		}
	}
}

func (c *mempoolConn) TransactionByHash(ctx context.Context, h common.Hash) (*types.Transaction, bool, error) {
	c.txs.mu.Lock()
	tx, ok := c.txs.txs[h]
	slow := c.txs.slow[h]
	c.txs.mu.Unlock()

	if slow {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, true, nil
}

func (c *mempoolConn) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	sub := newFakeSub()
	c.mu.Lock()
	c.open = append(c.open, sub)
	c.mu.Unlock()
	c.subs <- subscription{endpoint: c.name, hashes: ch, sub: sub}
	return sub, nil
}

type fixedPrice float64

func (p fixedPrice) SpotPriceUSD() (float64, bool) { return float64(p), false }

// =============================================================================
// Helpers
// =============================================================================

var (
	uniV2 = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

const swapETHABI = `[{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]}]`

// recordSink keeps every delivered event.
type recordSink struct {
	mu     sync.Mutex
	events []*domain.OpportunityEvent
}

func (s *recordSink) Name() string { return "record" }
func (s *recordSink) Close() error { return nil }

func (s *recordSink) Emit(ctx context.Context, event *domain.OpportunityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordSink) Events() []*domain.OpportunityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.OpportunityEvent(nil), s.events...)
}

type harness struct {
	pipeline *Pipeline
	emitter  *emitter.Emitter
	sink     *recordSink
	exec     *routing.Executor
	store    *txStore
	subs     chan subscription
	closes   *atomic.Int32
}

func newHarness(t *testing.T, cfg Config, endpoints ...string) *harness {
	t.Helper()
	if len(endpoints) == 0 {
		endpoints = []string{"A"}
	}
	store := &txStore{
		txs:  make(map[common.Hash]*types.Transaction),
		slow: make(map[common.Hash]bool),
	}
	subs := make(chan subscription, 16)
	closes := &atomic.Int32{}

	var configs []provider.EndpointConfig
	for _, name := range endpoints {
		configs = append(configs, provider.EndpointConfig{Name: name, URL: name, Timeout: time.Second})
	}
	pool, err := provider.NewPool(configs, func(ctx context.Context, url string) (provider.Conn, error) {
		return &mempoolConn{name: url, txs: store, subs: subs, closes: closes}, nil
	})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	exec := routing.NewExecutor(pool, routing.Config{ChainName: "ethereum", FailoverThreshold: 3})

	registry := tokens.NewRegistry(tokens.DefaultTokens(domain.ChainIDEthereum)...)
	sink := &recordSink{}
	em := emitter.New(emitter.Config{
		ChainID:         domain.ChainIDEthereum,
		MinValueUSD:     10000,
		ImpactThreshold: 0.3,
		ChannelSize:     16,
	}, sink)

	cfg.ChainID = domain.ChainIDEthereum
	cfg.ChainName = "ethereum"
	cfg.MinValueUSD = 10000
	cfg.Executor = exec
	cfg.Classifier = classifier.NewRegistry(classifier.DefaultRouters(domain.ChainIDEthereum)...)
	cfg.Decoder = decoder.New(registry)
	cfg.Estimator = estimator.New(registry, fixedPrice(2500), estimator.Config{ImpactDivisor: 200000, ImpactCap: 50})
	cfg.Emitter = em
	if cfg.ResubscribeDelay == 0 {
		cfg.ResubscribeDelay = 10 * time.Millisecond
	}

	return &harness{pipeline: New(cfg), emitter: em, sink: sink, exec: exec, store: store, subs: subs, closes: closes}
}

// swapTx builds a signed swapExactETHForTokens call paying value wei.
func swapTx(t *testing.T, nonce uint64, value *big.Int) *types.Transaction {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(swapETHABI))
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	data, err := parsed.Pack("swapExactETHForTokens",
		big.NewInt(1), []common.Address{weth, usdc}, common.HexToAddress("0xaa"), big.NewInt(1_700_000_000))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	chainID := big.NewInt(1)
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       200_000,
		To:        &uniV2,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func nextSub(t *testing.T, subs <-chan subscription) subscription {
	t.Helper()
	select {
	case s := <-subs:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for subscription")
		return subscription{}
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestProcess_LargeNativeSwapEmitsOnce(t *testing.T) {
	h := newHarness(t, Config{})
	tx := swapTx(t, 0, ether(50))
	h.store.add(tx)

	ctx := context.Background()
	h.pipeline.Process(ctx, tx.Hash())
	h.pipeline.Process(ctx, tx.Hash()) // duplicate notification

	h.emitter.Drain(ctx)
	events := h.sink.Events()

	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ValueUSD != 125000 {
		t.Errorf("ValueUSD = %v, want 125000", ev.ValueUSD)
	}
	if ev.ImpactPercent != 50 {
		t.Errorf("ImpactPercent = %v, want 50 (62.5 capped)", ev.ImpactPercent)
	}
	if ev.Router.Name != "UniswapV2Router02" || ev.Swap.Method != "swapExactETHForTokens" {
		t.Errorf("router/method = %s/%s", ev.Router.Name, ev.Swap.Method)
	}
	if ev.From == (common.Address{}).Hex() {
		t.Error("sender was not recovered")
	}

	stats := h.pipeline.Stats()
	if stats.Duplicates != 1 || stats.Classified != 1 || stats.Decoded != 1 || stats.Large != 1 || stats.Qualifying != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcess_SmallSwapIsNotEmitted(t *testing.T) {
	h := newHarness(t, Config{})
	tx := swapTx(t, 0, ether(1)) // $2500
	h.store.add(tx)

	h.pipeline.Process(context.Background(), tx.Hash())

	stats := h.pipeline.Stats()
	if stats.Decoded != 1 || stats.Large != 0 || stats.Qualifying != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if h.emitter.Stats().Emitted != 0 {
		t.Error("small swap should not be emitted")
	}
}

func TestProcess_DroppedTransactionDoesNotPenalizeEndpoint(t *testing.T) {
	h := newHarness(t, Config{}, "A", "B")

	h.pipeline.Process(context.Background(), common.HexToHash("0xdead"))

	if got := h.pipeline.Stats().NotFound; got != 1 {
		t.Errorf("NotFound = %d, want 1", got)
	}
	for _, st := range h.exec.ProviderStatus() {
		if st.FailureCount != 0 {
			t.Errorf("endpoint %s has %d failures", st.Name, st.FailureCount)
		}
	}
	if h.exec.CurrentProvider().Name != "A" {
		t.Errorf("active endpoint = %s, want A", h.exec.CurrentProvider().Name)
	}
}

func TestEnqueue_DropsWhenQueueFull(t *testing.T) {
	h := newHarness(t, Config{QueueSize: 1})

	for i := 0; i < 3; i++ {
		h.pipeline.enqueue(common.BigToHash(big.NewInt(int64(i + 1))))
	}

	stats := h.pipeline.Stats()
	if stats.Observed != 3 || stats.Dropped != 2 || stats.QueueDepth != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStart_ProcessesSubscribedHashes(t *testing.T) {
	h := newHarness(t, Config{Workers: 2})
	txs := []*types.Transaction{swapTx(t, 0, ether(50)), swapTx(t, 1, ether(1)), swapTx(t, 2, ether(80))}
	for _, tx := range txs {
		h.store.add(tx)
	}

	done := make(chan error, 1)
	go func() { done <- h.pipeline.Start(context.Background()) }()

	sub := nextSub(t, h.subs)
	for _, tx := range txs {
		sub.hashes <- tx.Hash()
	}

	waitFor(t, "all hashes fetched", func() bool { return h.pipeline.Stats().Fetched == 3 })

	if err := h.pipeline.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop")
	}

	if got := h.emitter.Stats().Emitted; got != 2 {
		t.Errorf("emitted %d events, want 2", got)
	}
	select {
	case <-sub.sub.done:
	default:
		t.Error("subscription was not unsubscribed on stop")
	}
	if err := h.pipeline.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestStart_ResubscribesOnNextEndpoint(t *testing.T) {
	h := newHarness(t, Config{Workers: 1}, "A", "B")
	tx := swapTx(t, 0, ether(50))
	h.store.add(tx)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Start(ctx) }()

	first := nextSub(t, h.subs)
	if first.endpoint != "A" {
		t.Fatalf("first subscription on %s, want A", first.endpoint)
	}
	first.sub.errCh <- errors.New("websocket: close 1006")

	second := nextSub(t, h.subs)
	if second.endpoint != "B" {
		t.Fatalf("resubscribed on %s, want B", second.endpoint)
	}
	if h.exec.CurrentProvider().Name != "B" {
		t.Errorf("active endpoint = %s, want B", h.exec.CurrentProvider().Name)
	}

	second.hashes <- tx.Hash()
	waitFor(t, "event emitted after resubscription", func() bool { return h.emitter.Stats().Emitted == 1 })

	if got := h.pipeline.Stats().Resubscriptions; got != 1 {
		t.Errorf("Resubscriptions = %d, want 1", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}

func TestStart_FetchTimeoutKeepsSubscription(t *testing.T) {
	h := newHarness(t, Config{Workers: 1, FetchTimeout: 30 * time.Millisecond})
	stuck := swapTx(t, 0, ether(50))
	next := swapTx(t, 1, ether(60))
	h.store.add(stuck)
	h.store.add(next)
	h.store.hang(stuck.Hash())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.pipeline.Start(ctx) }()

	sub := nextSub(t, h.subs)
	sub.hashes <- stuck.Hash()
	waitFor(t, "fetch to time out", func() bool { return h.pipeline.Stats().FetchErrors == 1 })

	sub.hashes <- next.Hash()
	waitFor(t, "next swap emitted", func() bool { return h.emitter.Stats().Emitted == 1 })

	if got := h.closes.Load(); got != 0 {
		t.Errorf("connection closed %d times after a fetch timeout, want 0", got)
	}
	stats := h.pipeline.Stats()
	if stats.Resubscriptions != 0 || !stats.Subscribed {
		t.Errorf("subscription disturbed: resubscriptions=%d subscribed=%v", stats.Resubscriptions, stats.Subscribed)
	}
	select {
	case s := <-h.subs:
		t.Errorf("unexpected resubscription on %s", s.endpoint)
	default:
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}

func TestProcess_QualifyingCountsQueuedEventsOnly(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	// The harness emitter holds 16 events and nothing drains it.
	for i := 0; i < 17; i++ {
		tx := swapTx(t, uint64(i), ether(50))
		h.store.add(tx)
		h.pipeline.Process(ctx, tx.Hash())
	}

	if got := h.pipeline.Stats().Qualifying; got != 16 {
		t.Errorf("Qualifying = %d, want 16", got)
	}
	if got := h.emitter.Stats().Dropped; got != 1 {
		t.Errorf("emitter dropped %d events, want 1", got)
	}
}
