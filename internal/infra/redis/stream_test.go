package redis

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/swapwatch/internal/core/domain"
)

func TestStreamValues(t *testing.T) {
	fee := uint32(3000)
	event := &domain.OpportunityEvent{
		ID:      "5f0c1e64-2f43-4a43-9a38-1f1f2b8f7d10",
		ChainID: domain.ChainIDEthereum,
		TxHash:  "0xabc",
		Router:  domain.RouterInfo{Name: "UniswapV3SwapRouter", Style: domain.RouterStyleConcentrated},
		Swap: domain.NormalizedSwap{
			Kind:        domain.SwapKindV3Single,
			Method:      "exactInputSingle",
			AmountIn:    decimal.NewFromInt(50),
			AmountInRaw: big.NewInt(50),
			FeeTier:     &fee,
		},
		ValueUSD:      125000,
		ImpactPercent: 50,
		DetectedAt:    time.Unix(1_700_000_000, 0).UTC(),
	}

	values, err := streamValues(event)
	if err != nil {
		t.Fatalf("streamValues: %v", err)
	}

	checks := map[string]string{
		"id":        event.ID,
		"type":      "large_swap",
		"chain_id":  "1",
		"tx_hash":   "0xabc",
		"router":    "UniswapV3SwapRouter",
		"value_usd": "125000.00",
		"impact":    "50.0000",
	}
	for k, want := range checks {
		if got := values[k]; got != want {
			t.Errorf("values[%q] = %v, want %s", k, got, want)
		}
	}

	var decoded domain.OpportunityEvent
	if err := json.Unmarshal([]byte(values["payload"].(string)), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Swap.FeeTier == nil || *decoded.Swap.FeeTier != 3000 {
		t.Errorf("payload fee tier = %v", decoded.Swap.FeeTier)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config should be disabled")
	}
	if !(Config{URL: "redis://localhost:6379/0"}).Enabled() {
		t.Error("config with URL should be enabled")
	}
}
