package domain

import "time"

// OpportunityEvent is a large pending swap that passed the value and impact gates.
type OpportunityEvent struct {
	ID            string         `json:"id"`
	ChainID       ChainID        `json:"chain_id"`
	TxHash        string         `json:"tx_hash"`
	From          string         `json:"from"`
	Router        RouterInfo     `json:"router"`
	Swap          NormalizedSwap `json:"swap"`
	ValueUSD      float64        `json:"value_usd"`
	ImpactPercent float64        `json:"impact_percent"`
	GasPrice      string         `json:"gas_price"`
	DetectedAt    time.Time      `json:"detected_at"`
}

type EventType string

const (
	EventTypeLargeSwap EventType = "large_swap"
)
