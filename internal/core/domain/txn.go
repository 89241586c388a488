package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// PendingTransaction is a mempool transaction reduced to the fields the
// surveillance pipeline reads.
type PendingTransaction struct {
	Hash      common.Hash
	From      common.Address
	To        *common.Address // nil for contract creation
	Input     []byte
	Value     *big.Int
	GasPrice  *big.Int
	GasTipCap *big.Int
	GasFeeCap *big.Int
	Nonce     uint64
	ChainID   *big.Int
	SeenAt    time.Time
}

// NewPendingTransaction copies the relevant fields out of a go-ethereum
// transaction. The sender is recovered when the signature allows it and left
// zero otherwise.
func NewPendingTransaction(tx *types.Transaction) *PendingTransaction {
	p := &PendingTransaction{
		Hash:      tx.Hash(),
		To:        tx.To(),
		Input:     tx.Data(),
		Value:     tx.Value(),
		GasPrice:  tx.GasPrice(),
		GasTipCap: tx.GasTipCap(),
		GasFeeCap: tx.GasFeeCap(),
		Nonce:     tx.Nonce(),
		ChainID:   tx.ChainId(),
		SeenAt:    time.Now(),
	}
	if p.ChainID != nil && p.ChainID.Sign() > 0 {
		if from, err := types.Sender(types.LatestSignerForChainID(p.ChainID), tx); err == nil {
			p.From = from
		}
	}
	return p
}

// ValueOrZero returns the native value attached to the transaction.
func (t *PendingTransaction) ValueOrZero() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return t.Value
}
