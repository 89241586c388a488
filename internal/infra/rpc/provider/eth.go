package provider

import (
	"context"
	"fmt"
	"math/big"
	"net/url"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthConn implements Conn on top of go-ethereum's RPC client.
type EthConn struct {
	raw  *rpc.Client
	eth  *ethclient.Client
	geth *gethclient.Client
}

// DialEth connects to an HTTP or WebSocket JSON-RPC endpoint.
// Pending-transaction subscriptions require a WebSocket or IPC url.
func DialEth(ctx context.Context, rawURL string) (Conn, error) {
	raw, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", RedactURL(rawURL), err)
	}
	return &EthConn{
		raw:  raw,
		eth:  ethclient.NewClient(raw),
		geth: gethclient.New(raw),
	}, nil
}

func (c *EthConn) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *EthConn) ChainID(ctx context.Context) (*big.Int, error) {
	return c.eth.ChainID(ctx)
}

func (c *EthConn) TransactionByHash(
	ctx context.Context,
	hash common.Hash,
) (*types.Transaction, bool, error) {
	return c.eth.TransactionByHash(ctx, hash)
}

func (c *EthConn) CallContract(
	ctx context.Context,
	msg ethereum.CallMsg,
	block *big.Int,
) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, block)
}

func (c *EthConn) SubscribePendingTransactions(
	ctx context.Context,
	ch chan<- common.Hash,
) (ethereum.Subscription, error) {
	return c.geth.SubscribePendingTransactions(ctx, ch)
}

func (c *EthConn) Close() {
	c.raw.Close()
}

// RedactURL strips path, query and credentials so API keys stay out of logs.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.Path = ""
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}
