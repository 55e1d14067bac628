// Package onchain reads account activity straight from the Polygon chain.
// It backs up the Data API when the activity endpoint has no record of an
// address: the transaction nonce of a wallet is a lower bound on how much
// history the account has.
package onchain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// NonceClient resolves transaction counts for wallets over JSON-RPC.
type NonceClient struct {
	client  *ethclient.Client
	timeout time.Duration
}

// NewNonceClient dials the given Polygon RPC endpoint.
func NewNonceClient(rpcURL string, timeout time.Duration) (*NonceClient, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc %s: %w", rpcURL, err)
	}
	return &NonceClient{client: client, timeout: timeout}, nil
}

// TransactionCount returns the confirmed nonce of address at the latest
// block. A wallet that has never sent a transaction returns zero.
func (n *NonceClient) TransactionCount(ctx context.Context, address string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	nonce, err := n.client.NonceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, fmt.Errorf("onchain: nonce for %s: %w: %v", address, domain.ErrUpstreamUnavailable, err)
	}
	return int(nonce), nil
}

// Close releases the underlying RPC connection.
func (n *NonceClient) Close() {
	n.client.Close()
}
