package ledger

import (
	"context"

	"github.com/pastelnetwork/go-inference-client/internal/types"
)

// Service is the opaque ledger collaborator: chain state queries, balance
// lookups, payment broadcast and the masternode list. Implementations wrap
// a pastel node's RPC surface; tests use a fake.
type Service interface {
	// CurrentBlockHeight returns the chain tip height.
	CurrentBlockHeight(ctx context.Context) (int64, error)

	// AddressBalance returns the spendable balance of an address in PSL.
	AddressBalance(ctx context.Context, address string) (float64, error)

	// BroadcastPayment sends amount PSL from one address to another and
	// returns the transaction id.
	BroadcastPayment(ctx context.Context, fromAddress, toAddress string, amount float64) (string, error)

	// MasternodeList returns the current supernode records. Each call
	// yields a fresh immutable snapshot.
	MasternodeList(ctx context.Context) ([]types.Supernode, error)

	// EstimateCreditPrice returns an independent fair-market estimate of
	// the price per credit at the given block height, used to bound
	// negotiated quotes.
	EstimateCreditPrice(ctx context.Context, blockHeight int64) (float64, error)
}
