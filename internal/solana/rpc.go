package solana

import (
	"context"

	"share-vault/internal/domain"
)

// RPCClient is the read-only RPC surface used to observe a deployed vault.
type RPCClient interface {
	// GetAccountInfo returns nil when the account does not exist.
	GetAccountInfo(ctx context.Context, addr domain.Address) (*AccountInfo, error)

	// GetMultipleAccounts reads all addrs at one slot. Missing accounts are
	// nil entries at their index.
	GetMultipleAccounts(ctx context.Context, addrs []domain.Address) (*AccountBatch, error)

	GetSlot(ctx context.Context) (int64, error)
}

// AccountInfo is one on-chain account.
type AccountInfo struct {
	Address  domain.Address
	Lamports uint64
	Owner    domain.Address // owning program
	Data     string         // base64
}

// AccountBatch is the result of GetMultipleAccounts.
type AccountBatch struct {
	Slot     int64
	Accounts []*AccountInfo
}
