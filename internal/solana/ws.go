package solana

import (
	"context"

	"share-vault/internal/domain"
)

// WSClient streams account changes over a WebSocket subscription.
type WSClient interface {
	// SubscribeAccount streams changes to addr until the client is closed.
	SubscribeAccount(ctx context.Context, addr domain.Address) (<-chan AccountNotification, error)

	Close() error
}

// AccountNotification is one accountNotification message.
type AccountNotification struct {
	Address  domain.Address
	Slot     int64
	Lamports uint64
	Owner    domain.Address
	Data     string // base64
}
