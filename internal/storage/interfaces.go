package storage

import (
	"context"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
)

// VaultStore provides access to vault records.
type VaultStore interface {
	// Insert adds a new vault. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, v *domain.VaultRecord) error

	// GetByAddress retrieves a vault. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, addr domain.Address) (*domain.VaultRecord, error)

	// GetForUpdate retrieves a vault and holds it exclusively until the
	// enclosing transaction ends. Returns ErrNotFound if not exists.
	GetForUpdate(ctx context.Context, addr domain.Address) (*domain.VaultRecord, error)

	// Update writes the mutable fields (total, pause flags, updated_at).
	// Returns ErrNotFound if not exists.
	Update(ctx context.Context, v *domain.VaultRecord) error

	// List retrieves all vaults ordered by creation time ASC.
	List(ctx context.Context) ([]*domain.VaultRecord, error)
}

// EventStore provides access to the append-only vault event log.
type EventStore interface {
	// Append adds an event. Returns ErrDuplicateKey if (vault, sequence) exists.
	Append(ctx context.Context, e *domain.VaultEvent) error

	// GetByVault retrieves all events for a vault, ordered by sequence ASC.
	GetByVault(ctx context.Context, vault domain.Address) ([]*domain.VaultEvent, error)

	// CountByVault returns the number of events recorded for a vault.
	CountByVault(ctx context.Context, vault domain.Address) (uint64, error)
}

// Tx is a transactional view over every store a vault transition touches.
type Tx interface {
	Vaults() VaultStore
	Assets() assetledger.Ledger
	Events() EventStore
}

// Backend runs units of work atomically.
type Backend interface {
	// WithinTx runs fn in a transaction. Every mutation made through tx is
	// committed if fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
