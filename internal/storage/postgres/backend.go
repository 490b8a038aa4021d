package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"share-vault/internal/assetledger"
	"share-vault/internal/storage"
)

// Backend implements storage.Backend on a single Postgres database. Vault
// records, the asset ledger and the event log share one transaction, so a
// transition commits or rolls back as a whole.
type Backend struct {
	pool *Pool
}

// NewBackend creates a new Backend.
func NewBackend(pool *Pool) *Backend {
	return &Backend{pool: pool}
}

// Compile-time interface check.
var _ storage.Backend = (*Backend)(nil)

// WithinTx runs fn in a READ COMMITTED transaction. Per-vault serialization
// comes from VaultStore.GetForUpdate row locks.
func (b *Backend) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return pgx.BeginTxFunc(ctx, b.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(t pgx.Tx) error {
		return fn(&tx{q: t})
	})
}

type tx struct {
	q querier
}

func (t *tx) Vaults() storage.VaultStore { return NewVaultStore(t.q) }
func (t *tx) Assets() assetledger.Ledger { return NewAssetLedger(t.q) }
func (t *tx) Events() storage.EventStore { return NewEventStore(t.q) }
