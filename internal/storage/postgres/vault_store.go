package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"share-vault/internal/domain"
	"share-vault/internal/storage"
)

// VaultStore implements storage.VaultStore using PostgreSQL.
type VaultStore struct {
	q querier
}

// NewVaultStore creates a new VaultStore. q is a pool or a transaction.
func NewVaultStore(q querier) *VaultStore {
	return &VaultStore{q: q}
}

// Compile-time interface check.
var _ storage.VaultStore = (*VaultStore)(nil)

const vaultColumns = `
	address, ticker, admin, authority, base_asset, shares_mint, custody_account, decimals,
	total_base_assets::text, deposit_paused, allocate_paused, created_at, updated_at
`

// Insert adds a new vault. Returns ErrDuplicateKey if the address exists.
func (s *VaultStore) Insert(ctx context.Context, v *domain.VaultRecord) error {
	if v == nil || v.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO vaults (
			address, ticker, admin, authority, base_asset, shares_mint, custody_account, decimals,
			total_base_assets, deposit_paused, allocate_paused, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13)
	`

	_, err := s.q.Exec(ctx, query,
		v.Address.String(),
		v.Ticker.String(),
		v.Admin.String(),
		v.Authority.String(),
		v.BaseAsset.String(),
		v.SharesMint.String(),
		v.CustodyAccount.String(),
		int16(v.Decimals),
		formatAmount(v.TotalBaseAssets),
		v.DepositPaused,
		v.AllocatePaused,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert vault: %w", err)
	}
	return nil
}

// GetByAddress retrieves a vault. Returns ErrNotFound if not exists.
func (s *VaultStore) GetByAddress(ctx context.Context, addr domain.Address) (*domain.VaultRecord, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE address = $1`

	v, err := scanVault(s.q.QueryRow(ctx, query, addr.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get vault by address: %w", err)
	}
	return v, nil
}

// GetForUpdate retrieves a vault and locks its row until the transaction ends.
func (s *VaultStore) GetForUpdate(ctx context.Context, addr domain.Address) (*domain.VaultRecord, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE address = $1 FOR UPDATE`

	v, err := scanVault(s.q.QueryRow(ctx, query, addr.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock vault: %w", err)
	}
	return v, nil
}

// Update writes the mutable fields. Returns ErrNotFound if not exists.
func (s *VaultStore) Update(ctx context.Context, v *domain.VaultRecord) error {
	if v == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE vaults
		SET total_base_assets = $2::numeric, deposit_paused = $3, allocate_paused = $4, updated_at = $5
		WHERE address = $1
	`

	tag, err := s.q.Exec(ctx, query,
		v.Address.String(),
		formatAmount(v.TotalBaseAssets),
		v.DepositPaused,
		v.AllocatePaused,
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update vault: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all vaults ordered by creation time ASC.
func (s *VaultStore) List(ctx context.Context) ([]*domain.VaultRecord, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults ORDER BY created_at ASC, address ASC`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	defer rows.Close()

	var vaults []*domain.VaultRecord
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vault row: %w", err)
		}
		vaults = append(vaults, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault rows: %w", err)
	}

	return vaults, nil
}

// scanVault scans a single row into a VaultRecord.
func scanVault(row pgx.Row) (*domain.VaultRecord, error) {
	var (
		v                                                        domain.VaultRecord
		address, ticker, admin, authority, base, shares, custody string
		decimals                                                 int16
		total                                                    string
	)

	err := row.Scan(
		&address,
		&ticker,
		&admin,
		&authority,
		&base,
		&shares,
		&custody,
		&decimals,
		&total,
		&v.DepositPaused,
		&v.AllocatePaused,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = decodeAddresses(
		addrCol{address, &v.Address},
		addrCol{admin, &v.Admin},
		addrCol{authority, &v.Authority},
		addrCol{base, &v.BaseAsset},
		addrCol{shares, &v.SharesMint},
		addrCol{custody, &v.CustodyAccount},
	)
	if err != nil {
		return nil, fmt.Errorf("decode vault addresses: %w", err)
	}
	if v.TotalBaseAssets, err = parseAmount(total); err != nil {
		return nil, err
	}
	copy(v.Ticker[:], ticker)
	v.Decimals = uint8(decimals)

	return &v, nil
}
