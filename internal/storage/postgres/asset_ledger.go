package postgres

import (
	"context"
	"fmt"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
)

// AssetLedger implements assetledger.Ledger on the asset_mints and
// asset_accounts tables. Mutations lock the touched rows with FOR UPDATE.
type AssetLedger struct {
	q querier
}

// NewAssetLedger creates a new AssetLedger. q is a pool or a transaction.
func NewAssetLedger(q querier) *AssetLedger {
	return &AssetLedger{q: q}
}

// Compile-time interface check.
var _ assetledger.Ledger = (*AssetLedger)(nil)

// Supply returns the total minted units of mint.
func (l *AssetLedger) Supply(ctx context.Context, mint domain.Address) (uint64, error) {
	d, err := l.getDenomination(ctx, mint, false)
	if err != nil {
		return 0, err
	}
	return d.Supply, nil
}

// Balance returns the units held by account.
func (l *AssetLedger) Balance(ctx context.Context, account domain.Address) (uint64, error) {
	a, err := l.getAccount(ctx, account, false)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// CreateDenomination creates a mint at addr.
func (l *AssetLedger) CreateDenomination(ctx context.Context, addr domain.Address, decimals uint8, authority domain.Address) error {
	query := `
		INSERT INTO asset_mints (address, decimals, authority, supply)
		VALUES ($1, $2, $3, 0)
	`

	_, err := l.q.Exec(ctx, query, addr.String(), int16(decimals), authority.String())
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", assetledger.ErrAssetExists, addr)
		}
		return fmt.Errorf("insert asset mint: %w", err)
	}
	return nil
}

// CreateAccount creates an empty account of mint owned by owner.
func (l *AssetLedger) CreateAccount(ctx context.Context, addr, owner, mint domain.Address) error {
	if _, err := l.getDenomination(ctx, mint, false); err != nil {
		return err
	}

	query := `
		INSERT INTO asset_accounts (address, mint, owner, amount)
		VALUES ($1, $2, $3, 0)
	`

	_, err := l.q.Exec(ctx, query, addr.String(), mint.String(), owner.String())
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", assetledger.ErrAccountExists, addr)
		}
		return fmt.Errorf("insert asset account: %w", err)
	}
	return nil
}

// Transfer moves amount of mint between accounts, authorized by authority.
// Rows are locked in address order.
func (l *AssetLedger) Transfer(ctx context.Context, mint, from, to, authority domain.Address, amount uint64) error {
	first, second := from, to
	if to.String() < from.String() {
		first, second = to, from
	}

	locked := make(map[domain.Address]*assetledger.Account, 2)
	for _, addr := range []domain.Address{first, second} {
		if _, ok := locked[addr]; ok {
			continue
		}
		a, err := l.getAccount(ctx, addr, true)
		if err != nil {
			if addr == from {
				return fmt.Errorf("source: %w", err)
			}
			return fmt.Errorf("destination: %w", err)
		}
		locked[addr] = a
	}

	src, dst := locked[from], locked[to]
	if err := assetledger.CheckTransfer(mint, authority, src, dst, amount); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	if err := l.addBalance(ctx, from, -1, amount); err != nil {
		return err
	}
	return l.addBalance(ctx, to, 1, amount)
}

// MintTo creates amount new units of mint in account to.
func (l *AssetLedger) MintTo(ctx context.Context, mint, to, authority domain.Address, amount uint64) error {
	d, err := l.getDenomination(ctx, mint, true)
	if err != nil {
		return err
	}
	dst, err := l.getAccount(ctx, to, true)
	if err != nil {
		return err
	}
	if err := assetledger.CheckMint(d, dst, authority, amount); err != nil {
		return err
	}

	query := `UPDATE asset_mints SET supply = supply + $2::numeric WHERE address = $1`
	if _, err := l.q.Exec(ctx, query, mint.String(), formatAmount(amount)); err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("mint %s: %w", mint, assetledger.ErrOverflow)
		}
		return fmt.Errorf("update mint supply: %w", err)
	}
	return l.addBalance(ctx, to, 1, amount)
}

// Denomination returns mint details.
func (l *AssetLedger) Denomination(ctx context.Context, mint domain.Address) (*assetledger.Denomination, error) {
	return l.getDenomination(ctx, mint, false)
}

// Account returns account details.
func (l *AssetLedger) Account(ctx context.Context, addr domain.Address) (*assetledger.Account, error) {
	return l.getAccount(ctx, addr, false)
}

func (l *AssetLedger) addBalance(ctx context.Context, addr domain.Address, sign int, amount uint64) error {
	query := `UPDATE asset_accounts SET amount = amount + $2::numeric WHERE address = $1`
	if sign < 0 {
		query = `UPDATE asset_accounts SET amount = amount - $2::numeric WHERE address = $1`
	}
	if _, err := l.q.Exec(ctx, query, addr.String(), formatAmount(amount)); err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("account %s: %w", addr, assetledger.ErrOverflow)
		}
		return fmt.Errorf("update account balance: %w", err)
	}
	return nil
}

func (l *AssetLedger) getDenomination(ctx context.Context, mint domain.Address, lock bool) (*assetledger.Denomination, error) {
	query := `SELECT address, decimals, authority, supply::text FROM asset_mints WHERE address = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		address, authority, supply string
		decimals                   int16
		d                          assetledger.Denomination
	)
	err := l.q.QueryRow(ctx, query, mint.String()).Scan(&address, &decimals, &authority, &supply)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", assetledger.ErrUnknownAsset, mint)
		}
		return nil, fmt.Errorf("get asset mint: %w", err)
	}

	if err := decodeAddresses(addrCol{address, &d.Address}, addrCol{authority, &d.Authority}); err != nil {
		return nil, fmt.Errorf("decode asset mint: %w", err)
	}
	if d.Supply, err = parseAmount(supply); err != nil {
		return nil, err
	}
	d.Decimals = uint8(decimals)
	return &d, nil
}

func (l *AssetLedger) getAccount(ctx context.Context, addr domain.Address, lock bool) (*assetledger.Account, error) {
	query := `SELECT address, mint, owner, amount::text FROM asset_accounts WHERE address = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		address, mint, owner, amount string
		a                            assetledger.Account
	)
	err := l.q.QueryRow(ctx, query, addr.String()).Scan(&address, &mint, &owner, &amount)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", assetledger.ErrUnknownAccount, addr)
		}
		return nil, fmt.Errorf("get asset account: %w", err)
	}

	if err := decodeAddresses(addrCol{address, &a.Address}, addrCol{mint, &a.Mint}, addrCol{owner, &a.Owner}); err != nil {
		return nil, fmt.Errorf("decode asset account: %w", err)
	}
	if a.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	return &a, nil
}
