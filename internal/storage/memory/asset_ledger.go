package memory

import (
	"context"
	"fmt"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
)

// AssetLedger is an in-memory implementation of assetledger.Ledger.
// It is only reachable through Backend.WithinTx.
type AssetLedger struct {
	st *state
}

// Supply returns the total minted units of mint.
func (l *AssetLedger) Supply(_ context.Context, mint domain.Address) (uint64, error) {
	d, ok := l.st.mints[mint]
	if !ok {
		return 0, fmt.Errorf("%w: %s", assetledger.ErrUnknownAsset, mint)
	}
	return d.Supply, nil
}

// Balance returns the units held by account.
func (l *AssetLedger) Balance(_ context.Context, account domain.Address) (uint64, error) {
	a, ok := l.st.accounts[account]
	if !ok {
		return 0, fmt.Errorf("%w: %s", assetledger.ErrUnknownAccount, account)
	}
	return a.Amount, nil
}

// CreateDenomination creates a mint at addr.
func (l *AssetLedger) CreateDenomination(_ context.Context, addr domain.Address, decimals uint8, authority domain.Address) error {
	if _, exists := l.st.mints[addr]; exists {
		return fmt.Errorf("%w: %s", assetledger.ErrAssetExists, addr)
	}
	l.st.mints[addr] = &assetledger.Denomination{
		Address:   addr,
		Decimals:  decimals,
		Authority: authority,
	}
	return nil
}

// CreateAccount creates an empty account of mint owned by owner.
func (l *AssetLedger) CreateAccount(_ context.Context, addr, owner, mint domain.Address) error {
	if _, ok := l.st.mints[mint]; !ok {
		return fmt.Errorf("%w: %s", assetledger.ErrUnknownAsset, mint)
	}
	if _, exists := l.st.accounts[addr]; exists {
		return fmt.Errorf("%w: %s", assetledger.ErrAccountExists, addr)
	}
	l.st.accounts[addr] = &assetledger.Account{
		Address: addr,
		Mint:    mint,
		Owner:   owner,
	}
	return nil
}

// Transfer moves amount of mint between accounts, authorized by authority.
func (l *AssetLedger) Transfer(_ context.Context, mint, from, to, authority domain.Address, amount uint64) error {
	src, ok := l.st.accounts[from]
	if !ok {
		return fmt.Errorf("%w: source %s", assetledger.ErrUnknownAccount, from)
	}
	dst, ok := l.st.accounts[to]
	if !ok {
		return fmt.Errorf("%w: destination %s", assetledger.ErrUnknownAccount, to)
	}
	if err := assetledger.CheckTransfer(mint, authority, src, dst, amount); err != nil {
		return err
	}

	src.Amount -= amount
	dst.Amount += amount
	return nil
}

// MintTo creates amount new units of mint in account to.
func (l *AssetLedger) MintTo(_ context.Context, mint, to, authority domain.Address, amount uint64) error {
	d, ok := l.st.mints[mint]
	if !ok {
		return fmt.Errorf("%w: %s", assetledger.ErrUnknownAsset, mint)
	}
	dst, ok := l.st.accounts[to]
	if !ok {
		return fmt.Errorf("%w: %s", assetledger.ErrUnknownAccount, to)
	}
	if err := assetledger.CheckMint(d, dst, authority, amount); err != nil {
		return err
	}

	d.Supply += amount
	dst.Amount += amount
	return nil
}

// Denomination returns mint details.
func (l *AssetLedger) Denomination(_ context.Context, mint domain.Address) (*assetledger.Denomination, error) {
	d, ok := l.st.mints[mint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", assetledger.ErrUnknownAsset, mint)
	}
	c := *d
	return &c, nil
}

// Account returns account details.
func (l *AssetLedger) Account(_ context.Context, addr domain.Address) (*assetledger.Account, error) {
	a, ok := l.st.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", assetledger.ErrUnknownAccount, addr)
	}
	c := *a
	return &c, nil
}

// Verify interface compliance at compile time.
var _ assetledger.Ledger = (*AssetLedger)(nil)
