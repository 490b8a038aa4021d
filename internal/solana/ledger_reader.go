package solana

import (
	"context"
	"fmt"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
)

// LedgerReader implements assetledger.Reader against live SPL Token
// accounts, so a deployed vault can be reconciled with the same code as a
// local one.
type LedgerReader struct {
	rpc RPCClient
}

// NewLedgerReader creates a new LedgerReader.
func NewLedgerReader(rpc RPCClient) *LedgerReader {
	return &LedgerReader{rpc: rpc}
}

// Compile-time interface check.
var _ assetledger.Reader = (*LedgerReader)(nil)

// Supply returns the total minted units of mint.
func (r *LedgerReader) Supply(ctx context.Context, mint domain.Address) (uint64, error) {
	d, err := r.Denomination(ctx, mint)
	if err != nil {
		return 0, err
	}
	return d.Supply, nil
}

// Balance returns the units held by account.
func (r *LedgerReader) Balance(ctx context.Context, account domain.Address) (uint64, error) {
	a, err := r.Account(ctx, account)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// Snapshot reads the supply of mint and the balance of account in one
// request, so both values come from the same slot.
func (r *LedgerReader) Snapshot(ctx context.Context, mint, account domain.Address) (supply, balance uint64, err error) {
	batch, err := r.rpc.GetMultipleAccounts(ctx, []domain.Address{mint, account})
	if err != nil {
		return 0, 0, fmt.Errorf("get accounts: %w", err)
	}
	d, err := decodeMintInfo(mint, batch.Accounts[0])
	if err != nil {
		return 0, 0, err
	}
	a, err := decodeAccountInfo(account, batch.Accounts[1])
	if err != nil {
		return 0, 0, err
	}
	return d.Supply, a.Amount, nil
}

// Denomination fetches and decodes a mint account.
func (r *LedgerReader) Denomination(ctx context.Context, mint domain.Address) (*assetledger.Denomination, error) {
	info, err := r.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint %s: %w", mint, err)
	}
	return decodeMintInfo(mint, info)
}

// Account fetches and decodes a token account.
func (r *LedgerReader) Account(ctx context.Context, addr domain.Address) (*assetledger.Account, error) {
	info, err := r.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("get token account %s: %w", addr, err)
	}
	return decodeAccountInfo(addr, info)
}

func decodeMintInfo(mint domain.Address, info *AccountInfo) (*assetledger.Denomination, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: %s", assetledger.ErrUnknownAsset, mint)
	}
	return DecodeMint(mint, info.Data)
}

func decodeAccountInfo(addr domain.Address, info *AccountInfo) (*assetledger.Account, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: %s", assetledger.ErrUnknownAccount, addr)
	}
	return DecodeTokenAccount(addr, info.Data)
}
