// Package assetledger defines the token capabilities the vault consumes.
// Implementations live in storage/memory, storage/postgres (read-write) and
// solana (read-only).
package assetledger

import (
	"context"
	"errors"

	"share-vault/internal/domain"
)

// Asset ledger errors.
var (
	// ErrInsufficientFunds is returned when a source account holds less than the transfer amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownAsset is returned when a mint does not exist.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrUnknownAccount is returned when a token account does not exist.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrAssetExists is returned when creating a mint at an occupied address.
	ErrAssetExists = errors.New("asset already exists")

	// ErrAccountExists is returned when creating an account at an occupied address.
	ErrAccountExists = errors.New("account already exists")

	// ErrOwnerMismatch is returned when the transfer authority does not own the source account.
	ErrOwnerMismatch = errors.New("authority does not own source account")

	// ErrMintAuthority is returned when the signer is not the mint authority.
	ErrMintAuthority = errors.New("signer is not the mint authority")

	// ErrMintMismatch is returned when an account belongs to a different mint.
	ErrMintMismatch = errors.New("account mint mismatch")

	// ErrOverflow is returned when a supply or balance would exceed uint64.
	ErrOverflow = errors.New("amount overflow")
)

// Denomination is a fungible mint.
type Denomination struct {
	Address   domain.Address
	Decimals  uint8
	Authority domain.Address // may mint new units
	Supply    uint64
}

// Account is a token account holding units of one mint.
type Account struct {
	Address domain.Address
	Mint    domain.Address
	Owner   domain.Address // may authorize transfers out
	Amount  uint64
}

// Reader is the query side of the asset ledger.
type Reader interface {
	// Supply returns the total minted units of mint. Returns ErrUnknownAsset if missing.
	Supply(ctx context.Context, mint domain.Address) (uint64, error)

	// Balance returns the units held by account. Returns ErrUnknownAccount if missing.
	Balance(ctx context.Context, account domain.Address) (uint64, error)
}

// Ledger is the full asset-ledger capability. Implementations used inside a
// storage transaction must apply all mutations with that transaction.
type Ledger interface {
	Reader

	// CreateDenomination creates a mint at addr. Returns ErrAssetExists if occupied.
	CreateDenomination(ctx context.Context, addr domain.Address, decimals uint8, authority domain.Address) error

	// CreateAccount creates an empty account of mint owned by owner.
	// Returns ErrAccountExists if occupied and ErrUnknownAsset if mint is missing.
	CreateAccount(ctx context.Context, addr, owner, mint domain.Address) error

	// Transfer moves amount of mint from one account to another, authorized by authority.
	Transfer(ctx context.Context, mint, from, to, authority domain.Address, amount uint64) error

	// MintTo creates amount new units of mint in account to, authorized by authority.
	MintTo(ctx context.Context, mint, to, authority domain.Address, amount uint64) error

	// Denomination returns mint details. Returns ErrUnknownAsset if missing.
	Denomination(ctx context.Context, mint domain.Address) (*Denomination, error)

	// Account returns account details. Returns ErrUnknownAccount if missing.
	Account(ctx context.Context, addr domain.Address) (*Account, error)
}
