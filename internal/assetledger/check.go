package assetledger

import (
	"fmt"

	"share-vault/internal/domain"
)

// CheckTransfer validates a transfer against the current source and
// destination accounts. Shared by every read-write Ledger implementation.
func CheckTransfer(mint, authority domain.Address, from, to *Account, amount uint64) error {
	if from.Mint != mint {
		return fmt.Errorf("%w: source %s holds %s", ErrMintMismatch, from.Address, from.Mint)
	}
	if to.Mint != mint {
		return fmt.Errorf("%w: destination %s holds %s", ErrMintMismatch, to.Address, to.Mint)
	}
	if from.Owner != authority {
		return ErrOwnerMismatch
	}
	if from.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, from.Amount, amount)
	}
	if from.Address != to.Address && to.Amount > ^uint64(0)-amount {
		return fmt.Errorf("%w: destination balance", ErrOverflow)
	}
	return nil
}

// CheckMint validates a mint operation against the denomination and the
// receiving account.
func CheckMint(d *Denomination, to *Account, authority domain.Address, amount uint64) error {
	if d.Authority != authority {
		return ErrMintAuthority
	}
	if to.Mint != d.Address {
		return fmt.Errorf("%w: account %s holds %s", ErrMintMismatch, to.Address, to.Mint)
	}
	if d.Supply > ^uint64(0)-amount {
		return fmt.Errorf("%w: supply", ErrOverflow)
	}
	if to.Amount > ^uint64(0)-amount {
		return fmt.Errorf("%w: account balance", ErrOverflow)
	}
	return nil
}
