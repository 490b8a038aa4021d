package vault

import (
	"context"
	"errors"
	"fmt"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/registry"
	"share-vault/internal/storage"
)

// Asset operations for backends that hold the asset ledger themselves
// (memory and postgres). They stand in for the token program when the
// vault is run off-chain.

// CreateAsset creates a base-asset mint controlled by authority. Neither may
// be a program address: those belong to vaults.
func (s *Service) CreateAsset(ctx context.Context, mint, authority domain.Address, decimals uint8) error {
	if err := rejectProgramAddress("mint", mint); err != nil {
		return err
	}
	if err := rejectProgramAddress("authority", authority); err != nil {
		return err
	}
	return s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		return tx.Assets().CreateDenomination(ctx, mint, decimals, authority)
	})
}

// MintAsset mints amount of mint into the associated account of owner,
// creating the account if needed. Returns the credited account.
func (s *Service) MintAsset(ctx context.Context, mint, authority, owner domain.Address, amount uint64) (domain.Address, error) {
	if err := rejectProgramAddress("mint", mint); err != nil {
		return domain.Address{}, err
	}
	if err := rejectProgramAddress("authority", authority); err != nil {
		return domain.Address{}, err
	}
	account, err := registry.AssociatedAccount(owner, mint)
	if err != nil {
		return domain.Address{}, err
	}
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		if err := openAccount(ctx, tx.Assets(), account, owner, mint); err != nil {
			return err
		}
		return tx.Assets().MintTo(ctx, mint, account, authority, amount)
	})
	if err != nil {
		return domain.Address{}, err
	}
	s.logger.Printf("Minted %d of %s to %s", amount, mint, account)
	return account, nil
}

// Balance returns the units of mint held in the associated account of owner.
// A missing account holds zero.
func (s *Service) Balance(ctx context.Context, owner, mint domain.Address) (uint64, error) {
	account, err := registry.AssociatedAccount(owner, mint)
	if err != nil {
		return 0, err
	}
	var balance uint64
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		balance, err = tx.Assets().Balance(ctx, account)
		if errors.Is(err, assetledger.ErrUnknownAccount) {
			balance, err = 0, nil
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", account, err)
	}
	return balance, nil
}

// AccountBalance returns the units held by a token account.
func (s *Service) AccountBalance(ctx context.Context, account domain.Address) (uint64, error) {
	var balance uint64
	err := s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		balance, err = tx.Assets().Balance(ctx, account)
		return err
	})
	return balance, err
}

func rejectProgramAddress(role string, a domain.Address) error {
	if registry.IsProgramAddress(a) {
		return fmt.Errorf("%w: %s %s", ErrProgramAddress, role, a)
	}
	return nil
}
