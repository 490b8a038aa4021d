// Package vault implements the share-based custody vault: initialize,
// deposit, allocate and pause transitions over a storage.Backend.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/idhash"
	"share-vault/internal/observability"
	"share-vault/internal/reconcile"
	"share-vault/internal/registry"
	"share-vault/internal/storage"
)

// Service runs vault transitions. Each transition is one backend
// transaction; the vault row is locked for its duration.
type Service struct {
	backend   storage.Backend
	registry  *registry.Registry
	analytics storage.EventStore
	logger    *log.Logger
	now       func() time.Time
}

// Options contains configuration for creating a Service.
type Options struct {
	Backend   storage.Backend
	Registry  *registry.Registry
	Analytics storage.EventStore // optional; receives committed events
	Logger    *log.Logger
	Now       func() time.Time // default time.Now
}

// NewService creates a new Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		backend:   opts.Backend,
		registry:  opts.Registry,
		analytics: opts.Analytics,
		logger:    logger,
		now:       now,
	}
}

// Registry returns the registry addresses are derived with.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// InitializeRequest creates a vault.
type InitializeRequest struct {
	Admin     domain.Address // signer; becomes the vault admin
	BaseAsset domain.Address
	Ticker    domain.Ticker
}

// Initialize creates the vault record for req.Ticker together with its
// shares mint and custody account.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (rec *domain.VaultRecord, err error) {
	defer s.observe("initialize", time.Now(), &err)

	addrs, err := s.registry.Resolve(req.Ticker, req.BaseAsset)
	if err != nil {
		return nil, err
	}

	var event *domain.VaultEvent
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.Vaults().GetByAddress(ctx, addrs.Vault); err == nil {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, req.Ticker)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("lookup vault: %w", err)
		}

		assets := tx.Assets()
		base, err := assets.Denomination(ctx, req.BaseAsset)
		if err != nil {
			return fmt.Errorf("base asset: %w", err)
		}

		ts := s.now().UnixMilli()
		rec = &domain.VaultRecord{
			Address:        addrs.Vault,
			Ticker:         req.Ticker,
			Admin:          req.Admin,
			Authority:      addrs.Authority,
			BaseAsset:      req.BaseAsset,
			SharesMint:     addrs.SharesMint,
			CustodyAccount: addrs.CustodyAccount,
			Decimals:       base.Decimals,
			CreatedAt:      ts,
			UpdatedAt:      ts,
		}
		// The vault row goes first: a concurrent initialize of the same
		// ticker then fails on the vaults key, not on the shares mint.
		if err := tx.Vaults().Insert(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("%w: %s", ErrAlreadyInitialized, req.Ticker)
			}
			return fmt.Errorf("insert vault: %w", err)
		}

		if err := assets.CreateDenomination(ctx, addrs.SharesMint, base.Decimals, addrs.Authority); err != nil {
			return fmt.Errorf("create shares mint: %w", err)
		}
		if err := openCustody(ctx, assets, addrs.CustodyAccount, addrs.Authority, req.BaseAsset); err != nil {
			return fmt.Errorf("create custody account: %w", err)
		}

		event, err = s.appendEvent(ctx, tx, rec, &domain.VaultEvent{
			Type:         domain.EventInitialize,
			Actor:        req.Admin,
			Counterparty: addrs.SharesMint,
			TimestampMs:  ts,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.forward(ctx, event)
	observability.RecordInitialize(rec.Address.String())
	s.logger.Printf("Initialized vault %s (%s): admin=%s base=%s shares=%s",
		rec.Ticker, rec.Address, rec.Admin, rec.BaseAsset, rec.SharesMint)
	return rec, nil
}

// DepositRequest moves base assets from the depositor into custody.
type DepositRequest struct {
	Depositor  domain.Address // signer
	Ticker     domain.Ticker
	BaseAsset  domain.Address // must equal the vault's base asset
	SharesMint domain.Address // must equal the vault's shares mint
	Amount     uint64
}

// DepositResult describes a committed deposit.
type DepositResult struct {
	SharesMinted    uint64
	SharesAccount   domain.Address
	TotalBaseAssets uint64
	SharesSupply    uint64
}

// Deposit transfers req.Amount of the base asset from the depositor's
// associated account into custody and mints shares to the depositor.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (res *DepositResult, err error) {
	defer s.observe("deposit", time.Now(), &err)

	if req.Amount == 0 {
		return nil, ErrZeroAmount
	}
	vaultAddr, err := s.registry.VaultAddress(req.Ticker)
	if err != nil {
		return nil, err
	}
	source, err := registry.AssociatedAccount(req.Depositor, req.BaseAsset)
	if err != nil {
		return nil, fmt.Errorf("derive depositor account: %w", err)
	}
	sharesAccount, err := registry.AssociatedAccount(req.Depositor, req.SharesMint)
	if err != nil {
		return nil, fmt.Errorf("derive shares account: %w", err)
	}

	var event *domain.VaultEvent
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		v, err := s.lockVault(ctx, tx, vaultAddr)
		if err != nil {
			return err
		}
		if v.DepositPaused {
			return ErrDepositPaused
		}
		if req.BaseAsset != v.BaseAsset {
			return fmt.Errorf("%w: base asset %s, vault holds %s", ErrReferenceMismatch, req.BaseAsset, v.BaseAsset)
		}
		if req.SharesMint != v.SharesMint {
			return fmt.Errorf("%w: shares mint %s, vault mints %s", ErrReferenceMismatch, req.SharesMint, v.SharesMint)
		}

		assets := tx.Assets()
		balance, err := assets.Balance(ctx, source)
		if err != nil && !errors.Is(err, assetledger.ErrUnknownAccount) {
			return fmt.Errorf("read depositor balance: %w", err)
		}
		if balance < req.Amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance, req.Amount)
		}

		supply, err := assets.Supply(ctx, v.SharesMint)
		if err != nil {
			return fmt.Errorf("read shares supply: %w", err)
		}
		shares, err := ConvertToShares(req.Amount, v.TotalBaseAssets, supply)
		if err != nil {
			return err
		}
		total, err := checkedAdd(v.TotalBaseAssets, req.Amount)
		if err != nil {
			return err
		}
		newSupply, err := checkedAdd(supply, shares)
		if err != nil {
			return err
		}

		if err := assets.Transfer(ctx, v.BaseAsset, source, v.CustodyAccount, req.Depositor, req.Amount); err != nil {
			if errors.Is(err, assetledger.ErrInsufficientFunds) {
				return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
			}
			return fmt.Errorf("transfer to custody: %w", err)
		}
		if err := openAccount(ctx, assets, sharesAccount, req.Depositor, v.SharesMint); err != nil {
			return fmt.Errorf("open shares account: %w", err)
		}
		if err := assets.MintTo(ctx, v.SharesMint, sharesAccount, v.Authority, shares); err != nil {
			return fmt.Errorf("mint shares: %w", err)
		}

		ts := s.now().UnixMilli()
		v.TotalBaseAssets = total
		v.UpdatedAt = ts
		if err := tx.Vaults().Update(ctx, v); err != nil {
			return fmt.Errorf("update vault: %w", err)
		}

		event, err = s.appendEvent(ctx, tx, v, &domain.VaultEvent{
			Type:         domain.EventDeposit,
			Actor:        req.Depositor,
			BaseAmount:   req.Amount,
			SharesAmount: shares,
			TimestampMs:  ts,
		})
		if err != nil {
			return err
		}

		res = &DepositResult{
			SharesMinted:    shares,
			SharesAccount:   sharesAccount,
			TotalBaseAssets: total,
			SharesSupply:    newSupply,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forward(ctx, event)
	observability.RecordDeposit(vaultAddr.String(), req.Amount, res.SharesMinted, res.TotalBaseAssets, res.SharesSupply)
	s.logger.Printf("Deposit into %s: depositor=%s amount=%d shares=%d total=%d",
		req.Ticker, req.Depositor, req.Amount, res.SharesMinted, res.TotalBaseAssets)
	return res, nil
}

// AllocateRequest moves base assets out of custody.
type AllocateRequest struct {
	Caller      domain.Address // signer; must be the vault admin
	Ticker      domain.Ticker
	BaseAsset   domain.Address // must equal the vault's base asset
	Destination domain.Address // token account of the base asset
	Amount      uint64
}

// AllocateResult describes a committed allocation.
type AllocateResult struct {
	CustodyBalance  uint64
	TotalBaseAssets uint64
}

// Allocate transfers req.Amount from custody to req.Destination, signed by
// the vault authority. TotalBaseAssets is left unchanged and allocation is
// not bounded by it, so custody may be drained below the ledger value.
func (s *Service) Allocate(ctx context.Context, req AllocateRequest) (res *AllocateResult, err error) {
	defer s.observe("allocate", time.Now(), &err)

	vaultAddr, err := s.registry.VaultAddress(req.Ticker)
	if err != nil {
		return nil, err
	}

	var event *domain.VaultEvent
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		v, err := s.lockVault(ctx, tx, vaultAddr)
		if err != nil {
			return err
		}
		if req.Caller != v.Admin {
			return fmt.Errorf("%w: %s", ErrUnauthorized, req.Caller)
		}
		if req.Amount == 0 {
			return ErrZeroAmount
		}
		if v.AllocatePaused {
			return ErrAllocatePaused
		}
		if req.BaseAsset != v.BaseAsset {
			return fmt.Errorf("%w: base asset %s, vault holds %s", ErrReferenceMismatch, req.BaseAsset, v.BaseAsset)
		}

		assets := tx.Assets()
		dest, err := assets.Account(ctx, req.Destination)
		if err != nil {
			if errors.Is(err, assetledger.ErrUnknownAccount) {
				return fmt.Errorf("%w: destination %s does not exist", ErrReferenceMismatch, req.Destination)
			}
			return fmt.Errorf("read destination: %w", err)
		}
		if dest.Mint != v.BaseAsset {
			return fmt.Errorf("%w: destination holds %s, vault holds %s", ErrReferenceMismatch, dest.Mint, v.BaseAsset)
		}
		if dest.Address == v.CustodyAccount {
			return fmt.Errorf("%w: destination is the custody account", ErrReferenceMismatch)
		}

		custody, err := assets.Balance(ctx, v.CustodyAccount)
		if err != nil {
			return fmt.Errorf("read custody balance: %w", err)
		}
		if custody < req.Amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientCustodyBalance, custody, req.Amount)
		}

		if err := assets.Transfer(ctx, v.BaseAsset, v.CustodyAccount, req.Destination, v.Authority, req.Amount); err != nil {
			return fmt.Errorf("transfer from custody: %w", err)
		}

		event, err = s.appendEvent(ctx, tx, v, &domain.VaultEvent{
			Type:         domain.EventAllocate,
			Actor:        req.Caller,
			Counterparty: req.Destination,
			BaseAmount:   req.Amount,
			TimestampMs:  s.now().UnixMilli(),
		})
		if err != nil {
			return err
		}

		res = &AllocateResult{
			CustodyBalance:  custody - req.Amount,
			TotalBaseAssets: v.TotalBaseAssets,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.forward(ctx, event)
	observability.RecordAllocate(vaultAddr.String(), req.Amount, res.CustodyBalance)
	s.logger.Printf("Allocate from %s: destination=%s amount=%d custody=%d total=%d",
		req.Ticker, req.Destination, req.Amount, res.CustodyBalance, res.TotalBaseAssets)
	return res, nil
}

// SetPausedRequest sets both pause flags of a vault.
type SetPausedRequest struct {
	Caller         domain.Address // signer; must be the vault admin
	Ticker         domain.Ticker
	DepositPaused  bool
	AllocatePaused bool
}

// SetPaused updates the pause flags. Only the admin may call it.
func (s *Service) SetPaused(ctx context.Context, req SetPausedRequest) (rec *domain.VaultRecord, err error) {
	defer s.observe("set_paused", time.Now(), &err)

	vaultAddr, err := s.registry.VaultAddress(req.Ticker)
	if err != nil {
		return nil, err
	}

	var event *domain.VaultEvent
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		v, err := s.lockVault(ctx, tx, vaultAddr)
		if err != nil {
			return err
		}
		if req.Caller != v.Admin {
			return fmt.Errorf("%w: %s", ErrUnauthorized, req.Caller)
		}

		ts := s.now().UnixMilli()
		v.DepositPaused = req.DepositPaused
		v.AllocatePaused = req.AllocatePaused
		v.UpdatedAt = ts
		if err := tx.Vaults().Update(ctx, v); err != nil {
			return fmt.Errorf("update vault: %w", err)
		}

		event, err = s.appendEvent(ctx, tx, v, &domain.VaultEvent{
			Type:        domain.EventPause,
			Actor:       req.Caller,
			TimestampMs: ts,
		})
		rec = v
		return err
	})
	if err != nil {
		return nil, err
	}

	s.forward(ctx, event)
	s.logger.Printf("Vault %s pause flags: deposit=%t allocate=%t", req.Ticker, rec.DepositPaused, rec.AllocatePaused)
	return rec, nil
}

// Get returns the vault record for ticker.
func (s *Service) Get(ctx context.Context, ticker domain.Ticker) (*domain.VaultRecord, error) {
	vaultAddr, err := s.registry.VaultAddress(ticker)
	if err != nil {
		return nil, err
	}

	var rec *domain.VaultRecord
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		rec, err = s.getVault(ctx, tx, vaultAddr)
		return err
	})
	return rec, err
}

// List returns every vault ordered by creation time.
func (s *Service) List(ctx context.Context) ([]*domain.VaultRecord, error) {
	var vaults []*domain.VaultRecord
	err := s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		vaults, err = tx.Vaults().List(ctx)
		return err
	})
	return vaults, err
}

// Events returns the committed event log of a vault.
func (s *Service) Events(ctx context.Context, ticker domain.Ticker) ([]*domain.VaultEvent, error) {
	vaultAddr, err := s.registry.VaultAddress(ticker)
	if err != nil {
		return nil, err
	}

	var events []*domain.VaultEvent
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := s.getVault(ctx, tx, vaultAddr); err != nil {
			return err
		}
		events, err = tx.Events().GetByVault(ctx, vaultAddr)
		return err
	})
	return events, err
}

// Report reconciles a vault against the backend's asset ledger.
func (s *Service) Report(ctx context.Context, ticker domain.Ticker) (*reconcile.Report, error) {
	vaultAddr, err := s.registry.VaultAddress(ticker)
	if err != nil {
		return nil, err
	}

	var report *reconcile.Report
	err = s.backend.WithinTx(ctx, func(tx storage.Tx) error {
		v, err := s.getVault(ctx, tx, vaultAddr)
		if err != nil {
			return err
		}
		report, err = reconcile.Check(ctx, v, tx.Assets())
		return err
	})
	return report, err
}

func (s *Service) getVault(ctx context.Context, tx storage.Tx, addr domain.Address) (*domain.VaultRecord, error) {
	v, err := tx.Vaults().GetByAddress(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return v, err
}

func (s *Service) lockVault(ctx context.Context, tx storage.Tx, addr domain.Address) (*domain.VaultRecord, error) {
	v, err := tx.Vaults().GetForUpdate(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return v, err
}

// appendEvent fills the sequence, id and post-transition snapshot of e and
// appends it to the transactional log.
func (s *Service) appendEvent(ctx context.Context, tx storage.Tx, v *domain.VaultRecord, e *domain.VaultEvent) (*domain.VaultEvent, error) {
	seq, err := tx.Events().CountByVault(ctx, v.Address)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	e.Vault = v.Address
	e.Sequence = seq
	e.EventID = idhash.ComputeEventID(v.Address, e.Type, seq)
	e.TotalBaseAssets = v.TotalBaseAssets
	e.DepositPaused = v.DepositPaused
	e.AllocatePaused = v.AllocatePaused

	if err := tx.Events().Append(ctx, e); err != nil {
		return nil, fmt.Errorf("append %s event: %w", e.Type, err)
	}
	return e, nil
}

// forward copies a committed event to the analytics store. Failures are
// logged; the transition has already committed.
func (s *Service) forward(ctx context.Context, e *domain.VaultEvent) {
	if s.analytics == nil || e == nil {
		return
	}
	if err := s.analytics.Append(ctx, e); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		observability.RecordAnalyticsError()
		s.logger.Printf("Forward %s event %s: %v", e.Type, e.EventID, err)
	}
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	observability.RecordTransitionLatency(operation, time.Since(start).Seconds())
	if *err != nil {
		observability.RecordRejection(operation, Reason(*err))
	}
}

// openCustody opens the custody account. An account already at addr is
// adopted only while it holds nothing.
func openCustody(ctx context.Context, assets assetledger.Ledger, addr, owner, mint domain.Address) error {
	if err := openAccount(ctx, assets, addr, owner, mint); err != nil {
		return err
	}
	balance, err := assets.Balance(ctx, addr)
	if err != nil {
		return err
	}
	if balance != 0 {
		return fmt.Errorf("%w: custody account %s already holds %d", ErrReferenceMismatch, addr, balance)
	}
	return nil
}

// openAccount creates addr unless an account with the same owner and mint
// already exists there.
func openAccount(ctx context.Context, assets assetledger.Ledger, addr, owner, mint domain.Address) error {
	err := assets.CreateAccount(ctx, addr, owner, mint)
	if !errors.Is(err, assetledger.ErrAccountExists) {
		return err
	}
	existing, err := assets.Account(ctx, addr)
	if err != nil {
		return err
	}
	if existing.Owner != owner || existing.Mint != mint {
		return fmt.Errorf("%w: account %s belongs to %s for %s", ErrReferenceMismatch, addr, existing.Owner, existing.Mint)
	}
	return nil
}
