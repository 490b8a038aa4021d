package postgres_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/registry"
	"share-vault/internal/storage"
	pgstore "share-vault/internal/storage/postgres"
	"share-vault/internal/vault"
)

// seedLedger creates a mint with two accounts, the first funded with amount.
func seedLedger(t *testing.T, b *pgstore.Backend, mint, authority, owner, from, to domain.Address, amount uint64) {
	t.Helper()
	ctx := context.Background()

	err := b.WithinTx(ctx, func(tx storage.Tx) error {
		l := tx.Assets()
		if err := l.CreateDenomination(ctx, mint, 6, authority); err != nil {
			return err
		}
		if err := l.CreateAccount(ctx, from, owner, mint); err != nil {
			return err
		}
		if err := l.CreateAccount(ctx, to, owner, mint); err != nil {
			return err
		}
		return l.MintTo(ctx, mint, from, authority, amount)
	})
	require.NoError(t, err)
}

func TestBackend_RollbackOnError(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	b := pgstore.NewBackend(pool)
	ctx := context.Background()
	v := testVault(10)
	boom := errors.New("boom")

	err := b.WithinTx(ctx, func(tx storage.Tx) error {
		if err := tx.Vaults().Insert(ctx, v); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = pgstore.NewVaultStore(pool).GetByAddress(ctx, v.Address)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAssetLedger_TransferAndMint(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	b := pgstore.NewBackend(pool)
	ctx := context.Background()
	mint, authority, owner, from, to := addr(1), addr(2), addr(3), addr(4), addr(5)
	seedLedger(t, b, mint, authority, owner, from, to, 10_000_000)

	ledger := pgstore.NewAssetLedger(pool)

	supply, err := ledger.Supply(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), supply)

	require.NoError(t, ledger.Transfer(ctx, mint, from, to, owner, 2_000_000))

	bal, err := ledger.Balance(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, uint64(8_000_000), bal)
	bal, err = ledger.Balance(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), bal)

	err = ledger.Transfer(ctx, mint, from, to, owner, 9_000_000)
	assert.ErrorIs(t, err, assetledger.ErrInsufficientFunds)

	err = ledger.Transfer(ctx, mint, from, to, addr(66), 1)
	assert.ErrorIs(t, err, assetledger.ErrOwnerMismatch)

	err = ledger.MintTo(ctx, mint, to, addr(66), 1)
	assert.ErrorIs(t, err, assetledger.ErrMintAuthority)

	err = ledger.Transfer(ctx, mint, from, addr(77), owner, 1)
	assert.ErrorIs(t, err, assetledger.ErrUnknownAccount)

	d, err := ledger.Denomination(ctx, mint)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d.Decimals)
	assert.Equal(t, authority, d.Authority)

	acct, err := ledger.Account(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, mint, acct.Mint)
	assert.Equal(t, owner, acct.Owner)
}

func TestAssetLedger_CreateErrors(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger := pgstore.NewAssetLedger(pool)
	ctx := context.Background()

	require.NoError(t, ledger.CreateDenomination(ctx, addr(1), 6, addr(2)))
	err := ledger.CreateDenomination(ctx, addr(1), 9, addr(2))
	assert.ErrorIs(t, err, assetledger.ErrAssetExists)

	err = ledger.CreateAccount(ctx, addr(3), addr(4), addr(99))
	assert.ErrorIs(t, err, assetledger.ErrUnknownAsset)

	require.NoError(t, ledger.CreateAccount(ctx, addr(3), addr(4), addr(1)))
	err = ledger.CreateAccount(ctx, addr(3), addr(4), addr(1))
	assert.ErrorIs(t, err, assetledger.ErrAccountExists)
}

func TestAssetLedger_ConcurrentTransfersSerialize(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	b := pgstore.NewBackend(pool)
	ctx := context.Background()
	mint, authority, owner, from, to := addr(1), addr(2), addr(3), addr(4), addr(5)
	seedLedger(t, b, mint, authority, owner, from, to, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.WithinTx(ctx, func(tx storage.Tx) error {
				return tx.Assets().Transfer(ctx, mint, from, to, owner, 10)
			})
		}()
	}
	wg.Wait()

	ledger := pgstore.NewAssetLedger(pool)
	src, err := ledger.Balance(ctx, from)
	require.NoError(t, err)
	dst, err := ledger.Balance(ctx, to)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), src)
	assert.Equal(t, uint64(100), dst)
}

func TestEventStore_AppendSequence(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	v := testVault(10)
	require.NoError(t, pgstore.NewVaultStore(pool).Insert(ctx, v))

	store := pgstore.NewEventStore(pool)
	e0 := &domain.VaultEvent{
		EventID:      uuid.NewString(),
		Vault:        v.Address,
		Sequence:     0,
		Type:         domain.EventInitialize,
		Actor:        v.Admin,
		Counterparty: v.SharesMint,
		TimestampMs:  v.CreatedAt,
	}
	e1 := &domain.VaultEvent{
		EventID:         uuid.NewString(),
		Vault:           v.Address,
		Sequence:        1,
		Type:            domain.EventDeposit,
		Actor:           addr(50),
		BaseAmount:      5_000_000,
		SharesAmount:    5_000_000,
		TotalBaseAssets: 5_000_000,
		TimestampMs:     v.CreatedAt + 1,
	}
	require.NoError(t, store.Append(ctx, e0))
	require.NoError(t, store.Append(ctx, e1))

	dup := *e1
	dup.EventID = uuid.NewString()
	assert.ErrorIs(t, store.Append(ctx, &dup), storage.ErrDuplicateKey)

	events, err := store.GetByVault(ctx, v.Address)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, e0, events[0])
	assert.Equal(t, e1, events[1])

	count, err := store.CountByVault(ctx, v.Address)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

// wallet returns an on-curve address, usable as a signer or a new mint.
func wallet(b byte) domain.Address {
	seed := bytes.Repeat([]byte{b}, ed25519.SeedSize)
	var a domain.Address
	copy(a[:], ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	return a
}

func TestInitialize_ConcurrentSameTicker(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	svc := vault.NewService(vault.Options{
		Backend:  pgstore.NewBackend(pool),
		Registry: registry.New(registry.DefaultProgramID),
	})
	base := wallet(1)
	require.NoError(t, svc.CreateAsset(ctx, base, wallet(2), 6))

	const n = 8
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Initialize(ctx, vault.InitializeRequest{
				Admin:     wallet(byte(10 + i)),
				BaseAsset: base,
				Ticker:    registry.DefaultTicker,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, vault.ErrAlreadyInitialized)
		assert.Equal(t, "already_initialized", vault.Reason(err))
	}
	assert.Equal(t, 1, created)

	events, err := svc.Events(ctx, registry.DefaultTicker)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
