package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"share-vault/internal/domain"
	"share-vault/internal/storage"
	chstore "share-vault/internal/storage/clickhouse"
)

func testAddress(b byte) domain.Address {
	var a domain.Address
	a[0] = b
	a[31] = 1
	return a
}

func TestEventStore_AppendAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewEventStore(conn)
	ctx := context.Background()
	vault := testAddress(1)
	admin := testAddress(2)

	events := []*domain.VaultEvent{
		{EventID: "e0", Vault: vault, Sequence: 0, Type: domain.EventInitialize, Actor: admin, Counterparty: testAddress(3), TimestampMs: 1000},
		{EventID: "e1", Vault: vault, Sequence: 1, Type: domain.EventDeposit, Actor: testAddress(4), BaseAmount: 5_000_000, SharesAmount: 5_000_000, TotalBaseAssets: 5_000_000, TimestampMs: 2000},
		{EventID: "e2", Vault: vault, Sequence: 2, Type: domain.EventPause, Actor: admin, TotalBaseAssets: 5_000_000, DepositPaused: true, TimestampMs: 3000},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	got, err := store.GetByVault(ctx, vault)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, domain.EventInitialize, got[0].Type)
	assert.Equal(t, testAddress(3), got[0].Counterparty)
	assert.Equal(t, uint64(5_000_000), got[1].SharesAmount)
	assert.True(t, got[2].DepositPaused)
	assert.False(t, got[2].AllocatePaused)

	count, err := store.CountByVault(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	other, err := store.GetByVault(ctx, testAddress(9))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestEventStore_AppendDuplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewEventStore(conn)
	ctx := context.Background()

	e := &domain.VaultEvent{EventID: "e0", Vault: testAddress(1), Type: domain.EventInitialize, TimestampMs: 1}
	require.NoError(t, store.Append(ctx, e))

	dup := *e
	dup.EventID = "e0-bis"
	err := store.Append(ctx, &dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.Append(ctx, &domain.VaultEvent{Vault: testAddress(1), Type: domain.EventDeposit})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestEventStore_DailyFlows(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := chstore.NewEventStore(conn)
	ctx := context.Background()
	vault := testAddress(1)

	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC).UnixMilli()

	events := []*domain.VaultEvent{
		{EventID: "e0", Vault: vault, Sequence: 0, Type: domain.EventInitialize, TimestampMs: day1},
		{EventID: "e1", Vault: vault, Sequence: 1, Type: domain.EventDeposit, BaseAmount: 100, SharesAmount: 100, TimestampMs: day1},
		{EventID: "e2", Vault: vault, Sequence: 2, Type: domain.EventDeposit, BaseAmount: 50, SharesAmount: 50, TimestampMs: day1 + 1000},
		{EventID: "e3", Vault: vault, Sequence: 3, Type: domain.EventAllocate, BaseAmount: 70, TimestampMs: day2},
	}
	for _, e := range events {
		require.NoError(t, store.Append(ctx, e))
	}

	flows, err := store.DailyFlows(ctx, vault, day1, day2)
	require.NoError(t, err)
	require.Len(t, flows, 2)

	assert.Equal(t, uint64(150), flows[0].Deposited)
	assert.Equal(t, uint64(150), flows[0].SharesMinted)
	assert.Equal(t, uint64(2), flows[0].DepositCount)
	assert.Equal(t, uint64(0), flows[0].Allocated)

	assert.Equal(t, uint64(70), flows[1].Allocated)
	assert.Equal(t, uint64(1), flows[1].AllocateCount)
}
