package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"share-vault/internal/domain"
	"share-vault/internal/storage/migrations"
	pgstore "share-vault/internal/storage/postgres"
)

// setupTestDB starts a PostgreSQL container and applies the embedded
// migrations. The returned cleanup must be called when done.
func setupTestDB(t *testing.T) (*pgstore.Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("vaults"),
		tcpostgres.WithUsername("vault"),
		tcpostgres.WithPassword("vault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgstore.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err, "failed to apply migrations")
	require.NotEmpty(t, applied)

	again, err := migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err, "rerunning migrations")
	require.Empty(t, again, "applied versions must be skipped")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// addr builds a distinct non-zero test address.
func addr(b byte) domain.Address {
	var a domain.Address
	a[0] = b
	a[31] = b
	return a
}

func testVault(b byte) *domain.VaultRecord {
	var tk domain.Ticker
	copy(tk[:], "TEST")
	return &domain.VaultRecord{
		Address:        addr(b),
		Ticker:         tk,
		Admin:          addr(b + 1),
		Authority:      addr(b + 2),
		BaseAsset:      addr(b + 3),
		SharesMint:     addr(b + 4),
		CustodyAccount: addr(b + 5),
		Decimals:       6,
		CreatedAt:      1700000000000 + int64(b),
		UpdatedAt:      1700000000000 + int64(b),
	}
}
