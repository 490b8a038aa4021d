package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"share-vault/internal/storage/postgres"
)

// migrationLockID keys the advisory lock that serializes concurrent runs.
const migrationLockID = 0x5641554c54 // "VAULT"

const createPostgresVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunPostgresMigrations applies every embedded file not yet recorded in
// schema_migrations. Pending files run in one transaction under an advisory
// lock, each in a savepoint with its version row. Returns the names of the
// files applied by this call.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	all, err := readMigrations(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	var applied []string
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
		if _, err := tx.Exec(ctx, createPostgresVersionTable); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		done, err := appliedPostgresVersions(ctx, tx)
		if err != nil {
			return err
		}
		for _, m := range pending(all, done) {
			if err := pgx.BeginFunc(ctx, tx, func(sp pgx.Tx) error {
				if _, err := sp.Exec(ctx, m.sql); err != nil {
					return err
				}
				_, err := sp.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name)
				return err
			}); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.name, err)
			}
			applied = append(applied, m.name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func appliedPostgresVersions(ctx context.Context, tx pgx.Tx) (map[int]bool, error) {
	rows, err := tx.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	done := make(map[int]bool, len(versions))
	for _, v := range versions {
		done[int(v)] = true
	}
	return done, nil
}
