package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"share-vault/internal/domain"
	"share-vault/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	q querier
}

// NewEventStore creates a new EventStore. q is a pool or a transaction.
func NewEventStore(q querier) *EventStore {
	return &EventStore{q: q}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Append adds an event. Returns ErrDuplicateKey if (vault, sequence) exists.
func (s *EventStore) Append(ctx context.Context, e *domain.VaultEvent) error {
	if e == nil || e.EventID == "" || !e.Type.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO vault_events (
			event_id, vault, sequence, event_type, actor, counterparty,
			base_amount, shares_amount, total_base_assets,
			deposit_paused, allocate_paused, timestamp_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12)
	`

	_, err := s.q.Exec(ctx, query,
		e.EventID,
		e.Vault.String(),
		int64(e.Sequence),
		e.Type.String(),
		e.Actor.String(),
		e.Counterparty.String(),
		formatAmount(e.BaseAmount),
		formatAmount(e.SharesAmount),
		formatAmount(e.TotalBaseAssets),
		e.DepositPaused,
		e.AllocatePaused,
		e.TimestampMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert vault event: %w", err)
	}
	return nil
}

// GetByVault retrieves all events for a vault, ordered by sequence ASC.
func (s *EventStore) GetByVault(ctx context.Context, vault domain.Address) ([]*domain.VaultEvent, error) {
	query := `
		SELECT event_id::text, vault, sequence, event_type, actor, counterparty,
			base_amount::text, shares_amount::text, total_base_assets::text,
			deposit_paused, allocate_paused, timestamp_ms
		FROM vault_events
		WHERE vault = $1
		ORDER BY sequence ASC
	`

	rows, err := s.q.Query(ctx, query, vault.String())
	if err != nil {
		return nil, fmt.Errorf("query vault events: %w", err)
	}
	defer rows.Close()

	var events []*domain.VaultEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vault event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault events: %w", err)
	}

	return events, nil
}

// CountByVault returns the number of events recorded for a vault.
func (s *EventStore) CountByVault(ctx context.Context, vault domain.Address) (uint64, error) {
	var count int64
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM vault_events WHERE vault = $1`, vault.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count vault events: %w", err)
	}
	return uint64(count), nil
}

func scanEvent(row pgx.Row) (*domain.VaultEvent, error) {
	var (
		e                          domain.VaultEvent
		vault, actor, counterparty string
		eventType                  string
		sequence                   int64
		baseAmount, shares, total  string
	)

	err := row.Scan(
		&e.EventID,
		&vault,
		&sequence,
		&eventType,
		&actor,
		&counterparty,
		&baseAmount,
		&shares,
		&total,
		&e.DepositPaused,
		&e.AllocatePaused,
		&e.TimestampMs,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeAddresses(addrCol{vault, &e.Vault}, addrCol{actor, &e.Actor}, addrCol{counterparty, &e.Counterparty}); err != nil {
		return nil, err
	}
	e.Sequence = uint64(sequence)
	e.Type = domain.EventType(eventType)
	if e.BaseAmount, err = parseAmount(baseAmount); err != nil {
		return nil, err
	}
	if e.SharesAmount, err = parseAmount(shares); err != nil {
		return nil, err
	}
	if e.TotalBaseAssets, err = parseAmount(total); err != nil {
		return nil, err
	}
	return &e, nil
}
