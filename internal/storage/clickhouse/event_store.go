package clickhouse

import (
	"context"
	"fmt"

	"share-vault/internal/domain"
	"share-vault/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse. It holds the
// analytics copy of the vault event log; the transactional copy lives in the
// primary backend.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// Append adds an event. Returns ErrDuplicateKey if (vault, sequence) exists.
func (s *EventStore) Append(ctx context.Context, e *domain.VaultEvent) error {
	if e == nil || e.EventID == "" || !e.Type.IsValid() {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, e.Vault, e.Sequence)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO vault_events (
			event_id, vault, sequence, event_type, actor, counterparty,
			base_amount, shares_amount, total_base_assets,
			deposit_paused, allocate_paused, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.EventID, e.Vault.String(), e.Sequence, e.Type.String(),
		e.Actor.String(), e.Counterparty.String(),
		e.BaseAmount, e.SharesAmount, e.TotalBaseAssets,
		boolToUint8(e.DepositPaused), boolToUint8(e.AllocatePaused), e.TimestampMs,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByVault retrieves all events for a vault, ordered by sequence ASC.
func (s *EventStore) GetByVault(ctx context.Context, vault domain.Address) ([]*domain.VaultEvent, error) {
	query := `
		SELECT
			event_id, vault, sequence, event_type, actor, counterparty,
			base_amount, shares_amount, total_base_assets,
			deposit_paused, allocate_paused, timestamp_ms
		FROM vault_events FINAL
		WHERE vault = ?
		ORDER BY sequence ASC
	`

	rows, err := s.conn.Query(ctx, query, vault.String())
	if err != nil {
		return nil, fmt.Errorf("query by vault: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountByVault returns the number of events recorded for a vault.
func (s *EventStore) CountByVault(ctx context.Context, vault domain.Address) (uint64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count() FROM vault_events FINAL WHERE vault = ?`, vault.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by vault: %w", err)
	}
	return count, nil
}

// DailyFlows returns per-day deposit and allocation totals for a vault within
// [startMs, endMs], ordered by day ASC.
func (s *EventStore) DailyFlows(ctx context.Context, vault domain.Address, startMs, endMs int64) ([]*domain.DailyFlow, error) {
	query := `
		SELECT
			day,
			sum(deposited), sum(allocated), sum(shares_minted),
			sum(deposit_count), sum(allocate_count)
		FROM vault_flows_daily
		WHERE vault = ?
			AND day >= toDate(fromUnixTimestamp64Milli(toInt64(?)))
			AND day <= toDate(fromUnixTimestamp64Milli(toInt64(?)))
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, vault.String(), startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("query daily flows: %w", err)
	}
	defer rows.Close()

	var flows []*domain.DailyFlow
	for rows.Next() {
		f := domain.DailyFlow{Vault: vault}
		if err := rows.Scan(&f.Day, &f.Deposited, &f.Allocated, &f.SharesMinted, &f.DepositCount, &f.AllocateCount); err != nil {
			return nil, fmt.Errorf("scan daily flow row: %w", err)
		}
		flows = append(flows, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily flow rows: %w", err)
	}
	return flows, nil
}

// exists checks if an event with the given key exists.
func (s *EventStore) exists(ctx context.Context, vault domain.Address, sequence uint64) (bool, error) {
	query := `
		SELECT count() FROM vault_events
		WHERE vault = ? AND sequence = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, vault.String(), sequence).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.VaultEvent, error) {
	var events []*domain.VaultEvent

	for rows.Next() {
		var (
			e                          domain.VaultEvent
			vault, actor, counterparty string
			eventType                  string
			depositPaused, allocPaused uint8
		)

		err := rows.Scan(
			&e.EventID, &vault, &e.Sequence, &eventType, &actor, &counterparty,
			&e.BaseAmount, &e.SharesAmount, &e.TotalBaseAssets,
			&depositPaused, &allocPaused, &e.TimestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan vault event row: %w", err)
		}

		for _, f := range []struct {
			text string
			dst  *domain.Address
		}{{vault, &e.Vault}, {actor, &e.Actor}, {counterparty, &e.Counterparty}} {
			a, err := domain.ParseAddress(f.text)
			if err != nil {
				return nil, fmt.Errorf("decode vault event: %w", err)
			}
			*f.dst = a
		}
		e.Type = domain.EventType(eventType)
		e.DepositPaused = depositPaused != 0
		e.AllocatePaused = allocPaused != 0

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vault event rows: %w", err)
	}

	return events, nil
}
