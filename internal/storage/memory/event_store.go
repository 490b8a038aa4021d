package memory

import (
	"context"

	"share-vault/internal/domain"
	"share-vault/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
// It is only reachable through Backend.WithinTx.
type EventStore struct {
	st *state
}

// Append adds an event. Sequence must equal the current count for the vault.
func (s *EventStore) Append(_ context.Context, e *domain.VaultEvent) error {
	if e == nil || e.EventID == "" || !e.Type.IsValid() {
		return storage.ErrInvalidInput
	}

	existing := s.st.events[e.Vault]
	if e.Sequence < uint64(len(existing)) {
		return storage.ErrDuplicateKey
	}
	if e.Sequence > uint64(len(existing)) {
		return storage.ErrInvalidInput
	}

	eventCopy := *e
	s.st.events[e.Vault] = append(existing, &eventCopy)
	return nil
}

// GetByVault retrieves all events for a vault, ordered by sequence ASC.
func (s *EventStore) GetByVault(_ context.Context, vault domain.Address) ([]*domain.VaultEvent, error) {
	existing := s.st.events[vault]
	result := make([]*domain.VaultEvent, 0, len(existing))
	for _, e := range existing {
		eventCopy := *e
		result = append(result, &eventCopy)
	}
	return result, nil
}

// CountByVault returns the number of events recorded for a vault.
func (s *EventStore) CountByVault(_ context.Context, vault domain.Address) (uint64, error) {
	return uint64(len(s.st.events[vault])), nil
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
