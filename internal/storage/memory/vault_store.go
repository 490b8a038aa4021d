package memory

import (
	"context"
	"sort"

	"share-vault/internal/domain"
	"share-vault/internal/storage"
)

// VaultStore is an in-memory implementation of storage.VaultStore.
// It is only reachable through Backend.WithinTx.
type VaultStore struct {
	st *state
}

// Insert adds a new vault. Returns ErrDuplicateKey if the address exists.
func (s *VaultStore) Insert(_ context.Context, v *domain.VaultRecord) error {
	if v == nil || v.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	if _, exists := s.st.vaults[v.Address]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	s.st.vaults[v.Address] = v.Clone()
	return nil
}

// GetByAddress retrieves a vault. Returns ErrNotFound if not exists.
func (s *VaultStore) GetByAddress(_ context.Context, addr domain.Address) (*domain.VaultRecord, error) {
	v, exists := s.st.vaults[addr]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return v.Clone(), nil
}

// GetForUpdate is GetByAddress; the backend mutex already serializes transactions.
func (s *VaultStore) GetForUpdate(ctx context.Context, addr domain.Address) (*domain.VaultRecord, error) {
	return s.GetByAddress(ctx, addr)
}

// Update writes the mutable fields. Returns ErrNotFound if not exists.
func (s *VaultStore) Update(_ context.Context, v *domain.VaultRecord) error {
	if v == nil {
		return storage.ErrInvalidInput
	}
	cur, exists := s.st.vaults[v.Address]
	if !exists {
		return storage.ErrNotFound
	}

	cur.TotalBaseAssets = v.TotalBaseAssets
	cur.DepositPaused = v.DepositPaused
	cur.AllocatePaused = v.AllocatePaused
	cur.UpdatedAt = v.UpdatedAt
	return nil
}

// List retrieves all vaults ordered by creation time ASC.
func (s *VaultStore) List(_ context.Context) ([]*domain.VaultRecord, error) {
	result := make([]*domain.VaultRecord, 0, len(s.st.vaults))
	for _, v := range s.st.vaults {
		result = append(result, v.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address.String() < result[j].Address.String()
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.VaultStore = (*VaultStore)(nil)
