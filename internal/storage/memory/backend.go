package memory

import (
	"context"
	"sync"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/storage"
)

// state is the full in-memory dataset. A transaction works on a clone and
// the backend swaps it in on commit.
type state struct {
	vaults   map[domain.Address]*domain.VaultRecord
	mints    map[domain.Address]*assetledger.Denomination
	accounts map[domain.Address]*assetledger.Account
	events   map[domain.Address][]*domain.VaultEvent // keyed by vault
}

func newState() *state {
	return &state{
		vaults:   make(map[domain.Address]*domain.VaultRecord),
		mints:    make(map[domain.Address]*assetledger.Denomination),
		accounts: make(map[domain.Address]*assetledger.Account),
		events:   make(map[domain.Address][]*domain.VaultEvent),
	}
}

// clone copies every record so the staged state shares nothing mutable with
// the committed one. Event slices are copied by header only: events are
// immutable once appended.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.vaults {
		c.vaults[k] = v.Clone()
	}
	for k, v := range s.mints {
		d := *v
		c.mints[k] = &d
	}
	for k, v := range s.accounts {
		a := *v
		c.accounts[k] = &a
	}
	for k, v := range s.events {
		c.events[k] = v[:len(v):len(v)]
	}
	return c
}

// Backend is an in-memory implementation of storage.Backend.
//
// Transactions are fully serialized by a single mutex, so every transition
// observes the effects of the one before it. WithinTx must not be called
// from inside fn.
type Backend struct {
	mu sync.Mutex
	st *state
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{st: newState()}
}

// WithinTx runs fn against a staged copy of the state and commits it only if
// fn returns nil.
func (b *Backend) WithinTx(_ context.Context, fn func(tx storage.Tx) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := b.st.clone()
	if err := fn(&tx{st: staged}); err != nil {
		return err
	}
	b.st = staged
	return nil
}

// tx binds the stores to one staged state.
type tx struct {
	st *state
}

func (t *tx) Vaults() storage.VaultStore { return &VaultStore{st: t.st} }
func (t *tx) Assets() assetledger.Ledger { return &AssetLedger{st: t.st} }
func (t *tx) Events() storage.EventStore { return &EventStore{st: t.st} }

// Verify interface compliance at compile time.
var _ storage.Backend = (*Backend)(nil)
