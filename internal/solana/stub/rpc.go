// Package stub provides an in-memory solana.RPCClient for tests.
package stub

import (
	"context"
	"sync"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/solana"
)

// TokenProgram is the owner reported for stubbed token accounts.
var TokenProgram = domain.MustParseAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu       sync.Mutex
	accounts map[domain.Address]*solana.AccountInfo
	slot     int64
	calls    int
	batches  int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{accounts: make(map[domain.Address]*solana.AccountInfo)}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// PutMint stores an SPL mint account.
func (c *RPCClient) PutMint(d *assetledger.Denomination) {
	c.put(d.Address, solana.EncodeMint(d))
}

// PutTokenAccount stores an SPL token account.
func (c *RPCClient) PutTokenAccount(a *assetledger.Account) {
	c.put(a.Address, solana.EncodeTokenAccount(a))
}

// SetSlot sets the slot returned by GetSlot.
func (c *RPCClient) SetSlot(slot int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = slot
}

// Batches returns the number of GetMultipleAccounts calls served.
func (c *RPCClient) Batches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

// Calls returns the number of GetAccountInfo calls served.
func (c *RPCClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *RPCClient) put(addr domain.Address, data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[addr] = &solana.AccountInfo{
		Address:  addr,
		Lamports: 2039280,
		Owner:    TokenProgram,
		Data:     data,
	}
}

// GetAccountInfo returns the stored account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, addr domain.Address) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.lookup(addr), nil
}

// GetMultipleAccounts returns the stored accounts at the configured slot.
func (c *RPCClient) GetMultipleAccounts(_ context.Context, addrs []domain.Address) (*solana.AccountBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	batch := &solana.AccountBatch{Slot: c.slot, Accounts: make([]*solana.AccountInfo, len(addrs))}
	for i, a := range addrs {
		batch.Accounts[i] = c.lookup(a)
	}
	return batch, nil
}

func (c *RPCClient) lookup(addr domain.Address) *solana.AccountInfo {
	info, ok := c.accounts[addr]
	if !ok {
		return nil
	}
	cp := *info
	return &cp
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, nil
}
