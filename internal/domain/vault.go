package domain

// VaultRecord is the persisted state of one vault, keyed by its derived address.
//
// TotalBaseAssets is a ledger value: it grows with every deposit and is never
// reduced by allocation, so it can exceed the live custody balance.
type VaultRecord struct {
	Address        Address // derived from (program, ticker)
	Ticker         Ticker
	Admin          Address // set once at initialize
	Authority      Address // vault signing authority, derived from Address
	BaseAsset      Address // mint accepted for deposits
	SharesMint     Address // derived from Authority
	CustodyAccount Address // vault-owned base-asset account
	Decimals       uint8   // shared by base asset and shares mint

	TotalBaseAssets uint64
	DepositPaused   bool
	AllocatePaused  bool

	CreatedAt int64 // Unix ms
	UpdatedAt int64 // Unix ms
}

// Clone returns a copy that shares no state with v.
func (v *VaultRecord) Clone() *VaultRecord {
	c := *v
	return &c
}
