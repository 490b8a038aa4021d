package domain

// EventType identifies a vault state transition.
type EventType string

const (
	EventInitialize EventType = "INITIALIZE"
	EventDeposit    EventType = "DEPOSIT"
	EventAllocate   EventType = "ALLOCATE"
	EventPause      EventType = "PAUSE"
)

// String returns the string representation of EventType.
func (e EventType) String() string {
	return string(e)
}

// IsValid checks if the event type is a known value.
func (e EventType) IsValid() bool {
	switch e {
	case EventInitialize, EventDeposit, EventAllocate, EventPause:
		return true
	}
	return false
}

// VaultEvent is an append-only record of one committed transition.
// Sequence is per vault and starts at 0 with the INITIALIZE event.
type VaultEvent struct {
	EventID  string
	Vault    Address
	Sequence uint64
	Type     EventType

	Actor        Address // signer of the transition
	Counterparty Address // shares mint (INITIALIZE), destination (ALLOCATE), zero otherwise

	BaseAmount      uint64 // deposited or allocated base units
	SharesAmount    uint64 // shares minted (DEPOSIT)
	TotalBaseAssets uint64 // ledger value after the transition

	DepositPaused  bool
	AllocatePaused bool

	TimestampMs int64
}
