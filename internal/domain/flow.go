package domain

import "time"

// DailyFlow aggregates one vault's deposits and allocations for a UTC day.
type DailyFlow struct {
	Vault         Address
	Day           time.Time
	Deposited     uint64
	Allocated     uint64
	SharesMinted  uint64
	DepositCount  uint64
	AllocateCount uint64
}
