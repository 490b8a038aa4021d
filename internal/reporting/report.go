package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"share-vault/internal/domain"
	"share-vault/internal/reconcile"
)

// Report is a reconciliation snapshot of every vault.
type Report struct {
	GeneratedAt time.Time
	Summary     Summary
	Rows        []Row
}

// Summary aggregates rows. Sums are decimals so they cannot overflow.
type Summary struct {
	Vaults          int
	Collateralized  int
	Deployed        int
	SupplyMismatch  int
	OnChainFailures int

	TotalBaseAssets decimal.Decimal
	CustodyBalance  decimal.Decimal
	DeployedAssets  decimal.Decimal
}

// Row is one vault.
type Row struct {
	Ticker domain.Ticker
	Vault  domain.Address
	Admin  domain.Address

	DepositPaused  bool
	AllocatePaused bool

	// Local is reconciled against the backend ledger.
	Local *reconcile.Report

	// OnChain is reconciled against live token accounts. Nil when no chain
	// reader is configured or the read failed (see OnChainError).
	OnChain      *reconcile.Report
	OnChainError string
}

// Outcome returns the on-chain outcome when available, else the local one.
func (r *Row) Outcome() reconcile.Outcome {
	if r.OnChain != nil {
		return r.OnChain.Outcome()
	}
	return r.Local.Outcome()
}

// effective returns the report that drives Outcome.
func (r *Row) effective() *reconcile.Report {
	if r.OnChain != nil {
		return r.OnChain
	}
	return r.Local
}
