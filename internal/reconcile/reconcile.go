// Package reconcile compares a vault's ledger value with the balances held by
// the asset ledger. It reports divergence and never corrects it.
package reconcile

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
)

// RatioPlaces is the number of decimal places kept in reported ratios.
const RatioPlaces = 9

// Outcome classifies a report.
type Outcome string

const (
	OutcomeCollateralized Outcome = "collateralized"
	OutcomeDeployed       Outcome = "deployed"
	OutcomeSupplyMismatch Outcome = "supply_mismatch"
)

// Report is a point-in-time view of one vault.
type Report struct {
	Vault           domain.Address
	Ticker          domain.Ticker
	TotalBaseAssets uint64
	SharesSupply    uint64
	CustodyBalance  uint64

	// Deployed is TotalBaseAssets minus CustodyBalance, floored at zero.
	Deployed uint64

	// PricePerShare is TotalBaseAssets / SharesSupply, or 1 with no supply.
	PricePerShare decimal.Decimal

	// Collateralization is CustodyBalance / TotalBaseAssets, or 1 when empty.
	Collateralization decimal.Decimal

	// SupplyMatchesLedger holds while shares are priced 1:1 against the ledger value.
	SupplyMatchesLedger bool
}

// Outcome classifies the report. A supply mismatch takes precedence.
func (r *Report) Outcome() Outcome {
	switch {
	case !r.SupplyMatchesLedger:
		return OutcomeSupplyMismatch
	case r.Deployed > 0:
		return OutcomeDeployed
	default:
		return OutcomeCollateralized
	}
}

// Snapshotter is implemented by readers that can return a mint supply and an
// account balance observed at the same point.
type Snapshotter interface {
	Snapshot(ctx context.Context, mint, account domain.Address) (supply, balance uint64, err error)
}

// Check builds a report for v from reader. Readers implementing Snapshotter
// are read in one call.
func Check(ctx context.Context, v *domain.VaultRecord, reader assetledger.Reader) (*Report, error) {
	if s, ok := reader.(Snapshotter); ok {
		supply, custody, err := s.Snapshot(ctx, v.SharesMint, v.CustodyAccount)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		return build(v, supply, custody), nil
	}

	supply, err := reader.Supply(ctx, v.SharesMint)
	if err != nil {
		return nil, fmt.Errorf("read shares supply: %w", err)
	}
	custody, err := reader.Balance(ctx, v.CustodyAccount)
	if err != nil {
		return nil, fmt.Errorf("read custody balance: %w", err)
	}
	return build(v, supply, custody), nil
}

func build(v *domain.VaultRecord, supply, custody uint64) *Report {
	r := &Report{
		Vault:               v.Address,
		Ticker:              v.Ticker,
		TotalBaseAssets:     v.TotalBaseAssets,
		SharesSupply:        supply,
		CustodyBalance:      custody,
		SupplyMatchesLedger: supply == v.TotalBaseAssets,
		PricePerShare:       decimal.NewFromInt(1),
		Collateralization:   decimal.NewFromInt(1),
	}
	if v.TotalBaseAssets > custody {
		r.Deployed = v.TotalBaseAssets - custody
	}

	total := fromUint64(v.TotalBaseAssets)
	if supply > 0 {
		r.PricePerShare = total.DivRound(fromUint64(supply), RatioPlaces)
	}
	if v.TotalBaseAssets > 0 {
		r.Collateralization = fromUint64(custody).DivRound(total, RatioPlaces)
	}
	return r
}

// fromUint64 converts without the int64 truncation of decimal.NewFromInt.
func fromUint64(x uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
}
