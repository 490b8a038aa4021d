// Package verification replays a vault's event log and checks that it
// reproduces the stored vault record and the outstanding shares supply.
package verification

import (
	"context"
	"fmt"

	"share-vault/internal/domain"
	"share-vault/internal/idhash"
	"share-vault/internal/reconcile"
	"share-vault/internal/vault"
)

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string
	Sequence int64       // event sequence, -1 for the final state
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

func (d FieldDivergence) String() string {
	if d.Sequence < 0 {
		return fmt.Sprintf("%s: stored %v, replayed %v", d.Field, d.Expected, d.Actual)
	}
	return fmt.Sprintf("event %d %s: stored %v, replayed %v", d.Sequence, d.Field, d.Expected, d.Actual)
}

// VerificationResult contains the result of verifying a single vault.
type VerificationResult struct {
	Ticker         domain.Ticker
	Vault          domain.Address
	EventsReplayed int
	Match          bool
	Divergences    []FieldDivergence

	// Replayed state after the last event.
	TotalBaseAssets uint64
	SharesMinted    uint64
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalVaults     int
	MatchedVaults   int
	DivergentVaults int
	Results         []VerificationResult
}

// Source provides the stored state of vaults.
type Source interface {
	List(ctx context.Context) ([]*domain.VaultRecord, error)
	Get(ctx context.Context, ticker domain.Ticker) (*domain.VaultRecord, error)
	Events(ctx context.Context, ticker domain.Ticker) ([]*domain.VaultEvent, error)
	Report(ctx context.Context, ticker domain.Ticker) (*reconcile.Report, error)
}

// Verifier replays vault event logs.
type Verifier struct {
	source Source
}

// NewVerifier creates a new Verifier.
func NewVerifier(source Source) *Verifier {
	return &Verifier{source: source}
}

// VerifyVault replays the event log of one vault.
func (v *Verifier) VerifyVault(ctx context.Context, ticker domain.Ticker) (*VerificationResult, error) {
	rec, err := v.source.Get(ctx, ticker)
	if err != nil {
		return nil, err
	}
	events, err := v.source.Events(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	report, err := v.source.Report(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return Replay(rec, events, report.SharesSupply), nil
}

// VerifyAll verifies every vault.
func (v *Verifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	vaults, err := v.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}

	report := &VerificationReport{}
	for _, rec := range vaults {
		result, err := v.VerifyVault(ctx, rec.Ticker)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", rec.Ticker, err)
		}
		report.TotalVaults++
		if result.Match {
			report.MatchedVaults++
		} else {
			report.DivergentVaults++
		}
		report.Results = append(report.Results, *result)
	}
	return report, nil
}

// Replay folds events into vault state and compares every step with what
// was recorded, then the final state with rec and sharesSupply.
func Replay(rec *domain.VaultRecord, events []*domain.VaultEvent, sharesSupply uint64) *VerificationResult {
	result := &VerificationResult{
		Ticker:         rec.Ticker,
		Vault:          rec.Address,
		EventsReplayed: len(events),
	}
	diverge := func(field string, seq int64, expected, actual interface{}) {
		result.Divergences = append(result.Divergences, FieldDivergence{
			Field: field, Sequence: seq, Expected: expected, Actual: actual,
		})
	}

	var (
		total, shares                 uint64
		depositPaused, allocatePaused bool
	)
	for i, e := range events {
		seq := int64(i)
		if e.Sequence != uint64(i) {
			diverge("Sequence", seq, e.Sequence, uint64(i))
		}
		if e.Vault != rec.Address {
			diverge("Vault", seq, e.Vault, rec.Address)
		}
		if want := idhash.ComputeEventID(rec.Address, e.Type, e.Sequence); e.EventID != want {
			diverge("EventID", seq, e.EventID, want)
		}
		if (i == 0) != (e.Type == domain.EventInitialize) {
			diverge("Type", seq, e.Type, "INITIALIZE only at sequence 0")
		}

		switch e.Type {
		case domain.EventDeposit:
			minted, err := vault.ConvertToShares(e.BaseAmount, total, shares)
			if err != nil {
				diverge("SharesAmount", seq, e.SharesAmount, err.Error())
				break
			}
			if minted != e.SharesAmount {
				diverge("SharesAmount", seq, e.SharesAmount, minted)
			}
			total += e.BaseAmount
			shares += e.SharesAmount
		case domain.EventPause:
			depositPaused, allocatePaused = e.DepositPaused, e.AllocatePaused
		}

		if e.TotalBaseAssets != total {
			diverge("TotalBaseAssets", seq, e.TotalBaseAssets, total)
		}
		if e.DepositPaused != depositPaused || e.AllocatePaused != allocatePaused {
			diverge("Paused", seq, [2]bool{e.DepositPaused, e.AllocatePaused}, [2]bool{depositPaused, allocatePaused})
		}
	}

	if len(events) == 0 {
		diverge("Events", -1, "INITIALIZE", "none")
	}
	if rec.TotalBaseAssets != total {
		diverge("TotalBaseAssets", -1, rec.TotalBaseAssets, total)
	}
	if sharesSupply != shares {
		diverge("SharesSupply", -1, sharesSupply, shares)
	}
	if rec.DepositPaused != depositPaused || rec.AllocatePaused != allocatePaused {
		diverge("Paused", -1, [2]bool{rec.DepositPaused, rec.AllocatePaused}, [2]bool{depositPaused, allocatePaused})
	}

	result.TotalBaseAssets = total
	result.SharesMinted = shares
	result.Match = len(result.Divergences) == 0
	return result
}
