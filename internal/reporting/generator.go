package reporting

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/reconcile"
)

// Source lists vaults and reconciles them against the backend ledger.
type Source interface {
	List(ctx context.Context) ([]*domain.VaultRecord, error)
	Report(ctx context.Context, ticker domain.Ticker) (*reconcile.Report, error)
}

// Generator produces reconciliation reports.
type Generator struct {
	source  Source
	onChain assetledger.Reader
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(source Source) *Generator {
	return &Generator{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithOnChain also reconciles every vault against reader.
func (g *Generator) WithOnChain(reader assetledger.Reader) *Generator {
	g.onChain = reader
	return g
}

// Generate produces a report covering tickers, or every vault when empty.
func (g *Generator) Generate(ctx context.Context, tickers ...domain.Ticker) (*Report, error) {
	vaults, err := g.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	vaults = filter(vaults, tickers)

	rows := make([]Row, 0, len(vaults))
	for _, v := range vaults {
		row, err := g.row(ctx, v)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	// Sort by ticker for deterministic output
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Ticker.String() < rows[j].Ticker.String()
	})

	return &Report{
		GeneratedAt: g.now(),
		Summary:     summarize(rows),
		Rows:        rows,
	}, nil
}

func (g *Generator) row(ctx context.Context, v *domain.VaultRecord) (Row, error) {
	local, err := g.source.Report(ctx, v.Ticker)
	if err != nil {
		return Row{}, fmt.Errorf("reconcile %s: %w", v.Ticker, err)
	}
	row := Row{
		Ticker:         v.Ticker,
		Vault:          v.Address,
		Admin:          v.Admin,
		DepositPaused:  v.DepositPaused,
		AllocatePaused: v.AllocatePaused,
		Local:          local,
	}
	if g.onChain != nil {
		onChain, err := reconcile.Check(ctx, v, g.onChain)
		if err != nil {
			row.OnChainError = err.Error()
		} else {
			row.OnChain = onChain
		}
	}
	return row, nil
}

func filter(vaults []*domain.VaultRecord, tickers []domain.Ticker) []*domain.VaultRecord {
	if len(tickers) == 0 {
		return vaults
	}
	want := make(map[domain.Ticker]bool, len(tickers))
	for _, t := range tickers {
		want[t] = true
	}
	var out []*domain.VaultRecord
	for _, v := range vaults {
		if want[v.Ticker] {
			out = append(out, v)
		}
	}
	return out
}

func summarize(rows []Row) Summary {
	s := Summary{
		Vaults:          len(rows),
		TotalBaseAssets: decimal.Zero,
		CustodyBalance:  decimal.Zero,
		DeployedAssets:  decimal.Zero,
	}
	for i := range rows {
		row := &rows[i]
		if row.OnChainError != "" {
			s.OnChainFailures++
		}
		switch row.Outcome() {
		case reconcile.OutcomeCollateralized:
			s.Collateralized++
		case reconcile.OutcomeDeployed:
			s.Deployed++
		case reconcile.OutcomeSupplyMismatch:
			s.SupplyMismatch++
		}

		r := row.effective()
		s.TotalBaseAssets = s.TotalBaseAssets.Add(units(r.TotalBaseAssets))
		s.CustodyBalance = s.CustodyBalance.Add(units(r.CustodyBalance))
		s.DeployedAssets = s.DeployedAssets.Add(units(r.Deployed))
	}
	return s
}

func units(x uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0)
}
