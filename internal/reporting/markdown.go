package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Vault Reconciliation Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Vaults | %d |\n", r.Summary.Vaults))
	sb.WriteString(fmt.Sprintf("| Collateralized | %d |\n", r.Summary.Collateralized))
	sb.WriteString(fmt.Sprintf("| Deployed | %d |\n", r.Summary.Deployed))
	sb.WriteString(fmt.Sprintf("| Supply Mismatch | %d |\n", r.Summary.SupplyMismatch))
	sb.WriteString(fmt.Sprintf("| Total Base Assets | %s |\n", r.Summary.TotalBaseAssets))
	sb.WriteString(fmt.Sprintf("| Custody Balance | %s |\n", r.Summary.CustodyBalance))
	sb.WriteString(fmt.Sprintf("| Deployed Assets | %s |\n", r.Summary.DeployedAssets))
	if r.Summary.OnChainFailures > 0 {
		sb.WriteString(fmt.Sprintf("| On-chain Read Failures | %d |\n", r.Summary.OnChainFailures))
	}
	sb.WriteString("\n")

	// Vaults
	sb.WriteString("## Vaults\n\n")
	if len(r.Rows) == 0 {
		sb.WriteString("No vaults.\n")
		return sb.String()
	}
	sb.WriteString("| Ticker | Vault | Outcome | Total | Supply | Custody | Deployed | Price/Share | Collateralization | Paused |\n")
	sb.WriteString("|--------|-------|---------|-------|--------|---------|----------|-------------|-------------------|--------|\n")
	for i := range r.Rows {
		row := &r.Rows[i]
		rep := row.effective()
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %d | %d | %s | %s | %s |\n",
			row.Ticker, row.Vault, row.Outcome(),
			rep.TotalBaseAssets, rep.SharesSupply, rep.CustodyBalance, rep.Deployed,
			rep.PricePerShare, rep.Collateralization, pausedLabel(row.DepositPaused, row.AllocatePaused)))
	}
	sb.WriteString("\n")

	// On-chain divergence
	var notes []string
	for i := range r.Rows {
		row := &r.Rows[i]
		switch {
		case row.OnChainError != "":
			notes = append(notes, fmt.Sprintf("- %s: on-chain read failed: %s", row.Ticker, row.OnChainError))
		case row.OnChain != nil && row.OnChain.CustodyBalance != row.Local.CustodyBalance:
			notes = append(notes, fmt.Sprintf("- %s: custody on-chain %d, local %d",
				row.Ticker, row.OnChain.CustodyBalance, row.Local.CustodyBalance))
		}
	}
	if len(notes) > 0 {
		sb.WriteString("## On-chain Divergence\n\n")
		sb.WriteString(strings.Join(notes, "\n"))
		sb.WriteString("\n")
	}

	return sb.String()
}

func pausedLabel(deposit, allocate bool) string {
	switch {
	case deposit && allocate:
		return "all"
	case deposit:
		return "deposit"
	case allocate:
		return "allocate"
	default:
		return "-"
	}
}
