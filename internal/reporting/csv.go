package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders one line per vault.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("ticker,vault,outcome,total_base_assets,shares_supply,custody_balance,deployed,")
	sb.WriteString("price_per_share,collateralization,deposit_paused,allocate_paused,source\n")

	// Rows
	for i := range r.Rows {
		row := &r.Rows[i]
		rep := row.effective()
		source := "local"
		if row.OnChain != nil {
			source = "chain"
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%d,%d,%d,%d,%s,%s,%t,%t,%s\n",
			row.Ticker,
			row.Vault,
			row.Outcome(),
			rep.TotalBaseAssets,
			rep.SharesSupply,
			rep.CustodyBalance,
			rep.Deployed,
			rep.PricePerShare,
			rep.Collateralization,
			row.DepositPaused,
			row.AllocatePaused,
			source,
		))
	}

	return sb.String()
}
