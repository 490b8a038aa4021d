// Command derive prints the addresses of a vault without touching storage.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"share-vault/internal/domain"
	"share-vault/internal/registry"
)

func main() {
	programID := flag.String("program-id", registry.DefaultProgramID.String(), "Vault program ID")
	ticker := flag.String("ticker", "", "Vault ticker (default vault when empty)")
	baseAsset := flag.String("base-asset", "", "Base asset mint; required for the custody account")
	owner := flag.String("owner", "", "Also print this owner's base and shares accounts")
	asJSON := flag.Bool("json", false, "Print JSON instead of text")
	flag.Parse()

	if err := run(*programID, *ticker, *baseAsset, *owner, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type output struct {
	Program        domain.Address  `json:"program"`
	Ticker         domain.Ticker   `json:"ticker"`
	Vault          domain.Address  `json:"vault"`
	Authority      domain.Address  `json:"authority"`
	SharesMint     domain.Address  `json:"shares_mint"`
	CustodyAccount *domain.Address `json:"custody_account,omitempty"`
	OwnerBase      *domain.Address `json:"owner_base_account,omitempty"`
	OwnerShares    *domain.Address `json:"owner_shares_account,omitempty"`
}

func run(programID, tickerLabel, baseAsset, owner string, asJSON bool) error {
	program, err := domain.ParseAddress(programID)
	if err != nil {
		return fmt.Errorf("--program-id: %w", err)
	}
	ticker, err := registry.ParseTicker(tickerLabel)
	if err != nil {
		return err
	}

	reg := registry.New(program)
	out := output{Program: program, Ticker: ticker}
	if out.Vault, err = reg.VaultAddress(ticker); err != nil {
		return err
	}
	if out.Authority, err = reg.VaultAuthority(out.Vault); err != nil {
		return err
	}
	if out.SharesMint, err = reg.SharesAddress(out.Vault); err != nil {
		return err
	}

	var base domain.Address
	if baseAsset != "" {
		if base, err = domain.ParseAddress(baseAsset); err != nil {
			return fmt.Errorf("--base-asset: %w", err)
		}
		addrs, err := reg.Resolve(ticker, base)
		if err != nil {
			return err
		}
		out.CustodyAccount = &addrs.CustodyAccount
	}

	if owner != "" {
		o, err := domain.ParseAddress(owner)
		if err != nil {
			return fmt.Errorf("--owner: %w", err)
		}
		shares, err := registry.AssociatedAccount(o, out.SharesMint)
		if err != nil {
			return err
		}
		out.OwnerShares = &shares
		if baseAsset != "" {
			acct, err := registry.AssociatedAccount(o, base)
			if err != nil {
				return err
			}
			out.OwnerBase = &acct
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("program:          %s\n", out.Program)
	fmt.Printf("ticker:           %s\n", out.Ticker)
	fmt.Printf("vault:            %s\n", out.Vault)
	fmt.Printf("authority:        %s\n", out.Authority)
	fmt.Printf("shares mint:      %s\n", out.SharesMint)
	if out.CustodyAccount != nil {
		fmt.Printf("custody account:  %s\n", *out.CustodyAccount)
	}
	if out.OwnerBase != nil {
		fmt.Printf("owner base:       %s\n", *out.OwnerBase)
	}
	if out.OwnerShares != nil {
		fmt.Printf("owner shares:     %s\n", *out.OwnerShares)
	}
	return nil
}
