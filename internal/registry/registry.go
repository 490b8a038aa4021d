// Package registry derives deterministic vault addresses.
//
// Addresses follow the program-derived-address scheme: SHA256 over the seeds,
// a bump byte, the program id and a fixed marker, taking the first bump (from
// 255 down) whose hash is not a valid ed25519 point. Such an address has no
// private key, so only the owning program can authorize on its behalf.
package registry

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"share-vault/internal/domain"
)

// Seed prefixes.
const (
	VaultSeed          = "vault"
	VaultAuthoritySeed = "vault_authority"
	SharesMintSeed     = "shares_mint"
)

const (
	pdaMarker   = "ProgramDerivedAddress"
	maxSeeds    = 16
	maxSeedSize = 32
)

// Well-known program ids.
var (
	// DefaultProgramID is the id the vault program was deployed under.
	DefaultProgramID = domain.MustParseAddress("8wjJau9UuUBHBWiafvh2svxp4rCqkDpcUa1j13EdYh5C")

	TokenProgramID           = domain.MustParseAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = domain.MustParseAddress("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

var (
	// ErrInvalidSeeds is returned when seeds exceed count or length limits.
	ErrInvalidSeeds = errors.New("invalid seeds")

	// ErrNoViableBump is returned when every bump yields an on-curve point.
	ErrNoViableBump = errors.New("unable to find a viable bump seed")
)

// Registry derives addresses under a single program id. It holds no state
// beyond the program id and is safe for concurrent use.
type Registry struct {
	programID domain.Address
}

// New creates a Registry for programID.
func New(programID domain.Address) *Registry {
	return &Registry{programID: programID}
}

// ProgramID returns the program id addresses are derived under.
func (r *Registry) ProgramID() domain.Address {
	return r.programID
}

// VaultAddress derives the vault record address for ticker.
func (r *Registry) VaultAddress(ticker domain.Ticker) (domain.Address, error) {
	if err := ValidateTicker(ticker); err != nil {
		return domain.Address{}, err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte(VaultSeed), ticker[:]}, r.programID)
	return addr, err
}

// VaultAuthority derives the signing authority that owns a vault's custody
// account and mints its shares.
func (r *Registry) VaultAuthority(vault domain.Address) (domain.Address, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte(VaultAuthoritySeed), vault[:]}, r.programID)
	return addr, err
}

// SharesAddress derives the shares mint of a vault. It depends on the vault
// address alone, so each vault has exactly one shares denomination.
func (r *Registry) SharesAddress(vault domain.Address) (domain.Address, error) {
	authority, err := r.VaultAuthority(vault)
	if err != nil {
		return domain.Address{}, err
	}
	addr, _, err := FindProgramAddress([][]byte{[]byte(SharesMintSeed), authority[:]}, r.programID)
	return addr, err
}

// Addresses bundles every address owned by one vault.
type Addresses struct {
	Vault          domain.Address
	Authority      domain.Address
	SharesMint     domain.Address
	CustodyAccount domain.Address
}

// Resolve derives all addresses for ticker. The custody account is the
// authority's associated account for baseAsset.
func (r *Registry) Resolve(ticker domain.Ticker, baseAsset domain.Address) (*Addresses, error) {
	vault, err := r.VaultAddress(ticker)
	if err != nil {
		return nil, err
	}
	authority, err := r.VaultAuthority(vault)
	if err != nil {
		return nil, fmt.Errorf("derive vault authority: %w", err)
	}
	shares, _, err := FindProgramAddress([][]byte{[]byte(SharesMintSeed), authority[:]}, r.programID)
	if err != nil {
		return nil, fmt.Errorf("derive shares mint: %w", err)
	}
	custody, err := AssociatedAccount(authority, baseAsset)
	if err != nil {
		return nil, fmt.Errorf("derive custody account: %w", err)
	}
	return &Addresses{
		Vault:          vault,
		Authority:      authority,
		SharesMint:     shares,
		CustodyAccount: custody,
	}, nil
}

// AssociatedAccount derives the canonical token account of owner for mint.
func AssociatedAccount(owner, mint domain.Address) (domain.Address, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{owner[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	return addr, err
}

// FindProgramAddress returns the first off-curve address for seeds under
// programID together with the bump that produced it.
func FindProgramAddress(seeds [][]byte, programID domain.Address) (domain.Address, uint8, error) {
	if len(seeds) > maxSeeds-1 {
		return domain.Address{}, 0, fmt.Errorf("%w: %d seeds", ErrInvalidSeeds, len(seeds))
	}
	for i, seed := range seeds {
		if len(seed) > maxSeedSize {
			return domain.Address{}, 0, fmt.Errorf("%w: seed %d is %d bytes", ErrInvalidSeeds, i, len(seed))
		}
	}

	for bump := byte(255); bump > 0; bump-- {
		addr, ok := createProgramAddress(seeds, bump, programID)
		if ok {
			return addr, bump, nil
		}
	}
	return domain.Address{}, 0, ErrNoViableBump
}

// createProgramAddress hashes seeds|bump|programID|marker and reports whether
// the result is off the ed25519 curve.
func createProgramAddress(seeds [][]byte, bump uint8, programID domain.Address) (domain.Address, bool) {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var addr domain.Address
	copy(addr[:], h.Sum(nil))
	if isOnCurve(addr[:]) {
		return domain.Address{}, false
	}
	return addr, true
}

// IsProgramAddress reports whether a is off the ed25519 curve. Nothing holds
// a private key for such an address; only a program can sign for it.
func IsProgramAddress(a domain.Address) bool {
	return !isOnCurve(a[:])
}

func isOnCurve(point []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
