package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
)

// SPL Token account layouts.
const (
	MintSize         = 82
	TokenAccountSize = 165

	mintAuthorityOffset = 4 // after the COption tag
	mintSupplyOffset    = 36
	mintDecimalsOffset  = 44
	mintInitOffset      = 45

	accountMintOffset   = 0
	accountOwnerOffset  = 32
	accountAmountOffset = 64
	accountStateOffset  = 108
)

// ErrInvalidAccountData is returned when account data does not match the
// expected SPL Token layout.
var ErrInvalidAccountData = errors.New("invalid token account data")

// DecodeMint parses base64 SPL Mint data. A mint without an authority
// yields a zero Authority.
func DecodeMint(address domain.Address, data string) (*assetledger.Denomination, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	if len(raw) != MintSize {
		return nil, fmt.Errorf("%w: mint size %d", ErrInvalidAccountData, len(raw))
	}
	if raw[mintInitOffset] != 1 {
		return nil, fmt.Errorf("%w: mint not initialized", ErrInvalidAccountData)
	}

	d := &assetledger.Denomination{
		Address:  address,
		Supply:   binary.LittleEndian.Uint64(raw[mintSupplyOffset:]),
		Decimals: raw[mintDecimalsOffset],
	}
	if binary.LittleEndian.Uint32(raw) == 1 {
		copy(d.Authority[:], raw[mintAuthorityOffset:mintAuthorityOffset+domain.AddressSize])
	}
	return d, nil
}

// DecodeTokenAccount parses base64 SPL Token account data.
func DecodeTokenAccount(address domain.Address, data string) (*assetledger.Account, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	if len(raw) != TokenAccountSize {
		return nil, fmt.Errorf("%w: account size %d", ErrInvalidAccountData, len(raw))
	}
	if raw[accountStateOffset] == 0 {
		return nil, fmt.Errorf("%w: account not initialized", ErrInvalidAccountData)
	}

	a := &assetledger.Account{
		Address: address,
		Amount:  binary.LittleEndian.Uint64(raw[accountAmountOffset:]),
	}
	copy(a.Mint[:], raw[accountMintOffset:accountMintOffset+domain.AddressSize])
	copy(a.Owner[:], raw[accountOwnerOffset:accountOwnerOffset+domain.AddressSize])
	return a, nil
}

// EncodeMint is the inverse of DecodeMint. Used to build fixtures.
func EncodeMint(d *assetledger.Denomination) string {
	raw := make([]byte, MintSize)
	if !d.Authority.IsZero() {
		binary.LittleEndian.PutUint32(raw, 1)
		copy(raw[mintAuthorityOffset:], d.Authority[:])
	}
	binary.LittleEndian.PutUint64(raw[mintSupplyOffset:], d.Supply)
	raw[mintDecimalsOffset] = d.Decimals
	raw[mintInitOffset] = 1
	return base64.StdEncoding.EncodeToString(raw)
}

// EncodeTokenAccount is the inverse of DecodeTokenAccount. Used to build fixtures.
func EncodeTokenAccount(a *assetledger.Account) string {
	raw := make([]byte, TokenAccountSize)
	copy(raw[accountMintOffset:], a.Mint[:])
	copy(raw[accountOwnerOffset:], a.Owner[:])
	binary.LittleEndian.PutUint64(raw[accountAmountOffset:], a.Amount)
	raw[accountStateOffset] = 1 // initialized
	return base64.StdEncoding.EncodeToString(raw)
}
