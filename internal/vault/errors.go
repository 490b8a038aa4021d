package vault

import (
	"errors"

	"share-vault/internal/registry"
)

// Vault transition errors. Every rejected transition returns one of these
// (possibly wrapped) and leaves no state change behind.
var (
	// ErrAlreadyInitialized is returned when a vault already exists for the ticker.
	ErrAlreadyInitialized = errors.New("vault already initialized")

	// ErrNotFound is returned when no vault exists for the ticker.
	ErrNotFound = errors.New("vault not found")

	// ErrZeroAmount is returned for a deposit or allocation of zero units.
	ErrZeroAmount = errors.New("amount must be greater than zero")

	// ErrInsufficientBalance is returned when the depositor holds less than the amount.
	ErrInsufficientBalance = errors.New("insufficient depositor balance")

	// ErrInsufficientCustodyBalance is returned when custody holds less than the allocation.
	ErrInsufficientCustodyBalance = errors.New("insufficient custody balance")

	// ErrReferenceMismatch is returned when a supplied asset or account does not match the vault.
	ErrReferenceMismatch = errors.New("reference mismatch")

	// ErrUnauthorized is returned when the caller is not the vault admin.
	ErrUnauthorized = errors.New("caller is not the vault admin")

	// ErrArithmeticOverflow is returned when a share or total computation exceeds uint64.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInconsistentLedgerState is returned when shares exist against a zero ledger value.
	ErrInconsistentLedgerState = errors.New("shares outstanding with zero total base assets")

	// ErrDepositPaused is returned when deposits are paused.
	ErrDepositPaused = errors.New("deposits are paused")

	// ErrAllocatePaused is returned when allocations are paused.
	ErrAllocatePaused = errors.New("allocations are paused")

	// ErrProgramAddress is returned when a program address is used as a
	// signing authority or as a new asset mint.
	ErrProgramAddress = errors.New("program address not allowed")
)

// Reason returns a short label for err, used in metrics and API responses.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientCustodyBalance):
		return "insufficient_custody_balance"
	case errors.Is(err, ErrReferenceMismatch):
		return "reference_mismatch"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrInconsistentLedgerState):
		return "inconsistent_ledger_state"
	case errors.Is(err, ErrDepositPaused):
		return "deposit_paused"
	case errors.Is(err, ErrAllocatePaused):
		return "allocate_paused"
	case errors.Is(err, ErrProgramAddress):
		return "program_address"
	case errors.Is(err, registry.ErrInvalidTicker):
		return "invalid_ticker"
	default:
		return "internal"
	}
}
