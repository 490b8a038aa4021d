package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"share-vault/internal/assetledger"
	"share-vault/internal/domain"
	"share-vault/internal/registry"
	"share-vault/internal/vault"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// errBadRequest marks malformed input that never reached the service.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrInvalidAddress),
		errors.Is(err, registry.ErrInvalidTicker),
		errors.Is(err, vault.ErrZeroAmount):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrUnauthorized),
		errors.Is(err, vault.ErrProgramAddress),
		errors.Is(err, assetledger.ErrMintAuthority),
		errors.Is(err, assetledger.ErrOwnerMismatch):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrAlreadyInitialized),
		errors.Is(err, assetledger.ErrAssetExists),
		errors.Is(err, assetledger.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInsufficientBalance),
		errors.Is(err, vault.ErrInsufficientCustodyBalance),
		errors.Is(err, vault.ErrReferenceMismatch),
		errors.Is(err, vault.ErrDepositPaused),
		errors.Is(err, vault.ErrAllocatePaused),
		errors.Is(err, vault.ErrArithmeticOverflow),
		errors.Is(err, vault.ErrInconsistentLedgerState),
		errors.Is(err, assetledger.ErrUnknownAsset),
		errors.Is(err, assetledger.ErrUnknownAccount),
		errors.Is(err, assetledger.ErrMintMismatch),
		errors.Is(err, assetledger.ErrInsufficientFunds),
		errors.Is(err, assetledger.ErrOverflow):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	reason := vault.Reason(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		msg = "internal error"
	} else if reason == "internal" {
		reason = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	writeJSON(w, status, errorResponse{Error: msg, Reason: reason})
}
