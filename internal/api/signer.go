package api

import (
	"context"
	"net/http"

	"share-vault/internal/domain"
	"share-vault/internal/registry"
)

// SignerHeader carries the base58 address of the transaction signer.
const SignerHeader = "X-Signer"

type contextKey string

const signerKey contextKey = "signer"

// requireSigner rejects requests without a valid X-Signer header. Program
// addresses have no key and cannot sign.
func requireSigner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(SignerHeader)
		if raw == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing " + SignerHeader + " header", Reason: "missing_signer"})
			return
		}
		signer, err := domain.ParseAddress(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Reason: "invalid_signer"})
			return
		}
		if registry.IsProgramAddress(signer) {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "signer " + raw + " is a program address", Reason: "program_signer"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), signerKey, signer)))
	})
}

// signerFrom returns the signer stored by requireSigner.
func signerFrom(ctx context.Context) (domain.Address, bool) {
	signer, ok := ctx.Value(signerKey).(domain.Address)
	return signer, ok
}
