// Package api exposes the vault service over HTTP.
//
// The caller's signing key is taken from the X-Signer header (base58).
// Signature verification happens upstream of this service.
package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"share-vault/internal/domain"
	"share-vault/internal/observability"
	"share-vault/internal/vault"
)

// FlowReader serves aggregated vault flows.
type FlowReader interface {
	DailyFlows(ctx context.Context, vault domain.Address, startMs, endMs int64) ([]*domain.DailyFlow, error)
}

// Options contains configuration for the router.
type Options struct {
	Service *vault.Service
	Flows   FlowReader // optional; /flows returns 404 when nil

	// LocalAssets enables the /api/assets routes that mint base assets
	// directly in the backend ledger.
	LocalAssets bool

	Logger *log.Logger
}

// Handler serves the vault API.
type Handler struct {
	svc    *vault.Service
	flows  FlowReader
	logger *log.Logger
}

// NewRouter builds the chi router for the vault API.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Handler{svc: opts.Service, flows: opts.Flows, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(recordRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/vaults", h.ListVaults)
		r.With(requireSigner).Post("/vaults", h.Initialize)

		r.Route("/vaults/{ticker}", func(r chi.Router) {
			r.Get("/", h.GetVault)
			r.Get("/report", h.Report)
			r.Get("/events", h.Events)
			r.Get("/flows", h.Flows)

			r.With(requireSigner).Post("/deposit", h.Deposit)
			r.With(requireSigner).Post("/allocate", h.Allocate)
			r.With(requireSigner).Post("/pause", h.SetPaused)
		})

		if opts.LocalAssets {
			r.With(requireSigner).Post("/assets", h.CreateAsset)
			r.With(requireSigner).Post("/assets/{mint}/mint", h.MintAsset)
			r.Get("/assets/{mint}/balances/{owner}", h.AssetBalance)
		}
	})

	return r
}

// recordRequests counts responses by route pattern and status code.
func recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = r.Method + " " + p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RecordHTTPRequest(route, status)
	})
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
