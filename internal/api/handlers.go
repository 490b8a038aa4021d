package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"share-vault/internal/domain"
	"share-vault/internal/registry"
	"share-vault/internal/vault"
)

// VaultResponse is the JSON form of a vault record.
type VaultResponse struct {
	Address         domain.Address `json:"address"`
	Ticker          domain.Ticker  `json:"ticker"`
	Admin           domain.Address `json:"admin"`
	Authority       domain.Address `json:"authority"`
	BaseAsset       domain.Address `json:"base_asset"`
	SharesMint      domain.Address `json:"shares_mint"`
	CustodyAccount  domain.Address `json:"custody_account"`
	Decimals        uint8          `json:"decimals"`
	TotalBaseAssets uint64         `json:"total_base_assets"`
	DepositPaused   bool           `json:"deposit_paused"`
	AllocatePaused  bool           `json:"allocate_paused"`
	CreatedAt       int64          `json:"created_at"`
	UpdatedAt       int64          `json:"updated_at"`
}

func toVaultResponse(v *domain.VaultRecord) VaultResponse {
	return VaultResponse{
		Address:         v.Address,
		Ticker:          v.Ticker,
		Admin:           v.Admin,
		Authority:       v.Authority,
		BaseAsset:       v.BaseAsset,
		SharesMint:      v.SharesMint,
		CustodyAccount:  v.CustodyAccount,
		Decimals:        v.Decimals,
		TotalBaseAssets: v.TotalBaseAssets,
		DepositPaused:   v.DepositPaused,
		AllocatePaused:  v.AllocatePaused,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

// InitializeRequest is the body of POST /api/vaults.
type InitializeRequest struct {
	Ticker    string         `json:"ticker"` // empty selects the default vault
	BaseAsset domain.Address `json:"base_asset"`
}

// DepositRequest is the body of POST /api/vaults/{ticker}/deposit.
type DepositRequest struct {
	Amount     uint64         `json:"amount"`
	BaseAsset  domain.Address `json:"base_asset"`
	SharesMint domain.Address `json:"shares_mint"`
}

// DepositResponse reports a committed deposit.
type DepositResponse struct {
	SharesMinted    uint64         `json:"shares_minted"`
	SharesAccount   domain.Address `json:"shares_account"`
	TotalBaseAssets uint64         `json:"total_base_assets"`
	SharesSupply    uint64         `json:"shares_supply"`
}

// AllocateRequest is the body of POST /api/vaults/{ticker}/allocate.
type AllocateRequest struct {
	Amount      uint64         `json:"amount"`
	BaseAsset   domain.Address `json:"base_asset"`
	Destination domain.Address `json:"destination"`
}

// AllocateResponse reports a committed allocation.
type AllocateResponse struct {
	CustodyBalance  uint64 `json:"custody_balance"`
	TotalBaseAssets uint64 `json:"total_base_assets"`
}

// PauseRequest is the body of POST /api/vaults/{ticker}/pause.
type PauseRequest struct {
	DepositPaused  bool `json:"deposit_paused"`
	AllocatePaused bool `json:"allocate_paused"`
}

// ReportResponse is the JSON form of a reconciliation report.
type ReportResponse struct {
	Vault               domain.Address  `json:"vault"`
	Ticker              domain.Ticker   `json:"ticker"`
	Outcome             string          `json:"outcome"`
	TotalBaseAssets     uint64          `json:"total_base_assets"`
	SharesSupply        uint64          `json:"shares_supply"`
	CustodyBalance      uint64          `json:"custody_balance"`
	Deployed            uint64          `json:"deployed"`
	PricePerShare       decimal.Decimal `json:"price_per_share"`
	Collateralization   decimal.Decimal `json:"collateralization"`
	SupplyMatchesLedger bool            `json:"supply_matches_ledger"`
}

// EventResponse is the JSON form of a vault event.
type EventResponse struct {
	EventID         string           `json:"event_id"`
	Sequence        uint64           `json:"sequence"`
	Type            domain.EventType `json:"type"`
	Actor           domain.Address   `json:"actor"`
	Counterparty    *domain.Address  `json:"counterparty,omitempty"`
	BaseAmount      uint64           `json:"base_amount"`
	SharesAmount    uint64           `json:"shares_amount"`
	TotalBaseAssets uint64           `json:"total_base_assets"`
	DepositPaused   bool             `json:"deposit_paused"`
	AllocatePaused  bool             `json:"allocate_paused"`
	TimestampMs     int64            `json:"timestamp_ms"`
}

// FlowResponse is the JSON form of a daily flow aggregate.
type FlowResponse struct {
	Day           string `json:"day"`
	Deposited     uint64 `json:"deposited"`
	Allocated     uint64 `json:"allocated"`
	SharesMinted  uint64 `json:"shares_minted"`
	DepositCount  uint64 `json:"deposit_count"`
	AllocateCount uint64 `json:"allocate_count"`
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func tickerParam(r *http.Request) (domain.Ticker, error) {
	return registry.ParseTicker(chi.URLParam(r, "ticker"))
}

// signer returns the signer set by requireSigner. It is always present on
// routes mounted behind that middleware.
func signer(r *http.Request) domain.Address {
	s, _ := signerFrom(r.Context())
	return s
}

// Initialize handles POST /api/vaults.
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ticker, err := registry.ParseTicker(req.Ticker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.svc.Initialize(r.Context(), vault.InitializeRequest{
		Admin:     signer(r),
		BaseAsset: req.BaseAsset,
		Ticker:    ticker,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVaultResponse(rec))
}

// ListVaults handles GET /api/vaults.
func (h *Handler) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]VaultResponse, 0, len(vaults))
	for _, v := range vaults {
		resp = append(resp, toVaultResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetVault handles GET /api/vaults/{ticker}.
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	ticker, err := tickerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.svc.Get(r.Context(), ticker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVaultResponse(rec))
}

// Deposit handles POST /api/vaults/{ticker}/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	ticker, err := tickerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req DepositRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Deposit(r.Context(), vault.DepositRequest{
		Depositor:  signer(r),
		Ticker:     ticker,
		BaseAsset:  req.BaseAsset,
		SharesMint: req.SharesMint,
		Amount:     req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DepositResponse{
		SharesMinted:    res.SharesMinted,
		SharesAccount:   res.SharesAccount,
		TotalBaseAssets: res.TotalBaseAssets,
		SharesSupply:    res.SharesSupply,
	})
}

// Allocate handles POST /api/vaults/{ticker}/allocate.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	ticker, err := tickerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req AllocateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Allocate(r.Context(), vault.AllocateRequest{
		Caller:      signer(r),
		Ticker:      ticker,
		BaseAsset:   req.BaseAsset,
		Destination: req.Destination,
		Amount:      req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AllocateResponse{
		CustodyBalance:  res.CustodyBalance,
		TotalBaseAssets: res.TotalBaseAssets,
	})
}

// SetPaused handles POST /api/vaults/{ticker}/pause.
func (h *Handler) SetPaused(w http.ResponseWriter, r *http.Request) {
	ticker, err := tickerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req PauseRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.svc.SetPaused(r.Context(), vault.SetPausedRequest{
		Caller:         signer(r),
		Ticker:         ticker,
		DepositPaused:  req.DepositPaused,
		AllocatePaused: req.AllocatePaused,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVaultResponse(rec))
}

// Report handles GET /api/vaults/{ticker}/report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	ticker, err := tickerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rep, err := h.svc.Report(r.Context(), ticker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Vault:               rep.Vault,
		Ticker:              rep.Ticker,
		Outcome:             string(rep.Outcome()),
		TotalBaseAssets:     rep.TotalBaseAssets,
		SharesSupply:        rep.SharesSupply,
		CustodyBalance:      rep.CustodyBalance,
		Deployed:            rep.Deployed,
		PricePerShare:       rep.PricePerShare,
		Collateralization:   rep.Collateralization,
		SupplyMatchesLedger: rep.SupplyMatchesLedger,
	})
}

// Events handles GET /api/vaults/{ticker}/events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	ticker, err := tickerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.svc.Events(r.Context(), ticker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		er := EventResponse{
			EventID:         e.EventID,
			Sequence:        e.Sequence,
			Type:            e.Type,
			Actor:           e.Actor,
			BaseAmount:      e.BaseAmount,
			SharesAmount:    e.SharesAmount,
			TotalBaseAssets: e.TotalBaseAssets,
			DepositPaused:   e.DepositPaused,
			AllocatePaused:  e.AllocatePaused,
			TimestampMs:     e.TimestampMs,
		}
		if !e.Counterparty.IsZero() {
			cp := e.Counterparty
			er.Counterparty = &cp
		}
		resp = append(resp, er)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Flows handles GET /api/vaults/{ticker}/flows?from=<ms>&to=<ms>.
// The range defaults to the last 30 days.
func (h *Handler) Flows(w http.ResponseWriter, r *http.Request) {
	if h.flows == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "flow analytics not configured", Reason: "not_configured"})
		return
	}
	ticker, err := tickerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.svc.Get(r.Context(), ticker)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	end := time.Now().UnixMilli()
	start := end - (30 * 24 * time.Hour).Milliseconds()
	if err := queryInt(r, "from", &start); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := queryInt(r, "to", &end); err != nil {
		h.writeError(w, r, err)
		return
	}
	if end < start {
		h.writeError(w, r, fmt.Errorf("%w: to before from", errBadRequest))
		return
	}

	flows, err := h.flows.DailyFlows(r.Context(), rec.Address, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]FlowResponse, 0, len(flows))
	for _, f := range flows {
		resp = append(resp, FlowResponse{
			Day:           f.Day.UTC().Format(time.DateOnly),
			Deposited:     f.Deposited,
			Allocated:     f.Allocated,
			SharesMinted:  f.SharesMinted,
			DepositCount:  f.DepositCount,
			AllocateCount: f.AllocateCount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, dst *int64) error {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	v, err := parseUint(raw)
	if err != nil || v > 1<<62 {
		return fmt.Errorf("%w: %s=%q", errBadRequest, key, raw)
	}
	*dst = int64(v)
	return nil
}

// CreateAssetRequest is the body of POST /api/assets.
type CreateAssetRequest struct {
	Mint     domain.Address `json:"mint"`
	Decimals uint8          `json:"decimals"`
}

// MintAssetRequest is the body of POST /api/assets/{mint}/mint.
type MintAssetRequest struct {
	Owner  domain.Address `json:"owner"`
	Amount uint64         `json:"amount"`
}

// BalanceResponse reports a token balance.
type BalanceResponse struct {
	Account domain.Address `json:"account"`
	Amount  uint64         `json:"amount"`
}

// CreateAsset handles POST /api/assets. The signer becomes mint authority.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Mint.IsZero() {
		h.writeError(w, r, fmt.Errorf("%w: mint is required", errBadRequest))
		return
	}
	if err := h.svc.CreateAsset(r.Context(), req.Mint, signer(r), req.Decimals); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// MintAsset handles POST /api/assets/{mint}/mint.
func (h *Handler) MintAsset(w http.ResponseWriter, r *http.Request) {
	mint, err := domain.ParseAddress(chi.URLParam(r, "mint"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req MintAssetRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.svc.MintAsset(r.Context(), mint, signer(r), req.Owner, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.svc.AccountBalance(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Amount: balance})
}

// AssetBalance handles GET /api/assets/{mint}/balances/{owner}.
func (h *Handler) AssetBalance(w http.ResponseWriter, r *http.Request) {
	mint, err := domain.ParseAddress(chi.URLParam(r, "mint"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	owner, err := domain.ParseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := registry.AssociatedAccount(owner, mint)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	balance, err := h.svc.Balance(r.Context(), owner, mint)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Account: account, Amount: balance})
}
