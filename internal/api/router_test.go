package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"share-vault/internal/domain"
	"share-vault/internal/registry"
	"share-vault/internal/storage/memory"
	"share-vault/internal/vault"
)

// addr returns a wallet address: the public key of a keypair seeded with b.
func addr(b byte) domain.Address {
	seed := bytes.Repeat([]byte{b}, ed25519.SeedSize)
	var a domain.Address
	copy(a[:], ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	return a
}

var (
	baseMint      = addr(0xB0)
	mintAuthority = addr(0xB1)
	admin         = addr(0xA0)
	alice         = addr(0xC1)
	treasury      = addr(0xD0)
)

type fakeFlows struct {
	vault      domain.Address
	start, end int64
}

func (f *fakeFlows) DailyFlows(_ context.Context, vault domain.Address, startMs, endMs int64) ([]*domain.DailyFlow, error) {
	f.vault, f.start, f.end = vault, startMs, endMs
	return []*domain.DailyFlow{{
		Vault:        vault,
		Day:          time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Deposited:    700,
		SharesMinted: 700,
		DepositCount: 2,
	}}, nil
}

type testServer struct {
	t     *testing.T
	srv   *httptest.Server
	flows *fakeFlows
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc := vault.NewService(vault.Options{
		Backend:  memory.NewBackend(),
		Registry: registry.New(registry.DefaultProgramID),
	})
	flows := &fakeFlows{}
	srv := httptest.NewServer(NewRouter(Options{Service: svc, Flows: flows, LocalAssets: true}))
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, flows: flows}
}

func (s *testServer) do(method, path string, signer *domain.Address, body any, out any) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if signer != nil {
		req.Header.Set(SignerHeader, signer.String())
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// setup creates the base asset, funds alice and initializes the default vault.
func (s *testServer) setup() VaultResponse {
	s.t.Helper()
	auth := mintAuthority
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/api/assets", &auth,
		CreateAssetRequest{Mint: baseMint, Decimals: 6}, nil))

	var bal BalanceResponse
	require.Equal(s.t, http.StatusOK, s.do(http.MethodPost, "/api/assets/"+baseMint.String()+"/mint", &auth,
		MintAssetRequest{Owner: alice, Amount: 10_000_000}, &bal))
	require.Equal(s.t, uint64(10_000_000), bal.Amount)

	// Empty destination account for allocations.
	require.Equal(s.t, http.StatusOK, s.do(http.MethodPost, "/api/assets/"+baseMint.String()+"/mint", &auth,
		MintAssetRequest{Owner: treasury, Amount: 0}, nil))

	var v VaultResponse
	a := admin
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/api/vaults", &a,
		InitializeRequest{BaseAsset: baseMint}, &v))
	return v
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_DepositAllocateFlow(t *testing.T) {
	s := newTestServer(t)
	v := s.setup()
	assert.Equal(t, registry.DefaultTicker.String(), v.Ticker.String())
	assert.Equal(t, admin, v.Admin)

	a := alice
	var dep DepositResponse
	status := s.do(http.MethodPost, "/api/vaults/DEFAULT/deposit", &a,
		DepositRequest{Amount: 10_000_000, BaseAsset: v.BaseAsset, SharesMint: v.SharesMint}, &dep)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(10_000_000), dep.SharesMinted)
	assert.Equal(t, uint64(10_000_000), dep.TotalBaseAssets)

	dest, err := registry.AssociatedAccount(treasury, baseMint)
	require.NoError(t, err)

	adm := admin
	var alloc AllocateResponse
	status = s.do(http.MethodPost, "/api/vaults/DEFAULT/allocate", &adm,
		AllocateRequest{Amount: 2_000_000, BaseAsset: baseMint, Destination: dest}, &alloc)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint64(8_000_000), alloc.CustodyBalance)
	assert.Equal(t, uint64(10_000_000), alloc.TotalBaseAssets)

	var report ReportResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/vaults/DEFAULT/report", nil, nil, &report))
	assert.Equal(t, "deployed", report.Outcome)
	assert.Equal(t, uint64(2_000_000), report.Deployed)
	assert.Equal(t, "0.8", report.Collateralization.String())

	var events []EventResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/vaults/DEFAULT/events", nil, nil, &events))
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventAllocate, events[2].Type)
	require.NotNil(t, events[2].Counterparty)
	assert.Equal(t, dest, *events[2].Counterparty)

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet,
		"/api/assets/"+baseMint.String()+"/balances/"+treasury.String(), nil, nil, &bal))
	assert.Equal(t, uint64(2_000_000), bal.Amount)
}

func TestRouter_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	v := s.setup()
	a, adm, auth, vaultAuth := alice, admin, mintAuthority, v.Authority
	dest, err := registry.AssociatedAccount(treasury, baseMint)
	require.NoError(t, err)
	other, err := registry.ParseTicker("OTHER")
	require.NoError(t, err)
	otherAddrs, err := registry.New(registry.DefaultProgramID).Resolve(other, baseMint)
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		signer     *domain.Address
		body       any
		wantStatus int
		wantReason string
	}{
		{
			name: "missing signer", method: http.MethodPost, path: "/api/vaults/DEFAULT/deposit",
			body:       DepositRequest{Amount: 1, BaseAsset: v.BaseAsset, SharesMint: v.SharesMint},
			wantStatus: http.StatusUnauthorized, wantReason: "missing_signer",
		},
		{
			name: "vault authority as signer", method: http.MethodPost, path: "/api/assets/" + v.SharesMint.String() + "/mint", signer: &vaultAuth,
			body:       MintAssetRequest{Owner: alice, Amount: 5_000_000},
			wantStatus: http.StatusForbidden, wantReason: "program_signer",
		},
		{
			name: "mint at a vault shares address", method: http.MethodPost, path: "/api/assets", signer: &auth,
			body:       CreateAssetRequest{Mint: otherAddrs.SharesMint, Decimals: 6},
			wantStatus: http.StatusForbidden, wantReason: "program_address",
		},
		{
			name: "zero amount", method: http.MethodPost, path: "/api/vaults/DEFAULT/deposit", signer: &a,
			body:       DepositRequest{Amount: 0, BaseAsset: v.BaseAsset, SharesMint: v.SharesMint},
			wantStatus: http.StatusBadRequest, wantReason: "zero_amount",
		},
		{
			name: "insufficient balance", method: http.MethodPost, path: "/api/vaults/DEFAULT/deposit", signer: &a,
			body:       DepositRequest{Amount: 99_000_000, BaseAsset: v.BaseAsset, SharesMint: v.SharesMint},
			wantStatus: http.StatusUnprocessableEntity, wantReason: "insufficient_balance",
		},
		{
			name: "reference mismatch", method: http.MethodPost, path: "/api/vaults/DEFAULT/deposit", signer: &a,
			body:       DepositRequest{Amount: 1, BaseAsset: v.BaseAsset, SharesMint: addr(0xEE)},
			wantStatus: http.StatusUnprocessableEntity, wantReason: "reference_mismatch",
		},
		{
			name: "unauthorized allocate", method: http.MethodPost, path: "/api/vaults/DEFAULT/allocate", signer: &a,
			body:       AllocateRequest{Amount: 1, BaseAsset: baseMint, Destination: dest},
			wantStatus: http.StatusForbidden, wantReason: "unauthorized",
		},
		{
			name: "custody too small", method: http.MethodPost, path: "/api/vaults/DEFAULT/allocate", signer: &adm,
			body:       AllocateRequest{Amount: 1, BaseAsset: baseMint, Destination: dest},
			wantStatus: http.StatusUnprocessableEntity, wantReason: "insufficient_custody_balance",
		},
		{
			name: "unknown vault", method: http.MethodGet, path: "/api/vaults/OTHER",
			wantStatus: http.StatusNotFound, wantReason: "not_found",
		},
		{
			name: "ticker too long", method: http.MethodGet, path: "/api/vaults/ABCDEFGHIJKLMNOPQ",
			wantStatus: http.StatusBadRequest, wantReason: "invalid_ticker",
		},
		{
			name: "reinitialize", method: http.MethodPost, path: "/api/vaults", signer: &a,
			body:       InitializeRequest{BaseAsset: baseMint},
			wantStatus: http.StatusConflict, wantReason: "already_initialized",
		},
		{
			name: "unknown field", method: http.MethodPost, path: "/api/vaults/DEFAULT/pause", signer: &adm,
			body:       map[string]any{"paused": true},
			wantStatus: http.StatusBadRequest, wantReason: "bad_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			status := s.do(tt.method, tt.path, tt.signer, tt.body, &resp)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantReason, resp.Reason)
		})
	}

	var got VaultResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/vaults/DEFAULT", nil, nil, &got))
	assert.Zero(t, got.TotalBaseAssets)
	assert.Equal(t, admin, got.Admin)

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet,
		"/api/assets/"+v.SharesMint.String()+"/balances/"+alice.String(), nil, nil, &bal))
	assert.Zero(t, bal.Amount)
}

func TestRouter_Pause(t *testing.T) {
	s := newTestServer(t)
	v := s.setup()
	a, adm := alice, admin

	var rec VaultResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/vaults/DEFAULT/pause", &adm,
		PauseRequest{DepositPaused: true}, &rec))
	assert.True(t, rec.DepositPaused)
	assert.False(t, rec.AllocatePaused)

	var resp errorResponse
	status := s.do(http.MethodPost, "/api/vaults/DEFAULT/deposit", &a,
		DepositRequest{Amount: 1, BaseAsset: v.BaseAsset, SharesMint: v.SharesMint}, &resp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "deposit_paused", resp.Reason)
}

func TestRouter_Flows(t *testing.T) {
	s := newTestServer(t)
	v := s.setup()

	var flows []FlowResponse
	status := s.do(http.MethodGet, "/api/vaults/DEFAULT/flows?from=1000&to=2000", nil, nil, &flows)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, flows, 1)
	assert.Equal(t, "2026-03-01", flows[0].Day)
	assert.Equal(t, uint64(700), flows[0].Deposited)
	assert.Equal(t, v.Address, s.flows.vault)
	assert.Equal(t, int64(1000), s.flows.start)
	assert.Equal(t, int64(2000), s.flows.end)

	var resp errorResponse
	status = s.do(http.MethodGet, "/api/vaults/DEFAULT/flows?from=2000&to=1000", nil, nil, &resp)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_ListVaults(t *testing.T) {
	s := newTestServer(t)
	s.setup()

	adm := admin
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/vaults", &adm,
		InitializeRequest{Ticker: "SECOND", BaseAsset: baseMint}, nil))

	var vaults []VaultResponse
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/vaults", nil, nil, &vaults))
	require.Len(t, vaults, 2)
	tickers := []string{vaults[0].Ticker.String(), vaults[1].Ticker.String()}
	assert.ElementsMatch(t, []string{"DEFAULT", "SECOND"}, tickers)
}
