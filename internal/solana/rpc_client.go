package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"share-vault/internal/domain"
	"share-vault/internal/observability"
)

// MaxMultipleAccounts is the node limit for one getMultipleAccounts call.
const MaxMultipleAccounts = 100

// DefaultCommitment is used for every read unless overridden.
const DefaultCommitment = "confirmed"

var (
	// ErrRateLimited is returned when the node keeps answering 429.
	ErrRateLimited = errors.New("rpc rate limited")

	// ErrTooManyAccounts is returned when a batch exceeds MaxMultipleAccounts.
	ErrTooManyAccounts = errors.New("too many accounts in one request")
)

// RPCError is an error object returned by the node. It is never retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RetryPolicy bounds retries of transport failures, 5xx and 429 answers.
type RetryPolicy struct {
	Attempts int // total attempts, at least 1
	Initial  time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy returns four attempts with doubling delays up to 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 4, Initial: time.Second, Max: 10 * time.Second}
}

// delay returns the wait before retry number n (1-based).
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.Initial
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return d
}

// HTTPClient implements RPCClient over JSON-RPC 2.0.
type HTTPClient struct {
	endpoint   string
	http       *http.Client
	retry      RetryPolicy
	commitment string
	nextID     atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *HTTPClient) {
		if p.Attempts < 1 {
			p.Attempts = 1
		}
		c.retry = p
	}
}

// WithCommitment sets the commitment level for reads.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) { c.commitment = commitment }
}

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.http = client }
}

// NewHTTPClient creates a client for endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:   endpoint,
		http:       &http.Client{Timeout: 30 * time.Second},
		retry:      DefaultRetryPolicy(),
		commitment: DefaultCommitment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// retryable marks failures worth another attempt.
type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

func (c *HTTPClient) call(ctx context.Context, method string, out any, params ...any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	start := time.Now()
	defer func() { observability.RecordRPCLatency(method, time.Since(start).Seconds()) }()

	var lastErr error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.delay(attempt - 1)):
			}
		}

		err := c.roundTrip(ctx, body, out)
		var r retryable
		if !errors.As(err, &r) {
			return err
		}
		lastErr = r.err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, c.retry.Attempts, lastErr)
}

// roundTrip performs one POST. Failures that may succeed on retry are wrapped in retryable.
func (c *HTTPClient) roundTrip(ctx context.Context, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return retryable{err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return retryable{fmt.Errorf("read body: %w", err)}
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryable{ErrRateLimited}
	case resp.StatusCode >= http.StatusInternalServerError:
		return retryable{fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return retryable{fmt.Errorf("decode response: %w", err)}
	}
	if r.Error != nil {
		return r.Error
	}
	if out == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (c *HTTPClient) accountConfig() map[string]string {
	return map[string]string{"encoding": "base64", "commitment": c.commitment}
}

// rpcAccount is the base64-encoded account form returned by the node.
type rpcAccount struct {
	Lamports uint64   `json:"lamports"`
	Owner    string   `json:"owner"`
	Data     []string `json:"data"` // [payload, "base64"]
}

func (a *rpcAccount) info(addr domain.Address) (*AccountInfo, error) {
	if a == nil {
		return nil, nil
	}
	owner, err := domain.ParseAddress(a.Owner)
	if err != nil {
		return nil, fmt.Errorf("account %s owner: %w", addr, err)
	}
	info := &AccountInfo{Address: addr, Lamports: a.Lamports, Owner: owner}
	if len(a.Data) > 0 {
		info.Data = a.Data[0]
	}
	return info, nil
}

type rpcContext struct {
	Slot int64 `json:"slot"`
}

// GetAccountInfo reads one account.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, addr domain.Address) (*AccountInfo, error) {
	var result struct {
		Value *rpcAccount `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", &result, addr.String(), c.accountConfig()); err != nil {
		return nil, err
	}
	return result.Value.info(addr)
}

// GetMultipleAccounts reads up to MaxMultipleAccounts accounts at one slot.
func (c *HTTPClient) GetMultipleAccounts(ctx context.Context, addrs []domain.Address) (*AccountBatch, error) {
	if len(addrs) > MaxMultipleAccounts {
		return nil, fmt.Errorf("%w: %d", ErrTooManyAccounts, len(addrs))
	}
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.String()
	}

	var result struct {
		Context rpcContext    `json:"context"`
		Value   []*rpcAccount `json:"value"`
	}
	if err := c.call(ctx, "getMultipleAccounts", &result, keys, c.accountConfig()); err != nil {
		return nil, err
	}
	if len(result.Value) != len(addrs) {
		return nil, fmt.Errorf("getMultipleAccounts returned %d accounts for %d keys", len(result.Value), len(addrs))
	}

	batch := &AccountBatch{Slot: result.Context.Slot, Accounts: make([]*AccountInfo, len(addrs))}
	for i, v := range result.Value {
		info, err := v.info(addrs[i])
		if err != nil {
			return nil, err
		}
		batch.Accounts[i] = info
	}
	return batch, nil
}

// GetSlot returns the current slot at the configured commitment.
func (c *HTTPClient) GetSlot(ctx context.Context) (int64, error) {
	var slot int64
	if err := c.call(ctx, "getSlot", &slot, map[string]string{"commitment": c.commitment}); err != nil {
		return 0, err
	}
	return slot, nil
}
