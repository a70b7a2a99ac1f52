// Package upstream owns every HTTP call the scanner makes: the JSON-RPC
// router with its provider fallback chain, and the thin typed clients for
// enhanced transaction history, the DEX liquidity index, the price oracle
// and the rug-report oracle.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rawblock/daybreakscan/internal/metrics"
)

// Per-attempt budget for any single upstream HTTP call. The per-scan
// deadline is enforced separately through the request context.
const callTimeout = 15 * time.Second

// enhancedTxAttempts is how many times a 429 from the history endpoint is
// retried before giving up.
const enhancedTxAttempts = 3

var (
	// ErrNoProviders means the router was built without a single basic
	// provider URL.
	ErrNoProviders = errors.New("no rpc providers configured")

	// ErrRateLimited means the upstream kept returning 429 after retries.
	ErrRateLimited = errors.New("upstream rate limited")
)

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type jsonRPCResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonRPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// BatchCall is one entry of a multi-element JSON-RPC body.
type BatchCall struct {
	Method string
	Params []any
}

// RouterConfig carries the provider endpoints. EnhancedRPCURL and
// EnhancedAPIURL are pinned; BasicURLs form the fallback chain.
type RouterConfig struct {
	BasicURLs      []string
	EnhancedRPCURL string
	EnhancedAPIURL string
	APIKey         string
}

// Router dispatches JSON-RPC calls. Basic calls walk the fallback chain in
// order; enhanced calls are pinned to the enhanced provider because it owns
// data no other provider exposes.
type Router struct {
	basicURLs   []string
	enhancedRPC string
	enhancedAPI string
	apiKey      string
	http        *http.Client

	sleep func(ctx context.Context, d time.Duration) error // test hook
}

func NewRouter(cfg RouterConfig) (*Router, error) {
	if len(cfg.BasicURLs) == 0 {
		return nil, ErrNoProviders
	}
	return &Router{
		basicURLs:   cfg.BasicURLs,
		enhancedRPC: cfg.EnhancedRPCURL,
		enhancedAPI: cfg.EnhancedAPIURL,
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: callTimeout},
		sleep:       sleepCtx,
	}, nil
}

// Basic dispatches a JSON-RPC call across the basic provider chain. Each
// provider is tried in order; the error of the last one surfaces only when
// all of them fail.
func (r *Router) Basic(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var lastErr error
	for _, providerURL := range r.basicURLs {
		result, err := r.call(ctx, providerURL, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("all basic providers failed: %w", lastErr)
}

// Enhanced dispatches a JSON-RPC call pinned to the enhanced provider.
// No fallback: the methods routed here do not exist elsewhere. params is
// passed through as-is so DAS methods can use named parameters.
func (r *Router) Enhanced(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return r.call(ctx, r.enhancedRPCURL(), method, params)
}

func (r *Router) enhancedRPCURL() string {
	if r.apiKey == "" {
		return r.enhancedRPC
	}
	return r.enhancedRPC + "/?api-key=" + url.QueryEscape(r.apiKey)
}

func (r *Router) call(ctx context.Context, providerURL, method string, params any) (json.RawMessage, error) {
	start := time.Now()
	result, err := r.doCall(ctx, providerURL, method, params)
	metrics.ObserveUpstream("rpc", method, time.Since(start), err)
	return result, err
}

func (r *Router) doCall(ctx context.Context, providerURL, method string, params any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, providerURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", method, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", method, ErrRateLimited)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", method, httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", method, err)
	}

	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("%s: unmarshal rpc response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// Batch posts calls as a single multi-element JSON-RPC body and returns the
// results in request order. Any per-item error aborts the whole batch.
// Transport failures fall back through the basic chain like Basic does.
func (r *Router) Batch(ctx context.Context, calls []BatchCall) ([]json.RawMessage, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	reqs := make([]jsonRPCRequest, len(calls))
	for i, call := range calls {
		reqs[i] = jsonRPCRequest{JSONRPC: "2.0", ID: i, Method: call.Method, Params: call.Params}
	}
	reqBody, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("batch: marshal request: %w", err)
	}

	var lastErr error
	for _, providerURL := range r.basicURLs {
		results, err := r.doBatch(ctx, providerURL, reqBody, len(calls))
		if err == nil {
			return results, nil
		}
		lastErr = err
		// A per-item rpc error is a data problem, not a provider problem;
		// trying the next provider would just repeat it.
		var rpcErr *jsonRPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("batch: all basic providers failed: %w", lastErr)
}

func (r *Router) doBatch(ctx context.Context, providerURL string, reqBody []byte, n int) ([]json.RawMessage, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, providerURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("batch: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.http.Do(httpReq)
	metrics.ObserveUpstream("rpc", "batch", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("batch: http request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("batch: status %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("batch: read body: %w", err)
	}

	var responses []jsonRPCResponse
	if err := json.Unmarshal(body, &responses); err != nil {
		return nil, fmt.Errorf("batch: unmarshal rpc response: %w", err)
	}
	if len(responses) != n {
		return nil, fmt.Errorf("batch: got %d responses for %d calls", len(responses), n)
	}

	// Providers may answer out of order; ids restore request order.
	sort.Slice(responses, func(i, j int) bool { return responses[i].ID < responses[j].ID })

	results := make([]json.RawMessage, n)
	for i, resp := range responses {
		if resp.Error != nil {
			return nil, fmt.Errorf("batch item %d: %w", resp.ID, resp.Error)
		}
		results[i] = resp.Result
	}
	return results, nil
}

// EnhancedTransactions fetches parsed transaction history from the enhanced
// provider's REST endpoint. A 429 is retried with (attempt+1)s waits; after
// the retry budget the call fails rate-limited. A non-array body comes back
// as an empty slice, not an error.
func (r *Router) EnhancedTransactions(ctx context.Context, address string, limit int, sortOrder, before string) ([]EnhancedTransaction, error) {
	endpoint := fmt.Sprintf("%s/v0/addresses/%s/transactions", r.enhancedAPI, url.PathEscape(address))

	q := url.Values{}
	if r.apiKey != "" {
		q.Set("api-key", r.apiKey)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if sortOrder != "" {
		q.Set("sort-order", sortOrder)
	}
	if before != "" {
		q.Set("before", before)
	}
	fullURL := endpoint + "?" + q.Encode()

	for attempt := 0; attempt < enhancedTxAttempts; attempt++ {
		start := time.Now()
		body, status, err := r.get(ctx, fullURL)
		metrics.ObserveUpstream("enhanced", "transactions", time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("enhanced transactions: %w", err)
		}

		if status == http.StatusTooManyRequests {
			if attempt == enhancedTxAttempts-1 {
				return nil, fmt.Errorf("enhanced transactions: %w", ErrRateLimited)
			}
			if err := r.sleep(ctx, time.Duration(attempt+1)*time.Second); err != nil {
				return nil, err
			}
			continue
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("enhanced transactions: status %d", status)
		}

		var txs []EnhancedTransaction
		if err := json.Unmarshal(body, &txs); err != nil {
			// The endpoint answers errors as JSON objects; treat any
			// non-array body as "no history".
			return []EnhancedTransaction{}, nil
		}
		return txs, nil
	}
	return nil, fmt.Errorf("enhanced transactions: %w", ErrRateLimited)
}

func (r *Router) get(ctx context.Context, fullURL string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, err
	}
	httpResp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, httpResp.StatusCode, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
