package evmrpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"defi-revenue-lab/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements ChainReader over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new EVM JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ChainReader = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// post sends one request body with retries and exponential backoff,
// returning the raw response body.
func (c *HTTPClient) post(ctx context.Context, body []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// call performs a single JSON-RPC call.
func (c *HTTPClient) call(ctx context.Context, method string, params []any, result any) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		// RPC errors are not retried
		return rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// callBatch performs a JSON-RPC batch call. Responses are matched back to
// requests by ID; a missing or failed entry yields a nil raw result plus the
// per-entry error at the same position.
func (c *HTTPClient) callBatch(ctx context.Context, method string, paramSets [][]any) ([]json.RawMessage, []error, error) {
	if len(paramSets) == 0 {
		return nil, nil, nil
	}

	reqs := make([]rpcRequest, len(paramSets))
	ids := make(map[uint64]int, len(paramSets))
	for i, params := range paramSets {
		id := c.requestID.Add(1)
		reqs[i] = rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
		ids[id] = i
	}

	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal batch: %w", err)
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return nil, nil, err
	}

	var resps []rpcResponse
	if err := json.Unmarshal(respBody, &resps); err != nil {
		return nil, nil, fmt.Errorf("unmarshal batch response: %w", err)
	}

	results := make([]json.RawMessage, len(paramSets))
	errs := make([]error, len(paramSets))
	for i := range errs {
		errs[i] = fmt.Errorf("missing batch response")
	}
	for _, resp := range resps {
		idx, ok := ids[resp.ID]
		if !ok {
			continue
		}
		if resp.Error != nil {
			errs[idx] = resp.Error
			continue
		}
		results[idx] = resp.Result
		errs[idx] = nil
	}
	return results, errs, nil
}

// GetEvents fetches logs via eth_getLogs and decodes them against spec.
// Removed (reorged-out) logs are dropped.
func (c *HTTPClient) GetEvents(ctx context.Context, targets []domain.Address, spec *EventSpec, fromBlock, toBlock uint64) ([]Event, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	addrs := make([]string, len(targets))
	for i, t := range targets {
		addrs[i] = string(t)
	}

	filter := map[string]any{
		"fromBlock": hexUint(fromBlock),
		"toBlock":   hexUint(toBlock),
		"address":   addrs,
		"topics":    []any{spec.Topic0()},
	}

	var logs []Log
	if err := c.call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, fmt.Errorf("eth_getLogs %s: %w", spec.Name, err)
	}

	events := make([]Event, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := spec.DecodeLog(l)
		if err != nil {
			return nil, fmt.Errorf("decode %s log: %w", spec.Name, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// BatchCall executes the function against each call entry at the latest block.
func (c *HTTPClient) BatchCall(ctx context.Context, fn *FuncSpec, calls []Call, tolerateFailure bool) ([]*CallResult, error) {
	return c.batchCallAt(ctx, "latest", fn, calls, tolerateFailure)
}

// BatchCallAt executes the function against each call entry at a block.
func (c *HTTPClient) BatchCallAt(ctx context.Context, block uint64, fn *FuncSpec, calls []Call, tolerateFailure bool) ([]*CallResult, error) {
	return c.batchCallAt(ctx, hexUint(block), fn, calls, tolerateFailure)
}

func (c *HTTPClient) batchCallAt(ctx context.Context, blockTag string, fn *FuncSpec, calls []Call, tolerateFailure bool) ([]*CallResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	paramSets := make([][]any, len(calls))
	for i, call := range calls {
		data, err := fn.EncodeCall(call.Params...)
		if err != nil {
			return nil, fmt.Errorf("encode %s call %d: %w", fn.Name, i, err)
		}
		paramSets[i] = []any{
			map[string]any{
				"to":   string(call.Target),
				"data": "0x" + hex.EncodeToString(data),
			},
			blockTag,
		}
	}

	raws, errs, err := c.callBatch(ctx, "eth_call", paramSets)
	if err != nil {
		return nil, fmt.Errorf("eth_call batch %s: %w", fn.Name, err)
	}

	results := make([]*CallResult, len(calls))
	for i, raw := range raws {
		if errs[i] != nil {
			if !tolerateFailure {
				return nil, fmt.Errorf("eth_call %s [%d]: %w", fn.Name, i, errs[i])
			}
			continue // nil result marks the tolerated failure
		}
		var hexData string
		if err := json.Unmarshal(raw, &hexData); err != nil {
			if !tolerateFailure {
				return nil, fmt.Errorf("eth_call %s [%d]: %w", fn.Name, i, err)
			}
			continue
		}
		data, err := hex.DecodeString(trimHexPrefix(hexData))
		if err != nil {
			if !tolerateFailure {
				return nil, fmt.Errorf("eth_call %s [%d]: %w", fn.Name, i, err)
			}
			continue
		}
		res, err := fn.DecodeOutput(data)
		if err != nil || res == nil {
			if !tolerateFailure && err != nil {
				return nil, fmt.Errorf("eth_call %s [%d]: %w", fn.Name, i, err)
			}
			continue
		}
		results[i] = res
	}
	return results, nil
}

// header is the subset of an eth block header the client reads.
type header struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

// BlockNumber returns the latest block number.
func (c *HTTPClient) BlockNumber(ctx context.Context) (uint64, error) {
	var raw string
	if err := c.call(ctx, "eth_blockNumber", nil, &raw); err != nil {
		return 0, err
	}
	return parseHexUint(raw)
}

// BlockTimestamp returns the unix timestamp of a block.
func (c *HTTPClient) BlockTimestamp(ctx context.Context, block uint64) (int64, error) {
	var h header
	if err := c.call(ctx, "eth_getBlockByNumber", []any{hexUint(block), false}, &h); err != nil {
		return 0, err
	}
	ts, err := parseHexUint(h.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("block %d timestamp: %w", block, err)
	}
	return int64(ts), nil
}

// ResolveWindow resolves [fromTime, toTime) to block bounds by binary search
// over block timestamps. The returned window carries both representations.
func (c *HTTPClient) ResolveWindow(ctx context.Context, fromTime, toTime int64) (domain.Window, error) {
	if toTime <= fromTime {
		return domain.Window{}, fmt.Errorf("invalid window: to %d <= from %d", toTime, fromTime)
	}

	head, err := c.BlockNumber(ctx)
	if err != nil {
		return domain.Window{}, fmt.Errorf("resolve window: %w", err)
	}

	fromBlock, err := c.blockAtOrAfter(ctx, fromTime, head)
	if err != nil {
		return domain.Window{}, fmt.Errorf("resolve window start: %w", err)
	}
	toBlock, err := c.blockAtOrAfter(ctx, toTime, head)
	if err != nil {
		return domain.Window{}, fmt.Errorf("resolve window end: %w", err)
	}
	if toBlock > fromBlock {
		toBlock-- // last block strictly before toTime
	}

	return domain.Window{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		FromTime:  fromTime,
		ToTime:    toTime,
	}, nil
}

// blockAtOrAfter finds the lowest block with timestamp >= target.
func (c *HTTPClient) blockAtOrAfter(ctx context.Context, target int64, head uint64) (uint64, error) {
	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		ts, err := c.BlockTimestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
