// Package rpc provides the HTTP transport shared by the chain adapters:
// JSON-RPC 2.0 (Ethereum), JSON-RPC 1.0 and REST (Bitcoin indexers), with
// throttle detection and retry/backoff.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPProvider implements JSON-RPC and REST calls over HTTP.
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client

	mu           sync.Mutex
	successCount int
	failureCount int
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetAPIKey attaches a bearer key sent with every request.
func (p *HTTPProvider) SetAPIKey(key string) {
	p.apiKey = key
}

// Call makes a single JSON-RPC 2.0 call.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	return p.call(ctx, "2.0", method, params)
}

// CallV1 makes a JSON-RPC 1.0 call with positional params.
func (p *HTTPProvider) CallV1(ctx context.Context, method string, params ...any) (any, error) {
	var ps any = params
	if len(params) == 0 {
		ps = nil
	}
	return p.call(ctx, "1.0", method, ps)
}

func (p *HTTPProvider) call(ctx context.Context, version, method string, params any) (any, error) {
	reqBody := map[string]any{
		"method": method,
		"params": params,
		"id":     1,
	}
	if version != "1.0" {
		reqBody["jsonrpc"] = version
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	body, err := p.do(req)
	if err != nil {
		return nil, err
	}

	var rpcResp struct {
		Result any             `json:"result"`
		Error  *map[string]any `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if rpcResp.Error != nil {
		errMsg := "unknown error"
		if msg, ok := (*rpcResp.Error)["message"].(string); ok {
			errMsg = msg
		}
		p.recordFailure()
		if IsThrottleMessage(errMsg) {
			return nil, fmt.Errorf("throttle in rpc error: %s", errMsg)
		}
		return nil, fmt.Errorf("rpc error: %s", errMsg)
	}

	p.recordSuccess()
	return rpcResp.Result, nil
}

// Get makes a REST GET request to endpoint+path and decodes the JSON body
// into out. A nil out discards the body.
func (p *HTTPProvider) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.endpoint+path, nil)
	if err != nil {
		p.recordFailure()
		return fmt.Errorf("create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	body, err := p.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		p.recordFailure()
		return fmt.Errorf("parse response: %w", err)
	}
	p.recordSuccess()
	return nil
}

var errNotFound = fmt.Errorf("not found (404)")

// IsNotFound reports whether err is an HTTP 404 from a REST call.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found (404)")
}

func (p *HTTPProvider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	// Rate limit detection
	if resp.StatusCode == 429 {
		retryAfter := resp.Header.Get("Retry-After")
		p.recordFailure()
		return nil, fmt.Errorf("rate limited (429), retry after: %s", retryAfter)
	}
	if resp.StatusCode == 403 {
		p.recordFailure()
		return nil, fmt.Errorf("access blocked (403)")
	}
	if resp.StatusCode == http.StatusNotFound {
		p.recordFailure()
		return nil, errNotFound
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.recordFailure()
		if IsThrottleMessage(string(body)) {
			return nil, fmt.Errorf("throttle detected in response: %s", string(body))
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// GetName returns the provider's name.
func (p *HTTPProvider) GetName() string {
	return p.name
}

// Close cleans up idle connections.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) recordSuccess() {
	p.mu.Lock()
	p.successCount++
	p.mu.Unlock()
}

func (p *HTTPProvider) recordFailure() {
	p.mu.Lock()
	p.failureCount++
	p.mu.Unlock()
}

// IsThrottleMessage reports whether a provider message looks like
// rate limiting rather than a real failure.
func IsThrottleMessage(s string) bool {
	sLower := strings.ToLower(s)
	patterns := []string{
		"rate limit",
		"rate limited",
		"too many requests",
		"429",
		"quota",
		"throttled",
		"plan limit",
		"count exceeded",
	}
	for _, pattern := range patterns {
		if strings.Contains(sLower, pattern) {
			return true
		}
	}
	return false
}
