// Package salesforce provides thin clients for the Salesforce query APIs:
// the synchronous REST query endpoint and the asynchronous Bulk 1.0 query
// endpoint. Both share a rate-limited, retry-capable HTTP transport.
package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ClientConfig configures the Salesforce API clients.
type ClientConfig struct {
	// InstanceURL is the org's base URL, e.g. "https://acme.my.salesforce.com".
	InstanceURL string

	// AccessToken authenticates every request.
	AccessToken string

	// APIVersion is the Salesforce API version, e.g. "58.0".
	APIVersion string

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for rate-limited or server-errored requests (default: 3).
	MaxRetries int

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// PollInterval between bulk batch status checks (default: 2s).
	PollInterval time.Duration

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		APIVersion:   "58.0",
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RateLimit:    10.0,
		RateBurst:    5,
		PollInterval: 2 * time.Second,
	}
}

func (c *ClientConfig) applyDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = "58.0"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RateLimit == 0 {
		c.RateLimit = 10.0
	}
	if c.RateBurst == 0 {
		c.RateBurst = 5
	}
	if c.PollInterval == 0 {
		c.PollInterval = 2 * time.Second
	}
}

// transport is the shared rate-limited HTTP layer under both API clients.
type transport struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

func newTransport(config *ClientConfig) *transport {
	if config == nil {
		config = DefaultClientConfig()
	}
	config.applyDefaults()
	return &transport{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: config.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}
}

// response wraps an HTTP response body with convenience methods.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// json unmarshals the response body into the given target.
func (r *response) json(target any) error {
	return json.Unmarshal(r.Body, target)
}

// do executes a request with rate limiting and bounded retry.
func (t *transport) do(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (*response, error) {
	if err := t.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		resp, err := t.doOnce(ctx, method, path, query, contentType, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}

		// Exponential backoff
		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doOnce executes a single request attempt.
func (t *transport) doOnce(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (*response, error) {
	fullURL := strings.TrimSuffix(t.config.InstanceURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// The REST API authenticates with a bearer token; Bulk 1.0 reads the
	// session header. Setting both keeps one transport for both clients.
	httpReq.Header.Set("Authorization", "Bearer "+t.config.AccessToken)
	httpReq.Header.Set("X-SFDC-Session", t.config.AccessToken)
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	return &response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// parseAPIError builds an APIError from a Salesforce error body. Error
// bodies are a JSON array of {message, errorCode} objects; only the first
// is reported.
func parseAPIError(status int, body []byte) *APIError {
	var details []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(body, &details); err == nil && len(details) > 0 {
		return &APIError{
			StatusCode: status,
			ErrorCode:  details[0].ErrorCode,
			Message:    details[0].Message,
		}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// isRetryable determines if an error should be retried.
func isRetryable(err error) bool {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
