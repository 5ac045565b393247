// Package recommend is the HTTP client for the external recommendation
// text service. The upstream is treated as opaque, slow and failure-prone;
// callers surface its errors through the normal error taxonomy.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	// defaultRPS bounds outbound calls so a burst of report requests
	// cannot exhaust the upstream quota.
	defaultRPS = 2
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit overrides the outbound requests-per-second cap.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Client calls the recommendation service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a recommendation service client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRPS), defaultRPS),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one recommendation prompt.
type Request struct {
	// DiseaseName is optional; empty means an unnamed condition.
	DiseaseName string  `json:"disease_name,omitempty"`
	Prior       float64 `json:"prior_probability"`
	Posterior   float64 `json:"posterior_probability"`
	TestResult  string  `json:"test_result"`
	Language    string  `json:"language"`
}

// Response is the upstream reply.
type Response struct {
	Recommendations string `json:"recommendations"`
	Model           string `json:"model,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Generate requests recommendation text for a computed result. It blocks
// on the outbound throttle, honoring ctx cancellation.
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("recommendation throttle: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recommendations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("recommendation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var upstream errorResponse
		if json.Unmarshal(data, &upstream) == nil && upstream.Message != "" {
			return nil, fmt.Errorf("recommendation service error (status %d): %s", resp.StatusCode, upstream.Message)
		}
		return nil, fmt.Errorf("recommendation service error (status %d)", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Recommendations == "" {
		return nil, fmt.Errorf("recommendation service returned an empty result")
	}
	return &out, nil
}
