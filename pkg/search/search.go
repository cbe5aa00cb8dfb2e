// Package search defines the contract for the apartment search service and a
// client for its HTTP API.
//
// The service ranks listings against a free-text query ("two bedrooms
// downtown under 2000"). The core only depends on the [Searcher] interface;
// [Client] talks to a remote retrieval service, and the listings store offers
// a local implementation backed by vector search.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Result is one ranked search hit.
type Result struct {
	// ID identifies the listing.
	ID string `json:"id"`

	// Score is the relevance score, higher is better.
	Score float64 `json:"score"`

	// Text is the listing description used for ranking.
	Text string `json:"text"`

	// Metadata carries listing attributes (address, bedrooms, rent, area).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Searcher ranks listings against a free-text query.
type Searcher interface {
	// Query returns at most topK results ordered by descending score.
	Query(ctx context.Context, text string, topK int) ([]Result, error)
}

// Ensure Client implements Searcher at compile time.
var _ Searcher = (*Client)(nil)

const defaultTimeout = 15 * time.Second

// Option is a functional option for [NewClient].
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 15 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client talks to a remote search service over its POST /query endpoint.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the search service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("search: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type queryRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k"`
}

type queryResponse struct {
	Results []Result `json:"results"`
}

// Query implements [Searcher].
func (c *Client) Query(ctx context.Context, text string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}
	body, err := json.Marshal(queryRequest{Text: text, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("search: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: POST /query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: POST /query returned status %d", resp.StatusCode)
	}
	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}
	return out.Results, nil
}
