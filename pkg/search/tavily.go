package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cherr "github.com/chronolab/chrono/pkg/errors"
	"github.com/chronolab/chrono/pkg/retry"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient implements Provider against the Tavily REST API.
type TavilyClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewTavilyClient creates a Tavily search client.
func NewTavilyClient(apiKey string) (*TavilyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tavily API key is required")
	}
	return &TavilyClient{
		apiKey:     apiKey,
		endpoint:   tavilyEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	Topic         string `json:"topic"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Search issues one search request. Transient failures are retried with the
// standard search policy.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	body, err := json.Marshal(tavilyRequest{
		APIKey:        c.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		SearchDepth:   "basic",
		Topic:         "general",
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	return retry.Do(ctx, func() (*Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, cherr.Wrap(err, cherr.ErrConnectionFailed)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, cherr.Wrap(err, cherr.ErrConnectionFailed)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, cherr.New(cherr.ErrRateLimit, "tavily rate limit exceeded")
		case resp.StatusCode >= 500:
			return nil, cherr.New(cherr.ErrSearchUnavailable, fmt.Sprintf("tavily returned status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return nil, cherr.New(cherr.ErrInvalidInput, fmt.Sprintf("tavily returned status %d: %s", resp.StatusCode, data))
		}

		var out Response
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("failed to parse search response: %w", err)
		}
		return &out, nil
	}, retry.Search())
}
