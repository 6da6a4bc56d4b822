// Package search defines the web search capability consumed by the pipeline
// and its Tavily-backed implementation.
package search

import (
	"context"
	"fmt"
	"strings"
)

// Result is one ranked search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Response is a full search response, optionally with a synthesized answer.
type Response struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

// Provider is the search capability contract.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) (*Response, error)
}

const snippetLimit = 300

// Format renders a response into a compact context block for prompts:
// the answer line first, then one bullet per hit with a capped snippet.
func Format(resp *Response) string {
	if resp == nil {
		return "No results found."
	}
	var parts []string
	if resp.Answer != "" {
		parts = append(parts, fmt.Sprintf("Summary: %s\n", resp.Answer))
	}
	for _, r := range resp.Results {
		content := r.Content
		if len(content) > snippetLimit {
			content = content[:snippetLimit]
		}
		parts = append(parts, fmt.Sprintf("- [%s](%s)\n  %s", r.Title, r.URL, content))
	}
	if len(parts) == 0 {
		return "No results found."
	}
	return strings.Join(parts, "\n")
}

// URLs collects the source URLs of a response, in rank order.
func URLs(resp *Response) []string {
	if resp == nil {
		return nil
	}
	urls := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// SearchAndFormat runs one search and returns the formatted context block
// together with the hit URLs.
func SearchAndFormat(ctx context.Context, p Provider, query string) (string, []string, error) {
	resp, err := p.Search(ctx, query, 5)
	if err != nil {
		return "", nil, err
	}
	return Format(resp), URLs(resp), nil
}
