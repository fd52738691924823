// Package cache is a thin client over the external tag-based cache purge
// service. The mapping from an abstract tag to concrete cache keys lives
// entirely on that side; the core only ever emits tags.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type purgeRequest struct {
	Tags []string `json:"tags"`
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Purge invalidates the given tags. Failures are the caller's to swallow —
// cache purge is never on the critical sync path.
func (c *Client) Purge(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	body, err := json.Marshal(purgeRequest{Tags: tags})
	if err != nil {
		return fmt.Errorf("cache: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/purge", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cache: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cache: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cache: status %d", resp.StatusCode)
	}
	return nil
}
