// Package notify is a thin client over the external failure-notification
// channel, with a per-series cooldown so a persistently broken series does
// not spam the channel once per tick forever.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type failureMessage struct {
	Type             string `json:"type"`
	SeriesExternalID string `json:"series_external_id"`
	Message          string `json:"message"`
}

type Client struct {
	BaseURL     string
	ChannelKey  string
	HTTP        *http.Client
	AfterN      int
	Cooldown    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(baseURL, channelKey string, afterN int, cooldown time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		ChannelKey: channelKey,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		AfterN:     afterN,
		Cooldown:   cooldown,
		limiters:   make(map[string]*rate.Limiter),
	}
}

func (c *Client) limiterFor(seriesID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[seriesID]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.Cooldown), 1)
		c.limiters[seriesID] = l
	}
	return l
}

// NotifyFailureIfDue sends a failure notification once consecutiveFailures
// has reached AfterN, subject to the per-series cooldown. Errors are never
// propagated to the caller beyond the return value — notification is
// best-effort by design.
func (c *Client) NotifyFailureIfDue(ctx context.Context, seriesID, seriesExternalID string, consecutiveFailures int, message string) error {
	if consecutiveFailures < c.AfterN {
		return nil
	}
	if !c.limiterFor(seriesID).Allow() {
		return nil
	}

	body, err := json.Marshal(failureMessage{
		Type:             "series.sync_failing",
		SeriesExternalID: seriesExternalID,
		Message:          message,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notify", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ChannelKey != "" {
		req.Header.Set("X-Channel-Key", c.ChannelKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: status %d", resp.StatusCode)
	}
	return nil
}
