// Package scraper is a thin client over the external chapter-discovery
// service: listing a source's chapters and fetching one chapter's images.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Chapter is one entry in a source's chapter listing, as the external
// scraper reports it — before the scanner resolves a canonical number.
type Chapter struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Date   string `json:"date,omitempty"`
	Weight *int   `json:"weight,omitempty"`
}

type listResponse struct {
	Status  string    `json:"status"` // "ready" | "loading" | "not_cached"
	HasMore bool      `json:"hasMore"`
	Page    int       `json:"page"`
	Limit   int       `json:"limit"`
	Data    []Chapter `json:"data"`
}

// Image is one page of a chapter as the scraper reports it.
type Image struct {
	Index       int    `json:"index"`
	DownloadURL string `json:"download_url"`
}

type imagesResponse struct {
	Data []Image `json:"data"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client

	// PollInterval is the delay between retries while the scraper reports
	// a "loading"/"not_cached" transient state.
	PollInterval time.Duration
	MaxPolls     int
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:      baseURL,
		HTTP:         &http.Client{Timeout: timeout},
		PollInterval: 3 * time.Second,
		MaxPolls:     5,
	}
}

// ListChaptersForSource returns a source's full chapter listing, paginating
// until the scraper reports no more pages and retrying transient
// "loading"/"not_cached" responses with a short delay.
func (c *Client) ListChaptersForSource(ctx context.Context, sourceURL string) ([]Chapter, error) {
	var all []Chapter
	page := 1

	for {
		resp, err := c.fetchPage(ctx, sourceURL, page)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if !resp.HasMore {
			break
		}
		page++
	}
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, sourceURL string, page int) (listResponse, error) {
	for attempt := 0; attempt <= c.MaxPolls; attempt++ {
		u, err := url.Parse(c.BaseURL + "/chapters")
		if err != nil {
			return listResponse{}, fmt.Errorf("scraper: build url: %w", err)
		}
		q := u.Query()
		q.Set("source_url", sourceURL)
		q.Set("page", fmt.Sprintf("%d", page))
		u.RawQuery = q.Encode()

		var out listResponse
		if err := c.getJSON(ctx, u.String(), &out); err != nil {
			return listResponse{}, err
		}

		if out.Status == "" || out.Status == "ready" {
			return out, nil
		}
		// transient: the scraper is still warming its cache for this source
		select {
		case <-ctx.Done():
			return listResponse{}, ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
	return listResponse{}, fmt.Errorf("scraper: source %s did not become ready after %d attempts", sourceURL, c.MaxPolls+1)
}

// GetChapterImages returns the ordered image list for one chapter.
func (c *Client) GetChapterImages(ctx context.Context, chapterURL string) ([]Image, error) {
	u, err := url.Parse(c.BaseURL + "/chapter-images")
	if err != nil {
		return nil, fmt.Errorf("scraper: build url: %w", err)
	}
	q := u.Query()
	q.Set("chapter_url", chapterURL)
	u.RawQuery = q.Encode()

	var out imagesResponse
	if err := c.getJSON(ctx, u.String(), &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("scraper: no images found for chapter %s", chapterURL)
	}
	return out.Data, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("scraper: build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("scraper: request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scraper: status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("scraper: decode: %w", err)
	}
	return nil
}
