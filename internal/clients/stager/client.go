// Package stager is a thin client over the external service that downloads
// a chapter's images and packages them into a durable intermediate archive.
package stager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shinigamiapp/automirror/internal/clients/scraper"
)

type stageRequest struct {
	ImageDataArray   []scraper.Image `json:"imageDataArray"`
	SeriesExternalID string          `json:"series_external_id"`
	ChapterNumber    string          `json:"chapterNumber"`
	SeriesTitle      string          `json:"seriesTitle"`
	ChapterURL       string          `json:"chapterUrl"`
}

type stageResponse struct {
	Success bool `json:"success"`
	Data    struct {
		PublicURL   string `json:"publicUrl"`
		FileName    string `json:"fileName"`
		TotalImages int    `json:"totalImages"`
	} `json:"data"`
}

// StageResult is what a successful StageChapter call returns.
type StageResult struct {
	ZipURL      string
	FileName    string
	TotalImages int
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

// StageChapter downloads and packages the given images into a durable zip,
// returning its public URL.
func (c *Client) StageChapter(ctx context.Context, req stageRequest) (StageResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return StageResult{}, fmt.Errorf("stager: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/stage-chapter", bytes.NewReader(body))
	if err != nil {
		return StageResult{}, fmt.Errorf("stager: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return StageResult{}, fmt.Errorf("stager: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return StageResult{}, fmt.Errorf("stager: status %d: %s", resp.StatusCode, string(respBody))
	}

	var out stageResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return StageResult{}, fmt.Errorf("stager: decode: %w", err)
	}
	if !out.Success || out.Data.PublicURL == "" {
		return StageResult{}, fmt.Errorf("stager: staging did not succeed")
	}
	return StageResult{
		ZipURL:      out.Data.PublicURL,
		FileName:    out.Data.FileName,
		TotalImages: out.Data.TotalImages,
	}, nil
}

// Stage is the convenience entry point called by the sync processor.
func (c *Client) Stage(ctx context.Context, images []scraper.Image, seriesExternalID, seriesTitle, chapterURL string, chapterNumber string) (StageResult, error) {
	return c.StageChapter(ctx, stageRequest{
		ImageDataArray:   images,
		SeriesExternalID: seriesExternalID,
		ChapterNumber:    chapterNumber,
		SeriesTitle:      seriesTitle,
		ChapterURL:       chapterURL,
	})
}
