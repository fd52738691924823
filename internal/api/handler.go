// Package api is the C5 component: the authenticated HTTP admin surface
// over the registry, plus a debug event relay for operators who don't want
// to stand up the external event bus.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/pkg/models"
)

// Scanner is the subset of *scanner.Scanner the API needs to kick off an
// immediate first scan after CreateSeries, without importing the scanner
// package directly (it would otherwise import scraper/catalog clients this
// package has no other reason to depend on).
type Scanner interface {
	Scan(ctx context.Context, series models.Series) error
}

type Handler struct {
	Repo    *registry.Repo
	Scanner Scanner
	DB      Pinger
}

// Pinger is satisfied by *sql.DB; kept as an interface so /health doesn't
// need the database package imported here.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func NewHandler(repo *registry.Repo, scanner Scanner, db Pinger) *Handler {
	return &Handler{Repo: repo, Scanner: scanner, DB: db}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.health)

	series := rg.Group("/series")
	series.POST("", h.createSeries)
	series.POST("/bulk", h.bulkCreate)
	series.GET("", h.listSeries)
	series.GET("/:id", h.getSeries)
	series.PUT("/:id", h.updateSeries)
	series.DELETE("/:id", h.deleteSeries)
	series.POST("/:id/force-scan", h.forceScan)
	series.POST("/:id/retry", h.retryFailed)

	rg.POST("/domains/migrate", h.updateDomain)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) createSeries(c *gin.Context) {
	var in models.CreateSeriesInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.Repo.Create(c.Request.Context(), in)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	if h.Scanner != nil {
		go func(series models.Series) { _ = h.Scanner.Scan(context.Background(), series) }(s)
	}
	c.JSON(http.StatusCreated, s)
}

type bulkCreateRequest struct {
	Items []models.CreateSeriesInput `json:"items"`
}

type bulkCreateResult struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"` // "created" | "skipped"
	Error      string `json:"error,omitempty"`
}

func (h *Handler) bulkCreate(c *gin.Context) {
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Items) > 50 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at most 50 items per bulk request"})
		return
	}

	results := make([]bulkCreateResult, 0, len(req.Items))
	for _, in := range req.Items {
		s, err := h.Repo.Create(c.Request.Context(), in)
		if err != nil {
			results = append(results, bulkCreateResult{ExternalID: in.ExternalID, Status: "skipped", Error: err.Error()})
			continue
		}
		if h.Scanner != nil {
			go func(series models.Series) { _ = h.Scanner.Scan(context.Background(), series) }(s)
		}
		results = append(results, bulkCreateResult{ExternalID: in.ExternalID, Status: "created"})
	}
	c.JSON(http.StatusCreated, gin.H{"results": results})
}

func (h *Handler) listSeries(c *gin.Context) {
	f := models.ListFilter{
		Status:   models.SeriesStatus(c.Query("status")),
		Title:    c.Query("title"),
		Page:     parseIntDefault(c.Query("page"), 1),
		PageSize: parseIntDefault(c.Query("page_size"), 20),
	}
	items, total, err := h.Repo.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": f.Page, "page_size": f.PageSize})
}

func (h *Handler) getSeries(c *gin.Context) {
	s, err := h.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	failed, err := h.Repo.GetFailed(c.Request.Context(), s.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"series": s, "failed_tasks": failed})
}

func (h *Handler) updateSeries(c *gin.Context) {
	var in models.UpdateSeriesInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.Repo.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) deleteSeries(c *gin.Context) {
	if err := h.Repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) forceScan(c *gin.Context) {
	if err := h.Repo.TriggerForceScan(c.Request.Context(), c.Param("id")); err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggered": true})
}

func (h *Handler) retryFailed(c *gin.Context) {
	n, err := h.Repo.RetryFailed(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeRepoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried_count": n})
}

type updateDomainRequest struct {
	OldDomain string   `json:"old_domain"`
	NewDomain string   `json:"new_domain"`
	SeriesIDs []string `json:"series_ids"`
	DryRun    *bool    `json:"dry_run"`
}

func (h *Handler) updateDomain(c *gin.Context) {
	var req updateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OldDomain == "" || req.NewDomain == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old_domain and new_domain are required"})
		return
	}
	if len(req.SeriesIDs) > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at most 200 series_ids"})
		return
	}
	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	if dryRun {
		matches, _, err := h.Repo.FindDomainMatches(c.Request.Context(), req.OldDomain, req.SeriesIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		sample := matches
		if len(sample) > 10 {
			sample = sample[:10]
		}
		for i := range sample {
			if u, err := url.Parse(sample[i].OldURL); err == nil {
				host := req.NewDomain
				if port := u.Port(); port != "" {
					host += ":" + port
				}
				u.Host = host
				sample[i].NewURL = u.String()
			}
		}
		c.JSON(http.StatusOK, gin.H{"affected_count": len(matches), "sample": sample})
		return
	}

	n, err := h.Repo.ApplyDomainMigration(c.Request.Context(), req.OldDomain, req.NewDomain, req.SeriesIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_count": n})
}

func writeRepoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, registry.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "already registered"})
	case errors.Is(err, registry.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrNoFailedTasks):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no failed tasks to retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
