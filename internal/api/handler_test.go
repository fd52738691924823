package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinigamiapp/automirror/internal/api"
	"github.com/shinigamiapp/automirror/internal/events"
	"github.com/shinigamiapp/automirror/internal/registry"
	"github.com/shinigamiapp/automirror/pkg/database"
	"github.com/shinigamiapp/automirror/pkg/models"
)

type noopScanner struct{}

func (noopScanner) Scan(ctx context.Context, series models.Series) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *registry.Repo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	repo := registry.NewRepo(db)
	h := api.NewHandler(repo, noopScanner{}, db)
	hub := events.NewHub()
	tokens := events.TokenService{Secret: []byte("test-secret"), Issuer: "automirror", Duration: 0}
	router := api.NewRouter(h, hub, tokens, "test-admin-key")
	return router, repo
}

func doRequest(router *gin.Engine, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateSeries_RequiresAPIKey(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doRequest(router, http.MethodPost, "/series", "", models.CreateSeriesInput{
		ExternalID: "e1", Title: "T", SourceURLs: []string{"https://a.example/m"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateSeries_Succeeds(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doRequest(router, http.MethodPost, "/series", "test-admin-key", models.CreateSeriesInput{
		ExternalID: "e1", Title: "T", SourceURLs: []string{"https://a.example/m"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var got models.Series
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "e1", got.ExternalID)
	assert.Len(t, got.Sources, 1)
}

func TestCreateSeries_DuplicateReturns409(t *testing.T) {
	router, _ := newTestRouter(t)
	in := models.CreateSeriesInput{ExternalID: "e2", Title: "T", SourceURLs: []string{"https://a.example/m"}}
	require.Equal(t, http.StatusCreated, doRequest(router, http.MethodPost, "/series", "test-admin-key", in).Code)
	assert.Equal(t, http.StatusConflict, doRequest(router, http.MethodPost, "/series", "test-admin-key", in).Code)
}

func TestForceScan_404ForUnknownID(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doRequest(router, http.MethodPost, "/series/does-not-exist/force-scan", "test-admin-key", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateDomain_DryRunDoesNotMutate(t *testing.T) {
	router, repo := newTestRouter(t)
	doRequest(router, http.MethodPost, "/series", "test-admin-key", models.CreateSeriesInput{
		ExternalID: "e3", Title: "T", SourceURLs: []string{"https://old.example/m"},
	})

	w := doRequest(router, http.MethodPost, "/domains/migrate", "test-admin-key", map[string]any{
		"old_domain": "old.example", "new_domain": "new.example",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["affected_count"])

	s, err := repo.GetByCatalogID(context.Background(), "e3")
	require.NoError(t, err)
	assert.Equal(t, "old.example", s.SourceDomain)
}
