package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantfeed/linkharvest/internal/config"
	"github.com/quantfeed/linkharvest/internal/links"
	"github.com/quantfeed/linkharvest/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeProcessor struct {
	summary links.ProcessingSummary
	err     error
	gotDoc  links.Document
}

func (f *fakeProcessor) Process(_ context.Context, doc links.Document) (links.ProcessingSummary, error) {
	f.gotDoc = doc
	return f.summary, f.err
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeProcessor{}, nil, testConfig(t))

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeProcessor{}, nil, testConfig(t))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitBatchReturnsSummary(t *testing.T) {
	t.Parallel()

	processor := &fakeProcessor{
		summary: links.ProcessingSummary{BatchID: "batch-1", Extracted: 2, Succeeded: 2},
	}
	server := NewServer(processor, nil, testConfig(t))

	body := `{"markup":"<a href=\"https://example.com/a.pdf\">a</a>","base_url":"https://example.com"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body))
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "https://example.com", processor.gotDoc.BaseURL)

	var got links.ProcessingSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "batch-1", got.BatchID)
	require.Equal(t, 2, got.Succeeded)
}

func TestSubmitBatchRejectsBadRequests(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeProcessor{}, nil, testConfig(t))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader("{not json")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(`{"markup":"  "}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	server := NewServer(&fakeProcessor{}, nil, cfg)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
