package lightweight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/linkharvest/internal/links"
)

func TestFetchCapturesBodyAndContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "linkharvest-test", Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), links.FetchRequest{URL: srv.URL + "/report.pdf"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/pdf", resp.ContentType)
	require.Equal(t, []byte("%PDF-1.7 fake"), resp.Body)
	require.False(t, resp.UsedAutomation)
	require.Greater(t, resp.Duration, time.Duration(0))
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("landed"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second})
	resp, err := f.Fetch(context.Background(), links.FetchRequest{URL: srv.URL + "/start"})
	require.NoError(t, err)
	require.Equal(t, "landed", string(resp.Body))
	require.Contains(t, resp.URL, "/final")
}

func TestFetchReturnsHTTPErrorForStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second})
	_, err := f.Fetch(context.Background(), links.FetchRequest{URL: srv.URL + "/missing.pdf"})
	require.Error(t, err)

	var httpErr *links.HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(ctx, links.FetchRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestCopyHeaders(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(links.FetchRequest{Headers: http.Header{"X-Trace": {"yes"}}}, collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	empty := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(links.FetchRequest{}, empty)
	require.Empty(t, *empty.Headers)
}
