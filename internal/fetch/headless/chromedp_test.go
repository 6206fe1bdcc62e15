package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/linkharvest/internal/links"
)

func TestTierActions(t *testing.T) {
	t.Parallel()

	// Tier 3 waits; tiers 4 and 5 add interaction steps on top.
	render := tierActions(links.TierRendered)
	form := tierActions(links.TierFormSubmit)
	multi := tierActions(links.TierMultiPage)

	require.Len(t, render, 2)
	require.Greater(t, len(form), len(render))
	require.Greater(t, len(multi), len(render))

	// Unknown tiers fall back to the render strategy.
	require.Len(t, tierActions(links.TierStaticFile), 2)
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	require.Len(t, src["X-Test"], 2)

	netHeaders := toNetworkHeaders(src)
	values, ok := netHeaders["X-Test"].([]string)
	require.True(t, ok)
	require.Len(t, values, 2)
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  204,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"Content-Type": "text/html"},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 204, status)
	require.Equal(t, "text/html", headers.Get("Content-Type"))
	require.Equal(t, "https://example.com/rendered", url)

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)
}

func TestUnavailableFetcher(t *testing.T) {
	t.Parallel()

	fetcher := NewUnavailable()
	_, err := fetcher.Fetch(context.Background(), links.FetchRequest{URL: "https://x.example"})
	require.True(t, errors.Is(err, links.ErrAutomationUnavailable))
}
