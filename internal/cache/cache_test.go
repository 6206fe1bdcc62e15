package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/hash/sha256"
	"github.com/quantfeed/linkharvest/internal/links"
	"github.com/quantfeed/linkharvest/internal/metrics"
	"github.com/quantfeed/linkharvest/internal/storage/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCache(t *testing.T, freshness time.Duration, clock links.Clock) (*Cache, *memory.BlobStore) {
	t.Helper()
	blobs := memory.New()
	c, err := New(NewMemoryIndex(), blobs, sha256.New(), clock, Config{Freshness: freshness}, zap.NewNop())
	require.NoError(t, err)
	return c, blobs
}

func TestLookupMissOnEmptyCache(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Hour, &fakeClock{now: time.Now()})
	_, hit := c.Lookup(context.Background(), "https://example.com/a.pdf")
	require.False(t, hit)
}

func TestCommitThenLookupHitsURLLayer(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, blobs := newTestCache(t, time.Hour, clock)

	body := []byte("%PDF-1.7 report")
	hash, _, hit, err := c.Admit(context.Background(), "https://example.com/a.pdf", body)
	require.NoError(t, err)
	require.False(t, hit)

	doc, err := c.Commit(context.Background(), "https://example.com/a.pdf", body, links.DownloadedDocument{
		ContentHash:      hash,
		ContentType:      "application/pdf",
		ExtractedText:    "report text",
		ExtractionStatus: links.ExtractionOK,
	})
	require.NoError(t, err)
	require.NotEmpty(t, doc.BlobURI)
	require.Equal(t, 1, blobs.Len())

	cached, hit := c.Lookup(context.Background(), "https://example.com/a.pdf")
	require.True(t, hit)
	require.Equal(t, hash, cached.ContentHash)
	require.Equal(t, "report text", cached.ExtractedText)
}

func TestLookupMissAfterFreshnessWindow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, _ := newTestCache(t, time.Hour, clock)

	body := []byte("payload")
	hash, _, _, err := c.Admit(context.Background(), "https://example.com/a.pdf", body)
	require.NoError(t, err)
	_, err = c.Commit(context.Background(), "https://example.com/a.pdf", body, links.DownloadedDocument{
		ContentHash:      hash,
		ExtractionStatus: links.ExtractionOK,
	})
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Hour)
	_, hit := c.Lookup(context.Background(), "https://example.com/a.pdf")
	require.False(t, hit)
}

func TestAdmitHitsContentLayerAcrossURLs(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c, _ := newTestCache(t, time.Hour, clock)

	body := []byte("identical bytes")
	hash, _, _, err := c.Admit(context.Background(), "https://a.example.com/report", body)
	require.NoError(t, err)
	_, err = c.Commit(context.Background(), "https://a.example.com/report", body, links.DownloadedDocument{
		ContentHash:      hash,
		ExtractedText:    "shared",
		ExtractionStatus: links.ExtractionOK,
	})
	require.NoError(t, err)

	// Same bytes behind a different URL dedupes on the digest.
	hash2, doc, hit, err := c.Admit(context.Background(), "https://b.example.com/mirror", body)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, hash, hash2)
	require.Equal(t, "shared", doc.ExtractedText)

	// The content hit also warms the URL layer for the second URL.
	_, hit = c.Lookup(context.Background(), "https://b.example.com/mirror")
	require.True(t, hit)
}

func TestZeroFreshnessDisablesURLLayer(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Now()}
	c, _ := newTestCache(t, 0, clock)

	body := []byte("payload")
	hash, _, _, err := c.Admit(context.Background(), "https://example.com/a", body)
	require.NoError(t, err)
	_, err = c.Commit(context.Background(), "https://example.com/a", body, links.DownloadedDocument{ContentHash: hash})
	require.NoError(t, err)

	_, hit := c.Lookup(context.Background(), "https://example.com/a")
	require.False(t, hit)
}

func TestCommitRequiresContentHash(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Hour, &fakeClock{now: time.Now()})
	_, err := c.Commit(context.Background(), "https://example.com/a", nil, links.DownloadedDocument{})
	require.Error(t, err)
}
