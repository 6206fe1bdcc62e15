// Package cache implements the two-layer deduplication cache: a URL-recency
// layer keyed by normalized URL and a content layer keyed by sha-256 digest.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantfeed/linkharvest/internal/links"
	"github.com/quantfeed/linkharvest/internal/metrics"
)

// ErrNotFound is returned by Index implementations when a key is absent.
var ErrNotFound = errors.New("cache: not found")

// URLRecord is one entry in the URL-recency layer.
type URLRecord struct {
	URL         string
	ContentHash string
	FetchedAt   time.Time
}

// Index persists both cache layers. Implementations must be safe for
// concurrent use.
type Index interface {
	LookupURL(ctx context.Context, url string) (URLRecord, error)
	RecordURL(ctx context.Context, record URLRecord) error
	LookupDocument(ctx context.Context, contentHash string) (links.DownloadedDocument, error)
	StoreDocument(ctx context.Context, doc links.DownloadedDocument) error
}

// Config captures cache tuning.
type Config struct {
	// Freshness bounds the URL-recency layer. A URL fetched within this
	// window is served from the cache without any network call.
	Freshness time.Duration `mapstructure:"freshness"`
}

// Cache coordinates the index, the blob store, and the hasher.
type Cache struct {
	index     Index
	blobs     links.BlobStore
	hasher    links.Hasher
	clock     links.Clock
	freshness time.Duration
	logger    *zap.Logger
}

// New wires a cache. A nil blob store disables artifact persistence but
// keeps both dedup layers working.
func New(index Index, blobs links.BlobStore, hasher links.Hasher, clock links.Clock, cfg Config, logger *zap.Logger) (*Cache, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		index:     index,
		blobs:     blobs,
		hasher:    hasher,
		clock:     clock,
		freshness: cfg.Freshness,
		logger:    logger,
	}, nil
}

// Lookup consults the URL-recency layer. It reports a hit only when the URL
// was fetched within the freshness window and the referenced document is
// still present in the content layer.
func (c *Cache) Lookup(ctx context.Context, url string) (links.DownloadedDocument, bool) {
	if c.freshness <= 0 {
		return links.DownloadedDocument{}, false
	}
	record, err := c.index.LookupURL(ctx, url)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("url layer lookup failed", zap.String("url", url), zap.Error(err))
		}
		return links.DownloadedDocument{}, false
	}
	if c.clock.Now().Sub(record.FetchedAt) > c.freshness {
		return links.DownloadedDocument{}, false
	}
	doc, err := c.index.LookupDocument(ctx, record.ContentHash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("content layer lookup failed",
				zap.String("content_hash", record.ContentHash), zap.Error(err))
		}
		return links.DownloadedDocument{}, false
	}
	metrics.ObserveCacheHit(string(links.CacheLayerURL))
	return doc, true
}

// Admit hashes the downloaded bytes and consults the content layer. On a hit
// it refreshes the URL layer and returns the existing document, so the
// caller skips extraction entirely. On a miss it returns the digest the
// caller must pass back to Commit.
func (c *Cache) Admit(ctx context.Context, url string, body []byte) (string, links.DownloadedDocument, bool, error) {
	hash, err := c.hasher.Hash(body)
	if err != nil {
		return "", links.DownloadedDocument{}, false, fmt.Errorf("hash body: %w", err)
	}
	doc, err := c.index.LookupDocument(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return hash, links.DownloadedDocument{}, false, nil
		}
		return hash, links.DownloadedDocument{}, false, fmt.Errorf("content layer lookup: %w", err)
	}
	metrics.ObserveCacheHit(string(links.CacheLayerContent))
	if err := c.recordURL(ctx, url, hash); err != nil {
		c.logger.Warn("url layer record failed", zap.String("url", url), zap.Error(err))
	}
	return hash, doc, true, nil
}

// Commit persists a newly extracted document: blob first, then the content
// layer, then the URL layer. Index failures are returned; a blob failure is
// logged and the document is stored without a blob URI so dedup still works.
func (c *Cache) Commit(ctx context.Context, url string, body []byte, doc links.DownloadedDocument) (links.DownloadedDocument, error) {
	if doc.ContentHash == "" {
		return doc, fmt.Errorf("content hash is required")
	}
	if doc.FirstSeenAt.IsZero() {
		doc.FirstSeenAt = c.clock.Now()
	}
	if c.blobs != nil {
		uri, err := c.blobs.PutObject(ctx, blobPath(doc.ContentHash), doc.ContentType, body)
		if err != nil {
			c.logger.Warn("blob write failed",
				zap.String("content_hash", doc.ContentHash), zap.Error(err))
		} else {
			doc.BlobURI = uri
		}
	}
	if err := c.index.StoreDocument(ctx, doc); err != nil {
		return doc, fmt.Errorf("store document: %w", err)
	}
	if err := c.recordURL(ctx, url, doc.ContentHash); err != nil {
		return doc, fmt.Errorf("record url: %w", err)
	}
	return doc, nil
}

func (c *Cache) recordURL(ctx context.Context, url, hash string) error {
	return c.index.RecordURL(ctx, URLRecord{
		URL:         url,
		ContentHash: hash,
		FetchedAt:   c.clock.Now(),
	})
}

func blobPath(hash string) string {
	if len(hash) < 4 {
		return "documents/" + hash
	}
	return fmt.Sprintf("documents/%s/%s/%s", hash[:2], hash[2:4], hash)
}
