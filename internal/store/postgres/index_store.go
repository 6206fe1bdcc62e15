// Package postgres provides the Postgres-backed cache index.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfeed/linkharvest/internal/cache"
	"github.com/quantfeed/linkharvest/internal/links"
)

// IndexStoreConfig controls the Postgres connection pool backing the index.
type IndexStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// IndexStore persists both cache layers in Postgres. Schema:
//
//	CREATE TABLE url_fetches (
//		url          TEXT PRIMARY KEY,
//		content_hash TEXT NOT NULL,
//		fetched_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE documents (
//		content_hash      TEXT PRIMARY KEY,
//		blob_uri          TEXT,
//		content_type      TEXT,
//		extracted_text    TEXT,
//		extraction_status TEXT NOT NULL,
//		first_seen_at     TIMESTAMPTZ NOT NULL
//	);
type IndexStore struct {
	pool querier
}

// NewIndexStore creates a Postgres-backed index using the provided config.
func NewIndexStore(ctx context.Context, cfg IndexStoreConfig) (*IndexStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &IndexStore{pool: pool}, nil
}

// NewIndexStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewIndexStoreWithPool(pool querier) (*IndexStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &IndexStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *IndexStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// LookupURL returns the recency record for a normalized URL.
func (s *IndexStore) LookupURL(ctx context.Context, url string) (cache.URLRecord, error) {
	record := cache.URLRecord{URL: url}
	err := s.pool.QueryRow(ctx,
		`SELECT content_hash, fetched_at FROM url_fetches WHERE url = $1`, url).
		Scan(&record.ContentHash, &record.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cache.URLRecord{}, cache.ErrNotFound
		}
		return cache.URLRecord{}, fmt.Errorf("lookup url: %w", err)
	}
	return record, nil
}

// RecordURL upserts the recency record; a refetch overwrites the old row.
func (s *IndexStore) RecordURL(ctx context.Context, record cache.URLRecord) error {
	if record.URL == "" {
		return fmt.Errorf("url is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO url_fetches (url, content_hash, fetched_at)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET
	content_hash = EXCLUDED.content_hash,
	fetched_at = EXCLUDED.fetched_at`,
		record.URL, record.ContentHash, record.FetchedAt)
	if err != nil {
		return fmt.Errorf("record url: %w", err)
	}
	return nil
}

// LookupDocument returns the content-addressed document for a digest.
func (s *IndexStore) LookupDocument(ctx context.Context, contentHash string) (links.DownloadedDocument, error) {
	doc := links.DownloadedDocument{ContentHash: contentHash}
	err := s.pool.QueryRow(ctx, `
SELECT blob_uri, content_type, extracted_text, extraction_status, first_seen_at
FROM documents WHERE content_hash = $1`, contentHash).
		Scan(&doc.BlobURI, &doc.ContentType, &doc.ExtractedText, &doc.ExtractionStatus, &doc.FirstSeenAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return links.DownloadedDocument{}, cache.ErrNotFound
		}
		return links.DownloadedDocument{}, fmt.Errorf("lookup document: %w", err)
	}
	return doc, nil
}

// StoreDocument inserts a content-addressed document. The first writer wins;
// a concurrent duplicate is a no-op.
func (s *IndexStore) StoreDocument(ctx context.Context, doc links.DownloadedDocument) error {
	if doc.ContentHash == "" {
		return fmt.Errorf("content hash is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (content_hash, blob_uri, content_type, extracted_text, extraction_status, first_seen_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (content_hash) DO NOTHING`,
		doc.ContentHash, doc.BlobURI, doc.ContentType, doc.ExtractedText, doc.ExtractionStatus, doc.FirstSeenAt)
	if err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}
