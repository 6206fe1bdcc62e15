package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/linkharvest/internal/cache"
	"github.com/quantfeed/linkharvest/internal/links"
)

func TestRecordURLUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewIndexStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO url_fetches").
		WithArgs("https://example.com/a.pdf", "abc123", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.RecordURL(context.Background(), cache.URLRecord{
		URL:         "https://example.com/a.pdf",
		ContentHash: "abc123",
		FetchedAt:   now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupURLReturnsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewIndexStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT content_hash, fetched_at FROM url_fetches").
		WithArgs("https://example.com/a.pdf").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash", "fetched_at"}).
			AddRow("abc123", now))

	record, err := store.LookupURL(context.Background(), "https://example.com/a.pdf")
	require.NoError(t, err)
	require.Equal(t, "abc123", record.ContentHash)
	require.Equal(t, now, record.FetchedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupURLNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewIndexStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT content_hash, fetched_at FROM url_fetches").
		WithArgs("https://example.com/missing").
		WillReturnRows(pgxmock.NewRows([]string{"content_hash", "fetched_at"}))

	_, err = store.LookupURL(context.Background(), "https://example.com/missing")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStoreDocumentInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewIndexStoreWithPool(mock)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	doc := links.DownloadedDocument{
		ContentHash:      "abc123",
		BlobURI:          "gs://bucket/documents/ab/c1/abc123",
		ContentType:      "application/pdf",
		ExtractedText:    "report text",
		ExtractionStatus: links.ExtractionOK,
		FirstSeenAt:      now,
	}
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(doc.ContentHash, doc.BlobURI, doc.ContentType, doc.ExtractedText, doc.ExtractionStatus, doc.FirstSeenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreDocument(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupDocumentNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewIndexStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT blob_uri, content_type, extracted_text, extraction_status, first_seen_at").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"blob_uri", "content_type", "extracted_text", "extraction_status", "first_seen_at"}))

	_, err = store.LookupDocument(context.Background(), "missing")
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStoreDocumentRequiresHash(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewIndexStoreWithPool(mock)
	require.NoError(t, err)

	err = store.StoreDocument(context.Background(), links.DownloadedDocument{})
	require.Error(t, err)
}
