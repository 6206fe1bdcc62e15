package links

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrAutomationUnavailable is returned by the stub automation fetcher when
// tiers 3-5 are dispatched with automation disabled. The dispatcher turns it
// into an explicit failed result rather than a silent skip.
var ErrAutomationUnavailable = errors.New("automation_unavailable")

// Fetcher retrieves a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes batch completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for content-addressed deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// HTTPError reports a non-success status code from a fetch. The retry policy
// inspects it to separate transient (5xx) from permanent (4xx) failures.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.StatusCode, e.URL)
}

// Temporary reports whether the status code is worth retrying.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests
}
