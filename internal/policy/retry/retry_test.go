package retry

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantfeed/linkharvest/internal/links"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		err   error
		token bool
		want  Class
	}{
		{"timeout is transient", timeoutErr{}, false, Transient},
		{"connection reset is transient", syscall.ECONNRESET, false, Transient},
		{"5xx is transient", &links.HTTPError{StatusCode: http.StatusBadGateway}, false, Transient},
		{"429 is transient", &links.HTTPError{StatusCode: http.StatusTooManyRequests}, false, Transient},
		{"404 is permanent", &links.HTTPError{StatusCode: http.StatusNotFound}, false, Permanent},
		{"401 without token is permanent", &links.HTTPError{StatusCode: http.StatusUnauthorized}, false, Permanent},
		{"401 with token is transient", &links.HTTPError{StatusCode: http.StatusUnauthorized}, true, Transient},
		{"403 with token is transient", &links.HTTPError{StatusCode: http.StatusForbidden}, true, Transient},
		{"context cancellation is permanent", context.Canceled, false, Permanent},
		{"deadline exceeded is permanent", context.DeadlineExceeded, false, Permanent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Classify(tc.err, tc.token))
		})
	}
}

func TestShouldRetryBound(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: 2})
	transient := &links.HTTPError{StatusCode: http.StatusInternalServerError}

	require.True(t, p.ShouldRetry(transient, 0, false))
	require.True(t, p.ShouldRetry(transient, 1, false))
	require.False(t, p.ShouldRetry(transient, 2, false))
	require.False(t, p.ShouldRetry(nil, 0, false))
	require.False(t, p.ShouldRetry(errors.New("x"), 3, false))
}

func TestPermanentNeverRetried(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: 5})
	require.False(t, p.ShouldRetry(&links.HTTPError{StatusCode: http.StatusNotFound}, 0, false))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	for attempt := 0; attempt < 6; attempt++ {
		b := p.Backoff(attempt)
		require.Greater(t, b, time.Duration(0))
		require.LessOrEqual(t, b, time.Second)
	}
	// First backoff stays within [base/2, base).
	b0 := p.Backoff(0)
	require.GreaterOrEqual(t, b0, 50*time.Millisecond)
	require.Less(t, b0, 100*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxRetries: 1, BaseDelay: time.Minute, MaxDelay: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, p.Wait(ctx, 0))
}
