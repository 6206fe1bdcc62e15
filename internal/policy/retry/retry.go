// Package retry classifies fetch failures and schedules jittered backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/quantfeed/linkharvest/internal/links"
)

// Class partitions fetch failures by retryability.
type Class int

// Failure classes.
const (
	// Transient failures (timeouts, connection resets, 5xx) are retried.
	Transient Class = iota
	// Permanent failures (most 4xx, unsupported content) are not.
	Permanent
)

// Policy implements bounded retry with jittered exponential backoff.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Config tunes the retry policy.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// New builds a Policy; zero durations get sane defaults.
func New(cfg Config) *Policy {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Policy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
	}
}

// MaxRetries returns the configured retry bound.
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// Classify decides whether err is worth another attempt. hasAuthToken marks
// tier-2 endpoints, where 401/403 responses often mean a throttled or
// not-yet-activated token rather than a permanently dead link.
func Classify(err error, hasAuthToken bool) Class {
	if err == nil {
		return Permanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent
	}

	var httpErr *links.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Temporary() {
			return Transient
		}
		if hasAuthToken &&
			(httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden) {
			return Transient
		}
		return Permanent
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Transient
		}
	}

	// Unknown network-ish failures default to one more try.
	return Transient
}

// ShouldRetry reports whether another attempt is allowed for this failure.
// attempt is zero-based: the first retry is attempt 0.
func (p *Policy) ShouldRetry(err error, attempt int, hasAuthToken bool) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	return Classify(err, hasAuthToken) == Transient
}

// Backoff returns the jittered wait before retry number attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Wait sleeps for the attempt's backoff, honoring context cancellation.
func (p *Policy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
