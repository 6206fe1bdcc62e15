// Package ratelimit implements the fetch governor: bounded concurrency for
// both fetch backends plus per-host politeness delays.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfeed/linkharvest/internal/metrics"
)

// Config holds governor limits. Both concurrency limits must be positive;
// construction fails otherwise (the subsystem's only fatal error path).
type Config struct {
	GlobalConcurrency     int
	AutomationConcurrency int
	PerHostDelay          time.Duration
	PerHostRPS            float64
}

// Governor bounds in-flight fetches and enforces per-host politeness. A
// fetch must hold a slot and satisfy the host delay before proceeding.
type Governor struct {
	lightweight chan struct{}
	automation  chan struct{}
	delay       time.Duration
	hostRate    rate.Limit

	mu       sync.Mutex
	last     map[string]time.Time
	limiters map[string]*rate.Limiter
}

// New validates limits and builds a Governor.
func New(cfg Config) (*Governor, error) {
	if cfg.GlobalConcurrency <= 0 {
		return nil, fmt.Errorf("global concurrency limit must be > 0, got %d", cfg.GlobalConcurrency)
	}
	if cfg.AutomationConcurrency <= 0 {
		return nil, fmt.Errorf("automation concurrency limit must be > 0, got %d", cfg.AutomationConcurrency)
	}
	if cfg.PerHostDelay < 0 {
		return nil, fmt.Errorf("per-host delay must be >= 0, got %s", cfg.PerHostDelay)
	}

	hostRate := rate.Inf
	if cfg.PerHostRPS > 0 {
		hostRate = rate.Limit(cfg.PerHostRPS)
	}

	return &Governor{
		lightweight: make(chan struct{}, cfg.GlobalConcurrency),
		automation:  make(chan struct{}, cfg.AutomationConcurrency),
		delay:       cfg.PerHostDelay,
		hostRate:    hostRate,
		last:        make(map[string]time.Time),
		limiters:    make(map[string]*rate.Limiter),
	}, nil
}

// AcquireLightweight blocks for a lightweight slot plus host politeness.
// The returned release function must be called when the fetch completes.
func (g *Governor) AcquireLightweight(ctx context.Context, host string) (func(), error) {
	return g.acquire(ctx, g.lightweight, host)
}

// AcquireAutomation blocks for an automation slot plus host politeness.
// Automation sessions are resource-heavy, so this semaphore is smaller and
// independent of the lightweight one.
func (g *Governor) AcquireAutomation(ctx context.Context, host string) (func(), error) {
	return g.acquire(ctx, g.automation, host)
}

func (g *Governor) acquire(ctx context.Context, sem chan struct{}, host string) (func(), error) {
	start := time.Now()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch slot wait canceled: %w", ctx.Err())
	}

	if err := g.waitPoliteness(ctx, host); err != nil {
		<-sem
		return nil, err
	}

	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}

	release := func() { <-sem }
	return release, nil
}

// waitPoliteness enforces the minimum inter-request delay and token-bucket
// rate for the host, independent of the concurrency bound.
func (g *Governor) waitPoliteness(ctx context.Context, host string) error {
	host = strings.ToLower(host)
	if host == "" {
		host = "unknown"
	}

	var sleep time.Duration
	var limiter *rate.Limiter
	now := time.Now()

	g.mu.Lock()
	if g.delay > 0 {
		if last, ok := g.last[host]; ok {
			if rest := last.Add(g.delay).Sub(now); rest > 0 {
				sleep = rest
			}
		}
	}
	if g.hostRate != rate.Inf {
		limiter = g.hostLimiterLocked(host)
	}
	// Reserve the slot eagerly so a concurrent acquirer for the same host
	// queues behind this one rather than racing it.
	g.last[host] = now.Add(sleep)
	g.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("politeness wait canceled: %w", ctx.Err())
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return nil
}

func (g *Governor) hostLimiterLocked(host string) *rate.Limiter {
	limiter, ok := g.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(g.hostRate, 1)
		g.limiters[host] = limiter
	}
	return limiter
}
