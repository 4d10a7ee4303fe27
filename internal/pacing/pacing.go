// Package pacing implements injectable pacing policies for spacing outbound
// generator calls.
package pacing

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Fixed spaces calls with constant delays, optionally jittered. This mirrors
// the sleep-based pacing the refresh loop has always used.
type Fixed struct {
	callDelay  time.Duration
	batchDelay time.Duration
	retryDelay time.Duration
	jitter     time.Duration
}

// NewFixed builds a fixed-interval policy.
func NewFixed(callDelay, batchDelay, retryDelay, jitter time.Duration) *Fixed {
	return &Fixed{
		callDelay:  callDelay,
		batchDelay: batchDelay,
		retryDelay: retryDelay,
		jitter:     jitter,
	}
}

// BetweenCalls waits the inter-call delay.
func (p *Fixed) BetweenCalls(ctx context.Context) error {
	return sleep(ctx, p.callDelay+p.randomJitter())
}

// BetweenBatches waits the inter-batch delay.
func (p *Fixed) BetweenBatches(ctx context.Context) error {
	return sleep(ctx, p.batchDelay+p.randomJitter())
}

// RetryCooldown waits before the first retry round.
func (p *Fixed) RetryCooldown(ctx context.Context) error {
	return sleep(ctx, p.retryDelay)
}

func (p *Fixed) randomJitter() time.Duration {
	if p.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(p.jitter)))
}

// TokenBucket paces calls through a rate limiter instead of fixed sleeps,
// so bursts after idle periods are allowed up to the configured burst.
type TokenBucket struct {
	limiter    *rate.Limiter
	batchDelay time.Duration
	retryDelay time.Duration
}

// NewTokenBucket builds a token-bucket policy. callDelay defines the refill
// interval (one token per callDelay).
func NewTokenBucket(callDelay, batchDelay, retryDelay time.Duration, burst int) *TokenBucket {
	limit := rate.Inf
	if callDelay > 0 {
		limit = rate.Every(callDelay)
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		limiter:    rate.NewLimiter(limit, burst),
		batchDelay: batchDelay,
		retryDelay: retryDelay,
	}
}

// BetweenCalls blocks until a token is available, respecting the context.
func (p *TokenBucket) BetweenCalls(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// BetweenBatches waits the inter-batch delay.
func (p *TokenBucket) BetweenBatches(ctx context.Context) error {
	return sleep(ctx, p.batchDelay)
}

// RetryCooldown waits before the first retry round.
func (p *TokenBucket) RetryCooldown(ctx context.Context) error {
	return sleep(ctx, p.retryDelay)
}

// Nop never waits. Used for targeted runs and tests.
type Nop struct{}

// BetweenCalls returns immediately.
func (Nop) BetweenCalls(context.Context) error { return nil }

// BetweenBatches returns immediately.
func (Nop) BetweenBatches(context.Context) error { return nil }

// RetryCooldown returns immediately.
func (Nop) RetryCooldown(context.Context) error { return nil }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
