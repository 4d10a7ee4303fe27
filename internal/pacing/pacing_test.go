package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFixedWaitsRoughlyTheConfiguredDelay(t *testing.T) {
	t.Parallel()

	p := NewFixed(20*time.Millisecond, 0, 0, 0)
	start := time.Now()
	require.NoError(t, p.BetweenCalls(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestFixedZeroDelayReturnsImmediately(t *testing.T) {
	t.Parallel()

	p := NewFixed(0, 0, 0, 0)
	require.NoError(t, p.BetweenCalls(context.Background()))
	require.NoError(t, p.BetweenBatches(context.Background()))
	require.NoError(t, p.RetryCooldown(context.Background()))
}

func TestFixedHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	p := NewFixed(time.Minute, 0, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, p.BetweenCalls(ctx))
}

func TestTokenBucketAllowsBurstThenBlocks(t *testing.T) {
	t.Parallel()

	p := NewTokenBucket(50*time.Millisecond, 0, 0, 2)

	start := time.Now()
	require.NoError(t, p.BetweenCalls(context.Background()))
	require.NoError(t, p.BetweenCalls(context.Background()))
	require.Less(t, time.Since(start), 40*time.Millisecond)

	require.NoError(t, p.BetweenCalls(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestNopNeverWaits(t *testing.T) {
	t.Parallel()

	var p Nop
	require.NoError(t, p.BetweenCalls(context.Background()))
	require.NoError(t, p.BetweenBatches(context.Background()))
	require.NoError(t, p.RetryCooldown(context.Background()))
}
