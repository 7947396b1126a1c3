// Package ratelimit contains tests for the per-domain limiter.
package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://fast.test/page"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitThrottlesSameDomain(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://slow.test/a"))
	}
	// Two refills at 10 rps after the initial burst token.
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestWaitDomainsIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.test/"))
	require.NoError(t, l.Wait(context.Background(), "https://b.test/"))
	require.NoError(t, l.Wait(context.Background(), "https://c.test/"))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitRespectsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://ctx.test/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://ctx.test/")
	require.Error(t, err)
}
