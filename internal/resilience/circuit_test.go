package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fills-ai/payments-api/internal/resilience"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestBreakerTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "transitions",
		MinRequests:  2,
		FailureRatio: 0.5,
		OpenFor:      time.Second,
	}).WithClock(clock.Now)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Closed, breaker.State())

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())
	require.False(t, breaker.Allow(ctx))

	clock.Advance(time.Second)
	require.True(t, breaker.Allow(ctx))
	require.Equal(t, resilience.HalfOpen, breaker.State())
	require.False(t, breaker.Allow(ctx), "only one probe while half-open")

	breaker.Report(ctx, true)
	require.Equal(t, resilience.Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:      "probe",
		MinRequests: 1,
		OpenFor:     time.Minute,
	}).WithClock(clock.Now)
	ctx := context.Background()

	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())

	clock.Advance(time.Minute)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.State())

	clock.Advance(30 * time.Second)
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "ratio",
		MinRequests:  4,
		FailureRatio: 0.5,
	})
	ctx := context.Background()

	breaker.Report(ctx, true)
	breaker.Report(ctx, true)
	breaker.Report(ctx, true)
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Closed, breaker.State())
}
