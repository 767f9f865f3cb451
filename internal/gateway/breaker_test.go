package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(failMax int, resetTimeout time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(failMax, resetTimeout)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 20*time.Second)

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow(), "request %d should pass while closed", i)
		b.Failure()
	}

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow(), "open breaker must short-circuit")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, 20*time.Second)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	assert.Equal(t, StateClosed, b.State(), "non-consecutive failures must not open")
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(2, 20*time.Second)

	b.Failure()
	b.Failure()
	require.False(t, b.Allow())

	*now = now.Add(21 * time.Second)
	assert.True(t, b.Allow(), "one probe allowed after reset timeout")
	assert.False(t, b.Allow(), "only a single probe in half-open")
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(2, 20*time.Second)

	b.Failure()
	b.Failure()
	*now = now.Add(21 * time.Second)
	require.True(t, b.Allow())
	b.Success()

	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(2, 20*time.Second)

	b.Failure()
	b.Failure()
	*now = now.Add(21 * time.Second)
	require.True(t, b.Allow())
	b.Failure()

	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	// The reset clock restarts from the probe failure.
	*now = now.Add(21 * time.Second)
	assert.True(t, b.Allow())
}
