package server

import (
	"errors"
	"testing"
	"time"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(2, time.Minute)
	limiter.now = func() time.Time { return now }

	require.NoError(t, limiter.allow("prune", "alice"))
	require.NoError(t, limiter.allow("prune", "alice"))

	err := limiter.allow("prune", "alice")
	var rateErr *common.RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, "prune", rateErr.Action)
	assert.Equal(t, time.Minute, rateErr.RetryAfter)

	// Other actors and actions have their own windows
	assert.NoError(t, limiter.allow("prune", "bob"))
	assert.NoError(t, limiter.allow("trust_set", "alice"))

	// Advancing past the window frees the slot
	now = now.Add(61 * time.Second)
	assert.NoError(t, limiter.allow("prune", "alice"))
}

func TestRateLimiterRetryAfterShrinks(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(1, time.Minute)
	limiter.now = func() time.Time { return now }

	require.NoError(t, limiter.allow("x", "a"))

	now = now.Add(40 * time.Second)
	err := limiter.allow("x", "a")
	var rateErr *common.RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 20*time.Second, rateErr.RetryAfter)
}
