package server

import (
	"sync"
	"time"

	"github.com/signalwatch/signalwatch/internal/common"
)

// rateLimiter enforces a sliding-window cap per action and actor.
type rateLimiter struct {
	hits   map[string][]time.Time
	max    int
	window time.Duration
	mu     sync.Mutex
	now    func() time.Time
}

func newRateLimiter(maxHits int, window time.Duration) *rateLimiter {
	if maxHits <= 0 {
		maxHits = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		hits:   make(map[string][]time.Time),
		max:    maxHits,
		window: window,
		now:    time.Now,
	}
}

// allow records one hit, or returns a RateLimitError telling the caller
// when the oldest hit inside the window expires.
func (r *rateLimiter) allow(action, actor string) error {
	key := action + "|" + actor
	now := r.now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	recent := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.max {
		r.hits[key] = recent
		return &common.RateLimitError{
			Action:     action,
			RetryAfter: recent[0].Add(r.window).Sub(now),
		}
	}

	r.hits[key] = append(recent, now)
	return nil
}
