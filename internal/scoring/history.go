package scoring

import (
	"sync"
)

// topicHistory keeps a bounded window of unique-topic counts per asset,
// used to detect volume surges against the recent baseline.
type topicHistory struct {
	counts map[string][]int
	slots  int
	mu     sync.Mutex
}

func newTopicHistory(slots int) *topicHistory {
	if slots <= 0 {
		slots = 40
	}
	return &topicHistory{
		counts: make(map[string][]int),
		slots:  slots,
	}
}

// average returns the mean of the recorded counts for an asset and whether
// any observations exist.
func (h *topicHistory) average(assetCode string) (float64, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := h.counts[assetCode]
	if len(window) == 0 {
		return 0, false
	}

	sum := 0
	for _, c := range window {
		sum += c
	}
	return float64(sum) / float64(len(window)), true
}

// observe appends a count, evicting the oldest entry once full.
func (h *topicHistory) observe(assetCode string, count int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := append(h.counts[assetCode], count)
	if len(window) > h.slots {
		window = window[len(window)-h.slots:]
	}
	h.counts[assetCode] = window
}

// size returns the number of observations recorded for an asset.
func (h *topicHistory) size(assetCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.counts[assetCode])
}
