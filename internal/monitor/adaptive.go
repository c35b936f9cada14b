package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalwatch/signalwatch/internal/model"
)

// Controller tunes the effective minimum alert score per policy. When a
// cycle produces more alerts than the target band tolerates the threshold
// rises; a quiet cycle lowers it again, inside the profile's bounds.
type Controller struct {
	profiles map[string]model.AdaptiveProfile
	scores   map[string]int
	baseline int
	mu       sync.Mutex
}

// NewController creates a controller. baseline is the starting threshold
// for every policy.
func NewController(profiles map[string]model.AdaptiveProfile, baseline int) *Controller {
	c := &Controller{
		profiles: make(map[string]model.AdaptiveProfile, len(profiles)),
		scores:   make(map[string]int, len(profiles)),
		baseline: baseline,
	}
	for name, profile := range profiles {
		c.profiles[name] = profile
		c.scores[name] = clampScore(baseline, profile)
	}
	return c
}

// Threshold returns the current effective minimum score for a policy.
// Disabled or unknown policies always use the static baseline, never a
// stored adaptive value.
func (c *Controller) Threshold(policy string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	profile, ok := c.profiles[policy]
	if !ok || !profile.Enabled {
		return c.baseline
	}
	return c.scores[policy]
}

// Decide adjusts the policy's threshold from one cycle's alert count and
// returns the decision taken.
func (c *Controller) Decide(policy string, alertCount int) model.AdaptiveDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	decision := model.AdaptiveDecision{
		DecidedAt: time.Now().UTC(),
		Policy:    policy,
		Direction: model.AdaptiveHold,
	}

	profile, ok := c.profiles[policy]
	if !ok || !profile.Enabled {
		decision.OldScore = c.baseline
		decision.NewScore = c.baseline
		decision.Reason = "adaptive disabled"
		return decision
	}

	old := c.scores[policy]
	decision.OldScore = old
	decision.NewScore = old

	lower := profile.Target - profile.Band
	if lower < 0 {
		lower = 0
	}
	upper := profile.Target + profile.Band

	switch {
	case alertCount > upper:
		decision.Direction = model.AdaptiveUp
		decision.NewScore = clampScore(old+profile.Step, profile)
		decision.Reason = fmt.Sprintf("%d alerts above target %d+%d", alertCount, profile.Target, profile.Band)
	case alertCount < lower:
		decision.Direction = model.AdaptiveDown
		decision.NewScore = clampScore(old-profile.Step, profile)
		decision.Reason = fmt.Sprintf("%d alerts below target %d-%d", alertCount, profile.Target, profile.Band)
	default:
		decision.Reason = fmt.Sprintf("%d alerts inside target band", alertCount)
	}

	if decision.NewScore == old {
		// Bound-pinned adjustments are holds, not phantom moves
		decision.Direction = model.AdaptiveHold
	}
	c.scores[policy] = decision.NewScore
	return decision
}

// UpdateProfile replaces one policy's profile, clamping the current
// threshold into the new bounds.
func (c *Controller) UpdateProfile(policy string, profile model.AdaptiveProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[policy] = profile
	if score, ok := c.scores[policy]; ok {
		c.scores[policy] = clampScore(score, profile)
	} else {
		c.scores[policy] = clampScore(c.baseline, profile)
	}
}

// Reset returns a policy's threshold to the baseline. An empty policy
// resets every policy.
func (c *Controller) Reset(policy string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if policy == "" {
		for name, profile := range c.profiles {
			c.scores[name] = clampScore(c.baseline, profile)
		}
		return
	}
	if profile, ok := c.profiles[policy]; ok {
		c.scores[policy] = clampScore(c.baseline, profile)
	}
}

// Snapshot reports every policy's profile and current threshold.
func (c *Controller) Snapshot() map[string]PolicyState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]PolicyState, len(c.profiles))
	for name, profile := range c.profiles {
		out[name] = PolicyState{Profile: profile, Threshold: c.scores[name]}
	}
	return out
}

// PolicyState pairs a policy's adaptive profile with its live threshold.
type PolicyState struct {
	Profile   model.AdaptiveProfile `json:"profile"`
	Threshold int                   `json:"threshold"`
}

func clampScore(score int, profile model.AdaptiveProfile) int {
	if score < profile.MinBound {
		return profile.MinBound
	}
	if profile.MaxBound > 0 && score > profile.MaxBound {
		return profile.MaxBound
	}
	return score
}
