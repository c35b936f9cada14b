// Package monitor runs the background watch loop: time-of-day polling
// policies, adaptive alert thresholds, and the scheduler that drives
// fetch, tag, score, and persist for every watchlist asset.
package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/signalwatch/signalwatch/internal/model"
)

// Policy names.
const (
	PolicyPreMarket  = "pre_market"
	PolicyMarketOpen = "market_open"
	PolicyAfterClose = "after_close"
	PolicyNightWatch = "night_watch"
)

// DefaultPolicies returns the built-in trading-day schedule. The night
// watch window wraps past midnight.
func DefaultPolicies() []model.MonitoringPolicy {
	return []model.MonitoringPolicy{
		{Name: PolicyPreMarket, Start: "08:00", End: "09:00", Interval: 180 * time.Second},
		{Name: PolicyMarketOpen, Start: "09:00", End: "15:30", Interval: 60 * time.Second},
		{Name: PolicyAfterClose, Start: "15:30", End: "18:00", Interval: 300 * time.Second},
		{Name: PolicyNightWatch, Start: "18:00", End: "08:00", Interval: 1800 * time.Second},
	}
}

// DefaultProfiles returns the per-policy adaptive tuning, derived from a
// base profile. Busy windows tolerate more alerts before tightening.
func DefaultProfiles(base model.AdaptiveProfile) map[string]model.AdaptiveProfile {
	preMarket := base
	preMarket.Target, preMarket.Band, preMarket.MaxBound = 2, 1, 70

	marketOpen := base
	marketOpen.Target, marketOpen.MaxBound = 4, 80

	afterClose := base
	afterClose.Target, afterClose.MinBound, afterClose.MaxBound = 2, 5, 80

	nightWatch := base
	nightWatch.Target, nightWatch.Band, nightWatch.MinBound, nightWatch.MaxBound = 1, 0, 10, 90

	return map[string]model.AdaptiveProfile{
		PolicyPreMarket:  preMarket,
		PolicyMarketOpen: marketOpen,
		PolicyAfterClose: afterClose,
		PolicyNightWatch: nightWatch,
	}
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock %q: bad hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock %q: bad minute", s)
	}
	return hour*60 + minute, nil
}

// ResolvePolicy picks the policy whose window contains now. Windows are
// half-open [start, end); a window with start > end wraps past midnight.
// When nothing matches the last policy wins as a catch-all.
func ResolvePolicy(now time.Time, policies []model.MonitoringPolicy) model.MonitoringPolicy {
	if len(policies) == 0 {
		return model.MonitoringPolicy{Name: PolicyNightWatch, Interval: 1800 * time.Second}
	}

	cur := now.Hour()*60 + now.Minute()
	for _, p := range policies {
		start, err := parseClock(p.Start)
		if err != nil {
			continue
		}
		end, err := parseClock(p.End)
		if err != nil {
			continue
		}

		if start > end {
			if cur >= start || cur < end {
				return p
			}
			continue
		}
		if cur >= start && cur < end {
			return p
		}
	}

	return policies[len(policies)-1]
}
