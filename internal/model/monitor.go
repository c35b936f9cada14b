package model

import (
	"time"
)

// MonitoringPolicy names a time-of-day window and the poll interval used
// inside it. Windows where Start > End wrap past midnight.
type MonitoringPolicy struct {
	Name     string        `json:"name"`
	Start    string        `json:"start"` // "HH:MM"
	End      string        `json:"end"`   // "HH:MM"
	Interval time.Duration `json:"interval"`
}

// AdaptiveProfile holds the threshold-tuning parameters for one policy.
type AdaptiveProfile struct {
	Enabled  bool `json:"enabled"`
	Target   int  `json:"target"`
	Band     int  `json:"band"`
	Step     int  `json:"step"`
	MinBound int  `json:"min_bound"`
	MaxBound int  `json:"max_bound"`
}

// AdaptiveDecision records one threshold adjustment after a cycle.
type AdaptiveDecision struct {
	DecidedAt time.Time `json:"decided_at"`
	Policy    string    `json:"policy"`
	Direction string    `json:"direction"`
	Reason    string    `json:"reason"`
	OldScore  int       `json:"old_score"`
	NewScore  int       `json:"new_score"`
}

// Adaptive direction constants.
const (
	AdaptiveUp   = "up"
	AdaptiveDown = "down"
	AdaptiveHold = "hold"
)
