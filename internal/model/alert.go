package model

import (
	"time"
)

// DeliveryLevel determines how an alert reaches the user.
type DeliveryLevel string

// Delivery level constants, ordered from most to least urgent.
const (
	DeliveryPushImmediate DeliveryLevel = "push_immediate"
	DeliveryInApp         DeliveryLevel = "in_app"
	DeliveryDailyDigest   DeliveryLevel = "daily_digest"
)

// Priority is the coarse urgency attached to a delivery level.
type Priority string

// Priority constants.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ScoreResult is the outcome of one importance-scoring pass for an asset.
type ScoreResult struct {
	Metrics       ScoreMetrics  `json:"metrics"`
	DeliveryLevel DeliveryLevel `json:"delivery_level"`
	Priority      Priority      `json:"priority"`
	Reasons       []string      `json:"reasons"`
	Score         int           `json:"score"`
}

// ScoreMetrics carries the intermediate quantities behind a score, for
// display and debugging.
type ScoreMetrics struct {
	FeedbackSummary *FeedbackSignal `json:"feedback_summary,omitempty"`
	ImpactKeywords  []string        `json:"impact_keywords,omitempty"`
	RawCount        int             `json:"raw_count"`
	UniqueCount     int             `json:"unique_count"`
	SourceCount     int             `json:"source_count"`
	PositiveCount   int             `json:"positive_count"`
	NegativeCount   int             `json:"negative_count"`
	TopicRatio      float64         `json:"topic_ratio"`
	SurgeRatio      float64         `json:"surge_ratio"`
	RollingAverage  float64         `json:"rolling_average"`
}

// Alert is a scored news burst for a watched asset, persisted to history
// and served over the API.
type Alert struct {
	CreatedAt     time.Time     `json:"created_at"`
	AssetCode     string        `json:"asset_code"`
	AssetName     string        `json:"asset_name"`
	DeliveryLevel DeliveryLevel `json:"delivery_level"`
	Priority      Priority      `json:"priority"`
	Sentiment     string        `json:"sentiment"`
	Summary       string        `json:"summary"`
	Reasons       []string      `json:"reasons"`
	Articles      []Article     `json:"articles,omitempty"`
	ID            int64         `json:"id"`
	Score         int           `json:"score"`
	ArticleCount  int           `json:"article_count"`
}

// RunRecord captures one monitoring cycle for the run history.
type RunRecord struct {
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Status            string    `json:"status"`
	Trigger           string    `json:"trigger"`
	Policy            string    `json:"policy"`
	Error             string    `json:"error,omitempty"`
	AdaptiveDirection string    `json:"adaptive_direction,omitempty"`
	ID                int64     `json:"id"`
	DurationMS        int64     `json:"duration_ms"`
	ResultCount       int       `json:"result_count"`
	EffectiveMinScore int       `json:"effective_min_score"`
	AverageScore      float64   `json:"average_score"`
}

// Run status constants.
const (
	RunStatusOK    = "ok"
	RunStatusError = "error"
)
