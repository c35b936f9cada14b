// Package config loads runtime configuration from viper with bounded defaults.
package config

import (
	"time"

	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/spf13/viper"
)

// Asset is one watchlist entry.
type Asset struct {
	Code string `json:"code" mapstructure:"code"`
	Name string `json:"name" mapstructure:"name"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	AdminKey        string        `mapstructure:"admin_key"`
	AdminReadKey    string        `mapstructure:"admin_read_key"`
	AdminWriteKey   string        `mapstructure:"admin_write_key"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

// FetchConfig configures the news search client.
type FetchConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	MinInterval time.Duration `mapstructure:"min_interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// ScoringConfig configures the importance scorer.
type ScoringConfig struct {
	FetchLimit   int `mapstructure:"fetch_limit"`
	HistorySlots int `mapstructure:"history_slots"`
}

// FeedbackConfig configures the consensus feedback engine.
type FeedbackConfig struct {
	SignalWindowHours      int           `mapstructure:"signal_window_hours"`
	SignalMinVotes         int           `mapstructure:"signal_min_votes"`
	SignalConsensusRatio   float64       `mapstructure:"signal_consensus_ratio"`
	DeltaConsensus         int           `mapstructure:"delta_consensus"`
	DeltaAIMismatch        int           `mapstructure:"delta_ai_mismatch"`
	ConsensusMinVotes      int           `mapstructure:"consensus_min_votes"`
	ConsensusThreshold     float64       `mapstructure:"consensus_threshold"`
	RuleCacheTTL           time.Duration `mapstructure:"rule_cache_ttl"`
	RuleMinVotes           int           `mapstructure:"rule_min_votes"`
	RuleConsensusThreshold float64       `mapstructure:"rule_consensus_threshold"`
	RuleMinDisagreement    float64       `mapstructure:"rule_min_disagreement"`
	QualityMinVotes        int           `mapstructure:"quality_min_votes"`
	QualityPromoteRatio    float64       `mapstructure:"quality_promote_ratio"`
	QualityDemoteRatio     float64       `mapstructure:"quality_demote_ratio"`
}

// HistoryConfig configures alert-history retention.
type HistoryConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	MaxRows       int `mapstructure:"max_rows"`
}

// MonitorConfig configures the background scheduler.
type MonitorConfig struct {
	Watchlist    []Asset       `mapstructure:"watchlist"`
	Autostart    bool          `mapstructure:"autostart"`
	AlertLimit   int           `mapstructure:"alert_limit"`
	MinScore     int           `mapstructure:"min_score"`
	HistoryLimit int           `mapstructure:"history_limit"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

// AdaptiveConfig configures the global adaptive threshold controller.
type AdaptiveConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Target   int  `mapstructure:"target"`
	Band     int  `mapstructure:"band"`
	Step     int  `mapstructure:"step"`
	MinBound int  `mapstructure:"min_bound"`
	MaxBound int  `mapstructure:"max_bound"`
}

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Fetch      FetchConfig    `mapstructure:"fetch"`
	Scoring    ScoringConfig  `mapstructure:"scoring"`
	Feedback   FeedbackConfig `mapstructure:"feedback"`
	History    HistoryConfig  `mapstructure:"history"`
	Monitor    MonitorConfig  `mapstructure:"monitor"`
	Adaptive   AdaptiveConfig `mapstructure:"adaptive"`
	FeedbackDB string         `mapstructure:"feedback_db"`
	HistoryDB  string         `mapstructure:"history_db"`
}

// SetDefaults registers every tunable's default with viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("feedback_db", "data/feedback.db")
	v.SetDefault("history_db", "data/history.db")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.rate_limit_max", 5)
	v.SetDefault("server.rate_limit_window", time.Minute)

	v.SetDefault("fetch.endpoint", "https://news.google.com/search")
	v.SetDefault("fetch.cache_ttl", 180*time.Second)
	v.SetDefault("fetch.min_interval", 900*time.Millisecond)
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.max_retries", 3)

	v.SetDefault("scoring.fetch_limit", 30)
	v.SetDefault("scoring.history_slots", 40)

	v.SetDefault("feedback.signal_window_hours", 72)
	v.SetDefault("feedback.signal_min_votes", 5)
	v.SetDefault("feedback.signal_consensus_ratio", 0.75)
	v.SetDefault("feedback.delta_consensus", 5)
	v.SetDefault("feedback.delta_ai_mismatch", 4)
	v.SetDefault("feedback.consensus_min_votes", 3)
	v.SetDefault("feedback.consensus_threshold", 0.6)
	v.SetDefault("feedback.rule_cache_ttl", 30*time.Second)
	v.SetDefault("feedback.rule_min_votes", 5)
	v.SetDefault("feedback.rule_consensus_threshold", 0.8)
	v.SetDefault("feedback.rule_min_disagreement", 0.3)
	v.SetDefault("feedback.quality_min_votes", 20)
	v.SetDefault("feedback.quality_promote_ratio", 0.8)
	v.SetDefault("feedback.quality_demote_ratio", 0.4)

	v.SetDefault("history.retention_days", 30)
	v.SetDefault("history.max_rows", 5000)

	v.SetDefault("monitor.autostart", false)
	v.SetDefault("monitor.alert_limit", 20)
	v.SetDefault("monitor.min_score", 0)
	v.SetDefault("monitor.history_limit", 200)
	v.SetDefault("monitor.stop_timeout", 2*time.Second)

	v.SetDefault("adaptive.enabled", false)
	v.SetDefault("adaptive.target", 3)
	v.SetDefault("adaptive.band", 1)
	v.SetDefault("adaptive.step", 5)
	v.SetDefault("adaptive.min_bound", 0)
	v.SetDefault("adaptive.max_bound", 80)
}

// Load unmarshals the configuration and clamps out-of-range values.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.clamp()
	return &cfg, nil
}

// clamp forces every numeric tunable into its sane range.
func (c *Config) clamp() {
	c.Server.RateLimitMax = clampInt(c.Server.RateLimitMax, 1, 1000)
	if c.Server.RateLimitWindow <= 0 {
		c.Server.RateLimitWindow = time.Minute
	}

	if c.Fetch.CacheTTL <= 0 {
		c.Fetch.CacheTTL = 180 * time.Second
	}
	if c.Fetch.MinInterval < 0 {
		c.Fetch.MinInterval = 0
	}
	c.Fetch.MaxRetries = clampInt(c.Fetch.MaxRetries, 1, 10)

	c.Scoring.FetchLimit = clampInt(c.Scoring.FetchLimit, 1, 100)
	c.Scoring.HistorySlots = clampInt(c.Scoring.HistorySlots, 1, 500)

	c.Feedback.SignalWindowHours = clampInt(c.Feedback.SignalWindowHours, 1, 24*30)
	c.Feedback.SignalMinVotes = clampInt(c.Feedback.SignalMinVotes, 1, 1000)
	c.Feedback.SignalConsensusRatio = clampFloat(c.Feedback.SignalConsensusRatio, 0, 1)
	c.Feedback.DeltaConsensus = clampInt(c.Feedback.DeltaConsensus, 0, 50)
	c.Feedback.DeltaAIMismatch = clampInt(c.Feedback.DeltaAIMismatch, 0, 50)
	c.Feedback.ConsensusMinVotes = clampInt(c.Feedback.ConsensusMinVotes, 1, 1000)
	c.Feedback.ConsensusThreshold = clampFloat(c.Feedback.ConsensusThreshold, 0, 1)
	if c.Feedback.RuleCacheTTL <= 0 {
		c.Feedback.RuleCacheTTL = 30 * time.Second
	}
	c.Feedback.RuleMinVotes = clampInt(c.Feedback.RuleMinVotes, 1, 1000)
	c.Feedback.RuleConsensusThreshold = clampFloat(c.Feedback.RuleConsensusThreshold, 0, 1)
	c.Feedback.RuleMinDisagreement = clampFloat(c.Feedback.RuleMinDisagreement, 0, 1)
	c.Feedback.QualityMinVotes = clampInt(c.Feedback.QualityMinVotes, 1, 10000)
	c.Feedback.QualityPromoteRatio = clampFloat(c.Feedback.QualityPromoteRatio, 0, 1)
	c.Feedback.QualityDemoteRatio = clampFloat(c.Feedback.QualityDemoteRatio, 0, 1)

	c.History.RetentionDays = clampInt(c.History.RetentionDays, 1, 3650)
	c.History.MaxRows = clampInt(c.History.MaxRows, 10, 1_000_000)

	c.Monitor.AlertLimit = clampInt(c.Monitor.AlertLimit, 1, 200)
	c.Monitor.MinScore = clampInt(c.Monitor.MinScore, 0, 100)
	c.Monitor.HistoryLimit = clampInt(c.Monitor.HistoryLimit, 1, 10000)
	if c.Monitor.StopTimeout <= 0 {
		c.Monitor.StopTimeout = 2 * time.Second
	}

	c.Adaptive.Target = clampInt(c.Adaptive.Target, 0, 100)
	c.Adaptive.Band = clampInt(c.Adaptive.Band, 0, 100)
	c.Adaptive.Step = clampInt(c.Adaptive.Step, 1, 100)
	c.Adaptive.MinBound = clampInt(c.Adaptive.MinBound, 0, 100)
	c.Adaptive.MaxBound = clampInt(c.Adaptive.MaxBound, c.Adaptive.MinBound, 100)
}

// AdaptiveProfile converts the global adaptive settings into a profile.
func (c *Config) AdaptiveProfile() model.AdaptiveProfile {
	return model.AdaptiveProfile{
		Enabled:  c.Adaptive.Enabled,
		Target:   c.Adaptive.Target,
		Band:     c.Adaptive.Band,
		Step:     c.Adaptive.Step,
		MinBound: c.Adaptive.MinBound,
		MaxBound: c.Adaptive.MaxBound,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
