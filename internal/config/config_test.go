package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "data/feedback.db", cfg.FeedbackDB)
	assert.Equal(t, "data/history.db", cfg.HistoryDB)
	assert.Equal(t, 180*time.Second, cfg.Fetch.CacheTTL)
	assert.Equal(t, 30, cfg.Scoring.FetchLimit)
	assert.Equal(t, 72, cfg.Feedback.SignalWindowHours)
	assert.Equal(t, 0.75, cfg.Feedback.SignalConsensusRatio)
	assert.Equal(t, 30, cfg.History.RetentionDays)
	assert.Equal(t, 20, cfg.Monitor.AlertLimit)
	assert.Equal(t, 2*time.Second, cfg.Monitor.StopTimeout)
	assert.False(t, cfg.Adaptive.Enabled)
	assert.Equal(t, 80, cfg.Adaptive.MaxBound)
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set("server.listen", ":9090")
	v.Set("monitor.watchlist", []map[string]any{
		{"code": "ACME", "name": "Acme Corp"},
		{"code": "GLOBEX", "name": "Globex"},
	})
	v.Set("adaptive.enabled", true)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Listen)
	require.Len(t, cfg.Monitor.Watchlist, 2)
	assert.Equal(t, "ACME", cfg.Monitor.Watchlist[0].Code)
	assert.Equal(t, "Acme Corp", cfg.Monitor.Watchlist[0].Name)
	assert.True(t, cfg.Adaptive.Enabled)
}

func TestLoadClampsOutOfRangeValues(t *testing.T) {
	v := viper.New()
	v.Set("scoring.fetch_limit", 9999)
	v.Set("feedback.signal_consensus_ratio", 1.7)
	v.Set("monitor.min_score", -5)
	v.Set("adaptive.min_bound", 60)
	v.Set("adaptive.max_bound", 20)
	v.Set("fetch.cache_ttl", "-10s")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Scoring.FetchLimit)
	assert.Equal(t, 1.0, cfg.Feedback.SignalConsensusRatio)
	assert.Equal(t, 0, cfg.Monitor.MinScore)
	// The max bound can never drop below the min bound
	assert.Equal(t, 60, cfg.Adaptive.MinBound)
	assert.Equal(t, 60, cfg.Adaptive.MaxBound)
	assert.Equal(t, 180*time.Second, cfg.Fetch.CacheTTL)
}

func TestAdaptiveProfileConversion(t *testing.T) {
	v := viper.New()
	v.Set("adaptive.enabled", true)
	v.Set("adaptive.target", 5)
	v.Set("adaptive.step", 10)

	cfg, err := Load(v)
	require.NoError(t, err)

	profile := cfg.AdaptiveProfile()
	assert.True(t, profile.Enabled)
	assert.Equal(t, 5, profile.Target)
	assert.Equal(t, 10, profile.Step)
	assert.Equal(t, 80, profile.MaxBound)
}
