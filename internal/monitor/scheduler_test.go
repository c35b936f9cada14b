package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/config"
	"github.com/signalwatch/signalwatch/internal/fetch"
	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/signalwatch/signalwatch/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	articles map[string][]model.Article
	errs     map[string]error
	calls    int
}

func (f *fakeFetcher) FetchByKeyword(_ context.Context, keyword string, _ int) ([]model.Article, fetch.Meta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[keyword]; err != nil {
		return nil, fetch.Meta{}, err
	}
	return f.articles[keyword], fetch.Meta{Source: fetch.SourceNetwork}, nil
}

type fakeTagger struct{}

func (fakeTagger) TagAll(_ context.Context, articles []model.Article) []model.SentimentTag {
	tags := make([]model.SentimentTag, len(articles))
	for i := range tags {
		tags[i] = model.SentimentTag{Label: model.SentimentNeutral}
	}
	return tags
}

// fakeScorer scores each asset from a fixed table.
type fakeScorer struct {
	scores map[string]int
}

func (f *fakeScorer) Score(_ context.Context, assetCode string, articles []model.Article, _ []model.SentimentTag, _ scoring.Options) model.ScoreResult {
	score := f.scores[assetCode]
	level, priority := model.DeliveryDailyDigest, model.PriorityLow
	switch {
	case score >= 70:
		level, priority = model.DeliveryPushImmediate, model.PriorityHigh
	case score >= 40:
		level, priority = model.DeliveryInApp, model.PriorityMedium
	}
	return model.ScoreResult{
		Score:         score,
		DeliveryLevel: level,
		Priority:      priority,
		Reasons:       []string{"test"},
		Metrics:       model.ScoreMetrics{RawCount: len(articles), UniqueCount: len(articles), NegativeCount: 1},
	}
}

type fakeStore struct {
	mu     sync.Mutex
	alerts []model.Alert
	runs   []model.RunRecord
	errOut error
}

func (f *fakeStore) SaveAlerts(_ context.Context, alerts []model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errOut != nil {
		return f.errOut
	}
	f.alerts = append(f.alerts, alerts...)
	return nil
}

func (f *fakeStore) SaveRun(_ context.Context, run model.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func someArticles(n int) []model.Article {
	out := make([]model.Article, n)
	for i := range out {
		out[i] = model.Article{
			Title:  fmt.Sprintf("Headline %d", i),
			Link:   fmt.Sprintf("https://news.example.com/%d", i),
			Source: "Wire",
		}
	}
	return out
}

func newTestScheduler(fetcher *fakeFetcher, scorer *fakeScorer, store *fakeStore) *Scheduler {
	cfg := Config{
		Watchlist: []config.Asset{
			{Code: "ACME", Name: "Acme Corp"},
			{Code: "GLOBEX", Name: "Globex"},
		},
		MinScore:    40,
		AlertLimit:  20,
		StopTimeout: time.Second,
	}
	var runStore RunStore
	if store != nil {
		runStore = store
	}
	return NewScheduler(cfg, fetcher, fakeTagger{}, scorer, runStore, NewController(nil, cfg.MinScore))
}

func TestRunOnce_ProducesAlertsAboveThreshold(t *testing.T) {
	fetcher := &fakeFetcher{articles: map[string][]model.Article{
		"Acme Corp": someArticles(5),
		"Globex":    someArticles(5),
	}}
	scorer := &fakeScorer{scores: map[string]int{"ACME": 75, "GLOBEX": 20}}
	store := &fakeStore{}

	sched := newTestScheduler(fetcher, scorer, store)
	record := sched.RunOnce(context.Background())

	assert.Equal(t, model.RunStatusOK, record.Status)
	assert.Equal(t, TriggerManual, record.Trigger)
	assert.Equal(t, 1, record.ResultCount)
	assert.Equal(t, 75.0, record.AverageScore)
	assert.Equal(t, 40, record.EffectiveMinScore)

	require.Len(t, store.alerts, 1)
	alert := store.alerts[0]
	assert.Equal(t, "ACME", alert.AssetCode)
	assert.Equal(t, model.DeliveryPushImmediate, alert.DeliveryLevel)
	assert.Equal(t, "Headline 0", alert.Summary)
	assert.Equal(t, string(model.SentimentNegative), alert.Sentiment)

	require.Len(t, store.runs, 1)
	assert.Equal(t, record.ID, store.runs[0].ID)
}

func TestRunOnce_RecordsPerAssetFailures(t *testing.T) {
	fetcher := &fakeFetcher{
		articles: map[string][]model.Article{"Globex": someArticles(3)},
		errs:     map[string]error{"Acme Corp": errors.New("upstream down")},
	}
	scorer := &fakeScorer{scores: map[string]int{"GLOBEX": 90}}
	store := &fakeStore{}

	sched := newTestScheduler(fetcher, scorer, store)
	record := sched.RunOnce(context.Background())

	assert.Equal(t, model.RunStatusError, record.Status)
	assert.Contains(t, record.Error, "ACME")
	assert.Contains(t, record.Error, "upstream down")
	// The failing asset does not poison the others
	assert.Equal(t, 1, record.ResultCount)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, "GLOBEX", store.alerts[0].AssetCode)
}

func TestRunOnce_AlertLimitKeepsHighestScores(t *testing.T) {
	fetcher := &fakeFetcher{articles: map[string][]model.Article{
		"Acme Corp": someArticles(3),
		"Globex":    someArticles(3),
	}}
	scorer := &fakeScorer{scores: map[string]int{"ACME": 50, "GLOBEX": 90}}
	store := &fakeStore{}

	sched := newTestScheduler(fetcher, scorer, store)
	sched.cfg.AlertLimit = 1
	record := sched.RunOnce(context.Background())

	assert.Equal(t, 1, record.ResultCount)
	require.Len(t, store.alerts, 1)
	assert.Equal(t, "GLOBEX", store.alerts[0].AssetCode)
}

func TestRunOnce_AdaptiveRaisesThreshold(t *testing.T) {
	profile := defaultTestProfile()
	profile.Target, profile.Band, profile.Step = 1, 0, 15

	fetcher := &fakeFetcher{articles: map[string][]model.Article{
		"Acme Corp": someArticles(3),
		"Globex":    someArticles(3),
	}}
	scorer := &fakeScorer{scores: map[string]int{"ACME": 50, "GLOBEX": 90}}

	cfg := Config{
		Watchlist: []config.Asset{
			{Code: "ACME", Name: "Acme Corp"},
			{Code: "GLOBEX", Name: "Globex"},
		},
		MinScore:    40,
		StopTimeout: time.Second,
	}
	profiles := make(map[string]model.AdaptiveProfile)
	for _, p := range DefaultPolicies() {
		profiles[p.Name] = profile
	}
	sched := NewScheduler(cfg, fetcher, fakeTagger{}, scorer, nil, NewController(profiles, cfg.MinScore))

	record := sched.RunOnce(context.Background())
	assert.Equal(t, 2, record.ResultCount)
	assert.Equal(t, model.AdaptiveUp, record.AdaptiveDirection)
	assert.Equal(t, 55, sched.Controller().Threshold(record.Policy))

	// The raised threshold now filters the weaker asset
	record = sched.RunOnce(context.Background())
	assert.Equal(t, 55, record.EffectiveMinScore)
	assert.Equal(t, 1, record.ResultCount)
}

func TestSchedulerLifecycle(t *testing.T) {
	fetcher := &fakeFetcher{articles: map[string][]model.Article{}}
	sched := newTestScheduler(fetcher, &fakeScorer{scores: map[string]int{}}, nil)
	ctx := context.Background()

	require.NoError(t, sched.Start(ctx, false))
	assert.True(t, sched.IsRunning())
	assert.ErrorIs(t, sched.Start(ctx, false), common.ErrAlreadyRunning)

	// Force restart replaces the loop instead of failing
	require.NoError(t, sched.Start(ctx, true))
	assert.True(t, sched.IsRunning())

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	assert.ErrorIs(t, sched.Stop(), common.ErrNotRunning)
}

func TestRecentRunsRingBuffer(t *testing.T) {
	fetcher := &fakeFetcher{articles: map[string][]model.Article{}}
	sched := newTestScheduler(fetcher, &fakeScorer{scores: map[string]int{}}, nil)
	sched.cfg.HistoryLimit = 3

	for i := 0; i < 5; i++ {
		sched.RunOnce(context.Background())
	}

	runs := sched.RecentRuns(0)
	require.Len(t, runs, 3)
	// Newest first, oldest two evicted
	assert.Equal(t, int64(5), runs[0].ID)
	assert.Equal(t, int64(3), runs[2].ID)

	runs = sched.RecentRuns(1)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(5), runs[0].ID)
}

func TestStatusSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{articles: map[string][]model.Article{}}
	sched := newTestScheduler(fetcher, &fakeScorer{scores: map[string]int{}}, nil)

	status := sched.Status()
	assert.False(t, status.Running)
	assert.Equal(t, 2, status.WatchlistSize)
	assert.Equal(t, 40, status.Threshold)
	assert.NotEmpty(t, status.CurrentPolicy)
	assert.Nil(t, status.LastRun)

	sched.RunOnce(context.Background())
	status = sched.Status()
	require.NotNil(t, status.LastRun)
	assert.Equal(t, int64(1), status.TotalRuns)
}
