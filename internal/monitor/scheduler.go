package monitor

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/config"
	"github.com/signalwatch/signalwatch/internal/fetch"
	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/signalwatch/signalwatch/internal/scoring"
)

// Fetcher supplies articles for a keyword.
type Fetcher interface {
	FetchByKeyword(ctx context.Context, keyword string, maxCount int) ([]model.Article, fetch.Meta, error)
}

// Tagger labels a batch of articles.
type Tagger interface {
	TagAll(ctx context.Context, articles []model.Article) []model.SentimentTag
}

// Scorer computes one importance score per asset cycle.
type Scorer interface {
	Score(ctx context.Context, assetCode string, articles []model.Article, tags []model.SentimentTag, opts scoring.Options) model.ScoreResult
}

// RunStore persists alerts and run records. May be nil, in which case
// results live only in the in-memory ring.
type RunStore interface {
	SaveAlerts(ctx context.Context, alerts []model.Alert) error
	SaveRun(ctx context.Context, run model.RunRecord) error
}

// Run triggers.
const (
	TriggerInterval = "interval"
	TriggerManual   = "manual"
	TriggerStartup  = "startup"
)

// maxAlertArticles bounds how many articles ride along inside one alert.
const maxAlertArticles = 10

// Config holds the scheduler tunables.
type Config struct {
	Watchlist    []config.Asset
	Policies     []model.MonitoringPolicy
	FetchLimit   int
	MinScore     int
	AlertLimit   int
	HistoryLimit int
	StopTimeout  time.Duration
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	Adaptive      map[string]PolicyState `json:"adaptive"`
	CurrentPolicy string                 `json:"current_policy"`
	Interval      string                 `json:"interval"`
	LastRun       *model.RunRecord       `json:"last_run,omitempty"`
	Running       bool                   `json:"running"`
	Threshold     int                    `json:"threshold"`
	TotalRuns     int64                  `json:"total_runs"`
	ErrorRuns     int64                  `json:"error_runs"`
	WatchlistSize int                    `json:"watchlist_size"`
}

// Scheduler drives the monitoring loop over the watchlist.
type Scheduler struct {
	fetcher    Fetcher
	tagger     Tagger
	scorer     Scorer
	store      RunStore
	controller *Controller
	cfg        Config

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	runs      []model.RunRecord
	nextRunID int64
	totalRuns int64
	errorRuns int64
}

// NewScheduler creates a scheduler. store may be nil.
func NewScheduler(cfg Config, fetcher Fetcher, tagger Tagger, scorer Scorer, store RunStore, controller *Controller) *Scheduler {
	if len(cfg.Policies) == 0 {
		cfg.Policies = DefaultPolicies()
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 30
	}
	if cfg.AlertLimit <= 0 {
		cfg.AlertLimit = 20
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}
	if controller == nil {
		controller = NewController(nil, cfg.MinScore)
	}

	return &Scheduler{
		cfg:        cfg,
		fetcher:    fetcher,
		tagger:     tagger,
		scorer:     scorer,
		store:      store,
		controller: controller,
		nextRunID:  1,
	}
}

// Start launches the background loop. When force is set a running loop is
// stopped and replaced; otherwise a second Start fails.
func (s *Scheduler) Start(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.running {
		if !force {
			s.mu.Unlock()
			return common.ErrAlreadyRunning
		}
		cancel, done := s.cancel, s.done
		s.mu.Unlock()
		cancel()
		<-done
		s.mu.Lock()
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	done := s.done
	s.mu.Unlock()

	go s.loop(loopCtx, done)
	common.LogInfo("monitoring started", common.Fields{"watchlist": len(s.cfg.Watchlist)})
	return nil
}

// Stop halts the loop and waits up to StopTimeout for the current cycle.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return common.ErrNotRunning
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(s.cfg.StopTimeout):
		common.LogInfo("monitoring stop timed out waiting for cycle", nil)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	common.LogInfo("monitoring stopped", nil)
	return nil
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.runCycle(ctx, TriggerStartup)

	for {
		policy := ResolvePolicy(time.Now(), s.cfg.Policies)
		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runCycle(ctx, TriggerInterval)
		}
	}
}

// RunOnce executes a single monitoring cycle outside the loop schedule.
func (s *Scheduler) RunOnce(ctx context.Context) model.RunRecord {
	return s.runCycle(ctx, TriggerManual)
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) model.RunRecord {
	started := time.Now().UTC()
	policy := ResolvePolicy(started, s.cfg.Policies)
	threshold := s.controller.Threshold(policy.Name)

	record := model.RunRecord{
		StartedAt:         started,
		Status:            model.RunStatusOK,
		Trigger:           trigger,
		Policy:            policy.Name,
		EffectiveMinScore: threshold,
	}

	alerts := make([]model.Alert, 0, len(s.cfg.Watchlist))
	var failures []string

	for _, asset := range s.cfg.Watchlist {
		if ctx.Err() != nil {
			break
		}
		alert, ok, err := s.scanAsset(ctx, asset, threshold)
		if err != nil {
			failures = append(failures, asset.Code+": "+err.Error())
			continue
		}
		if ok {
			alerts = append(alerts, alert)
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Score > alerts[j].Score })
	if len(alerts) > s.cfg.AlertLimit {
		alerts = alerts[:s.cfg.AlertLimit]
	}

	if len(alerts) > 0 {
		var total int
		for _, a := range alerts {
			total += a.Score
		}
		record.AverageScore = float64(total) / float64(len(alerts))
	}
	record.ResultCount = len(alerts)

	if s.store != nil && len(alerts) > 0 {
		if err := s.store.SaveAlerts(ctx, alerts); err != nil {
			failures = append(failures, "save alerts: "+err.Error())
		}
	}

	decision := s.controller.Decide(policy.Name, len(alerts))
	record.AdaptiveDirection = decision.Direction
	if decision.Direction != model.AdaptiveHold {
		common.LogInfo("adaptive threshold adjusted", common.Fields{
			"policy": policy.Name,
			"from":   decision.OldScore,
			"to":     decision.NewScore,
			"reason": decision.Reason,
		})
	}

	if len(failures) > 0 {
		record.Status = model.RunStatusError
		record.Error = strings.Join(failures, "; ")
	}

	record.FinishedAt = time.Now().UTC()
	record.DurationMS = record.FinishedAt.Sub(record.StartedAt).Milliseconds()

	s.recordRun(&record)
	if s.store != nil {
		if err := s.store.SaveRun(ctx, record); err != nil {
			common.LogError(err, "failed to persist run record", common.Fields{"policy": policy.Name})
		}
	}
	return record
}

// scanAsset fetches, tags, and scores one asset; ok reports whether the
// score cleared the threshold.
func (s *Scheduler) scanAsset(ctx context.Context, asset config.Asset, threshold int) (model.Alert, bool, error) {
	keyword := asset.Name
	if keyword == "" {
		keyword = asset.Code
	}

	articles, _, err := s.fetcher.FetchByKeyword(ctx, keyword, s.cfg.FetchLimit)
	if err != nil {
		return model.Alert{}, false, err
	}
	if len(articles) == 0 {
		return model.Alert{}, false, nil
	}

	tags := s.tagger.TagAll(ctx, articles)
	result := s.scorer.Score(ctx, asset.Code, articles, tags, scoring.Options{UpdateHistory: true})
	if result.Score < threshold || result.Score <= 0 {
		return model.Alert{}, false, nil
	}

	carried := articles
	if len(carried) > maxAlertArticles {
		carried = carried[:maxAlertArticles]
	}

	return model.Alert{
		CreatedAt:     time.Now().UTC(),
		AssetCode:     asset.Code,
		AssetName:     asset.Name,
		Score:         result.Score,
		DeliveryLevel: result.DeliveryLevel,
		Priority:      result.Priority,
		Sentiment:     dominantSentiment(result.Metrics),
		Summary:       articles[0].Title,
		Reasons:       result.Reasons,
		Articles:      carried,
		ArticleCount:  result.Metrics.RawCount,
	}, true, nil
}

// dominantSentiment reduces per-article counts to one batch label.
func dominantSentiment(m model.ScoreMetrics) string {
	switch {
	case m.NegativeCount > m.PositiveCount:
		return string(model.SentimentNegative)
	case m.PositiveCount > m.NegativeCount:
		return string(model.SentimentPositive)
	default:
		return string(model.SentimentNeutral)
	}
}

func (s *Scheduler) recordRun(record *model.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextRunID
	s.nextRunID++
	s.totalRuns++
	if record.Status == model.RunStatusError {
		s.errorRuns++
	}

	s.runs = append(s.runs, *record)
	if len(s.runs) > s.cfg.HistoryLimit {
		s.runs = s.runs[len(s.runs)-s.cfg.HistoryLimit:]
	}
}

// RecentRuns returns up to limit run records, newest first.
func (s *Scheduler) RecentRuns(limit int) []model.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.runs) {
		limit = len(s.runs)
	}
	out := make([]model.RunRecord, 0, limit)
	for i := len(s.runs) - 1; i >= len(s.runs)-limit; i-- {
		out = append(out, s.runs[i])
	}
	return out
}

// Status snapshots the scheduler state. The controller is read before
// taking the scheduler mutex so the two locks are never held together.
func (s *Scheduler) Status() Status {
	policy := ResolvePolicy(time.Now(), s.cfg.Policies)
	threshold := s.controller.Threshold(policy.Name)
	adaptive := s.controller.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Running:       s.running,
		CurrentPolicy: policy.Name,
		Interval:      policy.Interval.String(),
		Threshold:     threshold,
		TotalRuns:     s.totalRuns,
		ErrorRuns:     s.errorRuns,
		WatchlistSize: len(s.cfg.Watchlist),
		Adaptive:      adaptive,
	}
	if len(s.runs) > 0 {
		last := s.runs[len(s.runs)-1]
		status.LastRun = &last
	}
	return status
}

// Controller exposes the adaptive controller for API-driven tuning.
func (s *Scheduler) Controller() *Controller {
	return s.controller
}

// Policies returns a copy of the configured schedule.
func (s *Scheduler) Policies() []model.MonitoringPolicy {
	out := make([]model.MonitoringPolicy, len(s.cfg.Policies))
	copy(out, s.cfg.Policies)
	return out
}
