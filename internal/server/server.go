// Package server exposes the HTTP API: public news and feedback
// endpoints plus the key-protected admin surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/config"
	"github.com/signalwatch/signalwatch/internal/feedback"
	"github.com/signalwatch/signalwatch/internal/history"
	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/signalwatch/signalwatch/internal/monitor"
	"github.com/signalwatch/signalwatch/internal/scoring"
)

// Tagger labels article batches for the preview endpoint.
type Tagger interface {
	TagAll(ctx context.Context, articles []model.Article) []model.SentimentTag
}

// Scorer runs preview scoring passes.
type Scorer interface {
	Score(ctx context.Context, assetCode string, articles []model.Article, tags []model.SentimentTag, opts scoring.Options) model.ScoreResult
}

// Deps bundles everything the server serves.
type Deps struct {
	Feedback  *feedback.Store
	History   *history.Store
	Fetcher   monitor.Fetcher
	Tagger    Tagger
	Scorer    Scorer
	Scheduler *monitor.Scheduler
}

// Server is the HTTP API.
type Server struct {
	engine  *gin.Engine
	deps    Deps
	cfg     config.Config
	limiter *rateLimiter
}

// New builds the server and registers every route.
func New(cfg config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:  gin.New(),
		deps:    deps,
		cfg:     cfg,
		limiter: newRateLimiter(cfg.Server.RateLimitMax, cfg.Server.RateLimitWindow),
	}

	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.handleHealth)
	api.GET("/watchlist", s.handleWatchlist)
	api.GET("/monitoring-policy", s.handleMonitoringPolicy)
	api.GET("/news/:asset", s.handleNewsPreview)
	api.GET("/alerts", s.handleListAlerts)

	api.POST("/feedback", s.handleSubmitFeedback)
	api.GET("/feedback/article", s.handleArticleSummary)
	api.GET("/feedback/signal/:asset", s.handleAssetSignal)

	read := api.Group("", s.requireScope(scopeRead))
	read.GET("/alerts/history", s.handleAlertHistory)
	read.GET("/alerts/history/export", s.handleExportAlerts)
	read.GET("/metrics/ops", s.handleMetrics)
	read.GET("/feedback/events", s.handleListEvents)
	read.GET("/admin/rules", s.handleListRules)
	read.GET("/admin/keywords/candidates", s.handleKeywordCandidates)
	read.GET("/admin/trust", s.handleListTrust)
	read.GET("/admin/trust/:user", s.handleGetTrust)
	read.GET("/admin/tiers", s.handleListTiers)
	read.GET("/admin/tiers/:user", s.handleGetTier)
	read.GET("/admin/quality", s.handleTesterQuality)
	read.GET("/admin/audit", s.handleListAudit)
	read.GET("/admin/prune/preview", s.handlePrunePreview)
	read.GET("/monitoring/status", s.handleMonitoringStatus)
	read.GET("/monitoring/runs", s.handleMonitoringRuns)
	read.GET("/monitoring/adaptive", s.handleAdaptiveSnapshot)

	write := api.Group("", s.requireScope(scopeWrite))
	write.POST("/admin/rules/apply", s.rateLimit("rule_apply"), s.handleApplyRule)
	write.POST("/admin/rules/disable", s.rateLimit("rule_disable"), s.handleDisableRule)
	write.POST("/admin/rules/auto-apply", s.rateLimit("rule_auto_apply"), s.handleAutoApplyRules)
	write.PUT("/admin/trust/:user", s.rateLimit("trust_set"), s.handleSetTrust)
	write.DELETE("/admin/trust/:user", s.rateLimit("trust_set"), s.handleClearTrust)
	write.PUT("/admin/tiers/:user", s.rateLimit("tier_set"), s.handleSetTier)
	write.POST("/admin/tiers/auto-apply", s.rateLimit("tier_auto_apply"), s.handleAutoApplyTiers)
	write.POST("/admin/prune", s.rateLimit("prune"), s.handlePrune)
	write.POST("/monitoring/start", s.rateLimit("monitoring_start"), s.handleMonitoringStart)
	write.POST("/monitoring/stop", s.rateLimit("monitoring_stop"), s.handleMonitoringStop)
	write.POST("/monitoring/run", s.rateLimit("manual_run"), s.handleMonitoringRunOnce)
	write.PUT("/monitoring/adaptive/:policy", s.rateLimit("adaptive_update"), s.handleUpdateAdaptive)
	write.POST("/monitoring/adaptive/reset", s.rateLimit("adaptive_reset"), s.handleResetAdaptive)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	common.LogInfo("http server listening", common.Fields{"addr": s.cfg.Server.Listen})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validationErr *common.ValidationError
	var rateErr *common.RateLimitError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.As(err, &rateErr):
		c.Header("Retry-After", rateErr.RetryAfter.Round(time.Second).String())
		c.JSON(http.StatusTooManyRequests, gin.H{"error": rateErr.Error(), "retry_after_sec": int(rateErr.RetryAfter.Seconds()) + 1})
	case errors.Is(err, common.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrAlreadyRunning), errors.Is(err, common.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		common.LogError(err, "request failed", common.Fields{"path": c.FullPath()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
