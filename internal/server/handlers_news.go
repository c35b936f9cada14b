package server

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalwatch/signalwatch/internal/fetch"
	"github.com/signalwatch/signalwatch/internal/history"
	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/signalwatch/signalwatch/internal/scoring"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"running": s.deps.Scheduler != nil && s.deps.Scheduler.IsRunning(),
	})
}

func (s *Server) handleWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"watchlist": s.cfg.Monitor.Watchlist})
}

// handleNewsPreview fetches, tags, and scores one asset on demand. The
// pass is a preview: it never touches the rolling volume baseline.
func (s *Server) handleNewsPreview(c *gin.Context) {
	assetCode := c.Param("asset")

	keyword := assetCode
	assetName := ""
	for _, a := range s.cfg.Monitor.Watchlist {
		if a.Code == assetCode {
			assetName = a.Name
			if a.Name != "" {
				keyword = a.Name
			}
			break
		}
	}

	limit := queryInt(c, "limit", s.cfg.Scoring.FetchLimit)
	articles, meta, err := s.deps.Fetcher.FetchByKeyword(c.Request.Context(), keyword, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	tags := s.deps.Tagger.TagAll(c.Request.Context(), articles)
	result := s.deps.Scorer.Score(c.Request.Context(), assetCode, articles, tags, scoring.Options{UpdateHistory: false})

	c.JSON(http.StatusOK, gin.H{
		"asset_code": assetCode,
		"asset_name": assetName,
		"articles":   articles,
		"tags":       tags,
		"fetch":      meta,
		"result":     result,
	})
}

func (s *Server) alertFilter(c *gin.Context) history.AlertFilter {
	filter := history.AlertFilter{
		AssetCode:     c.Query("asset"),
		DeliveryLevel: model.DeliveryLevel(c.Query("level")),
		MinScore:      queryInt(c, "min_score", 0),
		Limit:         queryInt(c, "limit", 50),
	}
	if hours := queryInt(c, "since_hours", 0); hours > 0 {
		filter.Since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}
	return filter
}

func (s *Server) handleListAlerts(c *gin.Context) {
	alerts, err := s.deps.History.ListAlerts(c.Request.Context(), s.alertFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// handleAlertHistory is the admin view of persisted alerts; it defaults
// to a deeper window than the public listing.
func (s *Server) handleAlertHistory(c *gin.Context) {
	filter := s.alertFilter(c)
	if filter.Limit == 50 {
		filter.Limit = 200
	}
	alerts, err := s.deps.History.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleExportAlerts(c *gin.Context) {
	filter := s.alertFilter(c)
	if filter.Limit == 50 {
		filter.Limit = 1000
	}
	alerts, err := s.deps.History.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="alerts.csv"`)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"id", "created_at", "asset_code", "asset_name", "score", "delivery_level", "priority", "sentiment", "article_count", "summary"})
	for _, a := range alerts {
		_ = w.Write([]string{
			strconv.FormatInt(a.ID, 10),
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.AssetCode,
			a.AssetName,
			strconv.Itoa(a.Score),
			string(a.DeliveryLevel),
			string(a.Priority),
			a.Sentiment,
			strconv.Itoa(a.ArticleCount),
			a.Summary,
		})
	}
	w.Flush()
}

// handleMetrics aggregates operational counters from every subsystem.
func (s *Server) handleMetrics(c *gin.Context) {
	ctx := c.Request.Context()
	window := queryInt(c, "window_hours", 24)

	out := gin.H{}

	if stats, ok := s.deps.Fetcher.(interface{ GetStats() fetch.Stats }); ok {
		out["fetch"] = stats.GetStats()
	}
	if s.deps.History != nil {
		if m, err := s.deps.History.GetAlertMetrics(ctx, window); err == nil {
			out["alerts"] = m
		}
		if m, err := s.deps.History.GetRunMetrics(ctx, window); err == nil {
			out["runs"] = m
		}
	}
	if s.deps.Feedback != nil {
		if m, err := s.deps.Feedback.GetMetrics(ctx); err == nil {
			out["feedback"] = m
		}
	}
	if s.deps.Scheduler != nil {
		out["monitoring"] = s.deps.Scheduler.Status()
	}

	c.JSON(http.StatusOK, out)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.DefaultQuery(name, "false"))
	return err == nil && v
}
