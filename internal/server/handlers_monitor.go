package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
	"github.com/signalwatch/signalwatch/internal/monitor"
)

func (s *Server) handleMonitoringStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

// handleMonitoringPolicy lists the schedule and the policy active right now.
func (s *Server) handleMonitoringPolicy(c *gin.Context) {
	policies := s.deps.Scheduler.Policies()
	active := monitor.ResolvePolicy(time.Now(), policies)
	c.JSON(http.StatusOK, gin.H{
		"policies": policies,
		"active":   active.Name,
		"interval": active.Interval.String(),
	})
}

func (s *Server) handleAdaptiveSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": s.deps.Scheduler.Controller().Snapshot()})
}

func (s *Server) handleMonitoringRuns(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	if queryBool(c, "persisted") && s.deps.History != nil {
		runs, err := s.deps.History.ListRuns(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs), "source": "history"})
		return
	}

	runs := s.deps.Scheduler.RecentRuns(limit)
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs), "source": "memory"})
}

func (s *Server) handleMonitoringStart(c *gin.Context) {
	force := queryBool(c, "force")
	if err := s.deps.Scheduler.Start(c.Request.Context(), force); err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "monitoring_start", "scheduler", "",
		map[string]any{"force": force})
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) handleMonitoringStop(c *gin.Context) {
	if err := s.deps.Scheduler.Stop(); err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "monitoring_stop", "scheduler", "", nil)
	c.JSON(http.StatusOK, s.deps.Scheduler.Status())
}

func (s *Server) handleMonitoringRunOnce(c *gin.Context) {
	record := s.deps.Scheduler.RunOnce(c.Request.Context())
	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "manual_run", "scheduler", "",
		map[string]any{"result_count": record.ResultCount, "status": record.Status})
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleUpdateAdaptive(c *gin.Context) {
	policy := c.Param("policy")

	var profile model.AdaptiveProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		respondError(c, common.NewValidationError("body", err.Error()))
		return
	}
	if profile.Step <= 0 {
		respondError(c, common.NewValidationError("step", "must be positive"))
		return
	}
	if profile.MaxBound < profile.MinBound {
		respondError(c, common.NewValidationError("max_bound", "must be >= min_bound"))
		return
	}

	s.deps.Scheduler.Controller().UpdateProfile(policy, profile)
	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "adaptive_update", "policy", policy,
		map[string]any{"target": profile.Target, "step": profile.Step, "enabled": profile.Enabled})
	c.JSON(http.StatusOK, s.deps.Scheduler.Controller().Snapshot())
}

func (s *Server) handleResetAdaptive(c *gin.Context) {
	policy := c.Query("policy")
	s.deps.Scheduler.Controller().Reset(policy)
	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "adaptive_reset", "policy", policy, nil)
	c.JSON(http.StatusOK, s.deps.Scheduler.Controller().Snapshot())
}

func (s *Server) handlePrunePreview(c *gin.Context) {
	result, err := s.deps.History.PreviewPrune(c.Request.Context(),
		queryInt(c, "retention_days", s.cfg.History.RetentionDays),
		queryInt(c, "max_rows", s.cfg.History.MaxRows))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePrune(c *gin.Context) {
	retention := queryInt(c, "retention_days", s.cfg.History.RetentionDays)
	maxRows := queryInt(c, "max_rows", s.cfg.History.MaxRows)

	result, err := s.deps.History.Prune(c.Request.Context(), retention, maxRows)
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "prune", "alert_history", "",
		map[string]any{"deleted": result.DeletedTotal, "remaining": result.Remaining})
	c.JSON(http.StatusOK, result)
}
