package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/feedback"
	"github.com/signalwatch/signalwatch/internal/model"
)

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	var sub feedback.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		respondError(c, common.NewValidationError("body", err.Error()))
		return
	}

	event, created, err := s.deps.Feedback.SubmitFeedback(c.Request.Context(), sub)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"event": event, "created": created})
}

func (s *Server) handleArticleSummary(c *gin.Context) {
	summary, err := s.deps.Feedback.ArticleSummary(c.Request.Context(), c.Query("link"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleAssetSignal(c *gin.Context) {
	signal, err := s.deps.Feedback.AssetSignal(c.Request.Context(), c.Param("asset"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, signal)
}

func (s *Server) handleListEvents(c *gin.Context) {
	events, err := s.deps.Feedback.ListEvents(c.Request.Context(), c.Query("asset"), queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (s *Server) handleListRules(c *gin.Context) {
	rules, err := s.deps.Feedback.ListRules(c.Request.Context(), model.RuleStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

func (s *Server) handleKeywordCandidates(c *gin.Context) {
	candidates, err := s.deps.Feedback.KeywordCandidates(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "count": len(candidates)})
}

type ruleRequest struct {
	Keyword string               `json:"keyword" binding:"required"`
	Label   model.SentimentLabel `json:"label"`
}

func (s *Server) handleApplyRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("body", err.Error()))
		return
	}

	rule, err := s.deps.Feedback.ApplyRule(c.Request.Context(), req.Keyword, req.Label, model.RuleSourceManual)
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "rule_apply", "keyword_rule", rule.Keyword,
		map[string]any{"label": rule.Label})
	c.JSON(http.StatusOK, rule)
}

func (s *Server) handleDisableRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("body", err.Error()))
		return
	}

	rule, err := s.deps.Feedback.DisableRule(c.Request.Context(), req.Keyword)
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "rule_disable", "keyword_rule", rule.Keyword, nil)
	c.JSON(http.StatusOK, rule)
}

func (s *Server) handleAutoApplyRules(c *gin.Context) {
	dryRun := queryBool(c, "dry_run")
	maxApply := queryInt(c, "max", 5)

	applied, err := s.deps.Feedback.AutoApplyRules(c.Request.Context(), maxApply, dryRun)
	if err != nil {
		respondError(c, err)
		return
	}

	if !dryRun && len(applied) > 0 {
		s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "rule_auto_apply", "keyword_rule", "",
			map[string]any{"applied": len(applied)})
	}
	c.JSON(http.StatusOK, gin.H{"candidates": applied, "count": len(applied), "dry_run": dryRun})
}

type trustRequest struct {
	Weight float64 `json:"weight"`
}

func (s *Server) handleGetTrust(c *gin.Context) {
	profile, err := s.deps.Feedback.GetTrust(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleSetTrust(c *gin.Context) {
	var req trustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("body", err.Error()))
		return
	}

	profile, err := s.deps.Feedback.SetTrust(c.Request.Context(), c.Param("user"), req.Weight)
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "trust_set", "tester", profile.UserIDHash,
		map[string]any{"weight": profile.Weight})
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleClearTrust(c *gin.Context) {
	profile, err := s.deps.Feedback.ClearTrust(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "trust_clear", "tester", profile.UserIDHash, nil)
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleListTrust(c *gin.Context) {
	profiles, err := s.deps.Feedback.ListTrustProfiles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "count": len(profiles)})
}

type tierRequest struct {
	Tier model.TesterTier `json:"tier" binding:"required"`
}

func (s *Server) handleGetTier(c *gin.Context) {
	tier, assigned, err := s.deps.Feedback.GetTier(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": tier, "assigned": assigned})
}

func (s *Server) handleListTiers(c *gin.Context) {
	profiles, err := s.deps.Feedback.ListTrustProfiles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	tiers := make([]model.TrustProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.Tier != "" {
			tiers = append(tiers, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"testers": tiers, "count": len(tiers)})
}

func (s *Server) handleSetTier(c *gin.Context) {
	var req tierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, common.NewValidationError("body", err.Error()))
		return
	}

	profile, err := s.deps.Feedback.SetTier(c.Request.Context(), c.Param("user"), req.Tier)
	if err != nil {
		respondError(c, err)
		return
	}

	s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "tier_set", "tester", profile.UserIDHash,
		map[string]any{"tier": profile.Tier})
	c.JSON(http.StatusOK, profile)
}

func (s *Server) qualityOptions(c *gin.Context) feedback.QualityOptions {
	return feedback.QualityOptions{
		MinVotes: queryInt(c, "min_votes", 0),
		Limit:    queryInt(c, "limit", 0),
	}
}

func (s *Server) handleTesterQuality(c *gin.Context) {
	reports, err := s.deps.Feedback.EvaluateTesters(c.Request.Context(), s.qualityOptions(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"testers": reports, "count": len(reports)})
}

func (s *Server) handleAutoApplyTiers(c *gin.Context) {
	dryRun := queryBool(c, "dry_run")
	maxApply := queryInt(c, "max", 10)

	applied, err := s.deps.Feedback.AutoApplyTiers(c.Request.Context(), s.qualityOptions(c), maxApply, dryRun)
	if err != nil {
		respondError(c, err)
		return
	}

	if !dryRun && len(applied) > 0 {
		s.deps.Feedback.RecordAudit(c.Request.Context(), actor(c), "tier_auto_apply", "tester", "",
			map[string]any{"applied": len(applied)})
	}
	c.JSON(http.StatusOK, gin.H{"testers": applied, "count": len(applied), "dry_run": dryRun})
}

func (s *Server) handleListAudit(c *gin.Context) {
	entries, err := s.deps.Feedback.ListAudit(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
