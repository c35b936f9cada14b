package model

import (
	"time"
)

// FeedbackEvent is one tester vote on an article. A user has at most one
// event per article link; resubmitting replaces the previous vote.
type FeedbackEvent struct {
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	UserIDHash    string         `json:"user_id_hash"`
	ArticleLink   string         `json:"article_link"`
	ArticleTitle  string         `json:"article_title"`
	AssetCode     string         `json:"asset_code"`
	UserLabel     SentimentLabel `json:"user_label"`
	AILabel       SentimentLabel `json:"ai_label"`
	Comment       string         `json:"comment,omitempty"`
	ID            int64          `json:"id"`
	Confidence    float64        `json:"confidence"`
	TrustWeight   float64        `json:"trust_weight"`
	WeightedScore float64        `json:"weighted_score"`
}

// KeywordVote is a per-keyword projection of a feedback event, used for
// keyword-rule mining.
type KeywordVote struct {
	CreatedAt   time.Time      `json:"created_at"`
	UserIDHash  string         `json:"user_id_hash"`
	ArticleLink string         `json:"article_link"`
	Keyword     string         `json:"keyword"`
	UserLabel   SentimentLabel `json:"user_label"`
	AILabel     SentimentLabel `json:"ai_label"`
	ID          int64          `json:"id"`
	Weight      float64        `json:"weight"`
}

// RuleStatus tells whether a learned keyword rule participates in tagging.
type RuleStatus string

// Rule status constants.
const (
	RuleApplied  RuleStatus = "applied"
	RuleDisabled RuleStatus = "disabled"
)

// RuleSource records how a keyword rule came to exist.
type RuleSource string

// Rule source constants.
const (
	RuleSourceManual       RuleSource = "manual"
	RuleSourceAutoFeedback RuleSource = "auto_feedback"
)

// KeywordRule is a learned sentiment association for a keyword. VoteCount
// and ConsensusRatio record the supporting evidence at apply time; manual
// rules carry zeros.
type KeywordRule struct {
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Keyword        string         `json:"keyword"`
	Label          SentimentLabel `json:"label"`
	Status         RuleStatus     `json:"status"`
	Source         RuleSource     `json:"source"`
	ID             int64          `json:"id"`
	VoteCount      int            `json:"vote_count"`
	ConsensusRatio float64        `json:"consensus_ratio"`
}

// KeywordCandidate is a mined keyword that may be promoted to a rule.
type KeywordCandidate struct {
	Keyword           string         `json:"keyword"`
	ConsensusLabel    SentimentLabel `json:"consensus_label"`
	VoteCount         int            `json:"vote_count"`
	ConsensusRatio    float64        `json:"consensus_ratio"`
	DisagreementRatio float64        `json:"disagreement_ratio"`
	AlreadyApplied    bool           `json:"already_applied"`
}

// TesterTier groups testers by track record. Each tier carries a default
// trust weight applied to votes unless a manual override exists.
type TesterTier string

// Tester tier constants.
const (
	TierCore     TesterTier = "core"
	TierGeneral  TesterTier = "general"
	TierObserver TesterTier = "observer"
)

// Valid reports whether the tier is a known value.
func (t TesterTier) Valid() bool {
	switch t {
	case TierCore, TierGeneral, TierObserver:
		return true
	}
	return false
}

// DefaultWeight returns the trust weight a tier confers.
func (t TesterTier) DefaultWeight() float64 {
	switch t {
	case TierCore:
		return 1.8
	case TierObserver:
		return 0.7
	default:
		return 1.0
	}
}

// TrustSource records where a user's effective trust weight comes from.
type TrustSource string

// Trust source constants, in precedence order.
const (
	TrustSourceManual      TrustSource = "manual"
	TrustSourceTierDefault TrustSource = "tier_default"
	TrustSourceDefault     TrustSource = "default"
)

// TrustProfile is the resolved trust state for one user.
type TrustProfile struct {
	UpdatedAt  time.Time   `json:"updated_at"`
	UserIDHash string      `json:"user_id_hash"`
	Source     TrustSource `json:"source"`
	Tier       TesterTier  `json:"tier,omitempty"`
	Weight     float64     `json:"weight"`
	HasManual  bool        `json:"has_manual"`
}

// ArticleConsensus summarizes all votes on one article.
type ArticleConsensus struct {
	Counts         map[SentimentLabel]int     `json:"counts"`
	WeightedSums   map[SentimentLabel]float64 `json:"weighted_sums"`
	ArticleLink    string                     `json:"article_link"`
	ConsensusLabel SentimentLabel             `json:"consensus_label"`
	Reasons        []string                   `json:"reasons"`
	TotalVotes     int                        `json:"total_votes"`
	ConsensusRatio float64                    `json:"consensus_ratio"`
	AIMatchRatio   float64                    `json:"ai_match_ratio"`
	Ready          bool                       `json:"ready"`
}

// FeedbackSignal is the aggregated recent feedback for an asset, consumed
// by the importance scorer.
type FeedbackSignal struct {
	AssetCode      string         `json:"asset_code"`
	ConsensusLabel SentimentLabel `json:"consensus_label"`
	TotalVotes     int            `json:"total_votes"`
	ConsensusRatio float64        `json:"consensus_ratio"`
	AIMatchRatio   float64        `json:"ai_match_ratio"`
	WindowHours    int            `json:"window_hours"`
	Ready          bool           `json:"ready"`
}

// TesterQuality is the evaluated track record for one tester.
type TesterQuality struct {
	UserIDHash          string     `json:"user_id_hash"`
	CurrentTier         TesterTier `json:"current_tier"`
	RecommendedTier     TesterTier `json:"recommended_tier,omitempty"`
	Reason              string     `json:"reason"`
	VoteCount           int        `json:"vote_count"`
	ConsensusMatchRatio float64    `json:"consensus_match_ratio"`
	AIMatchRatio        float64    `json:"ai_match_ratio"`
	ManualOverride      bool       `json:"manual_override"`
}

// AuditEntry is one append-only record of an admin mutation.
type AuditEntry struct {
	CreatedAt  time.Time `json:"created_at"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	MetaJSON   string    `json:"meta_json,omitempty"`
	ID         int64     `json:"id"`
}
