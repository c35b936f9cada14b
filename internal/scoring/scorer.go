// Package scoring turns raw article batches into bounded importance scores
// with delivery tiers.
package scoring

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
)

// FeedbackProvider supplies the aggregated recent tester feedback for an
// asset. Implementations must treat a missing signal as not ready, not as
// an error.
type FeedbackProvider interface {
	AssetSignal(ctx context.Context, assetCode string) (model.FeedbackSignal, error)
}

// Config holds the scorer tunables.
type Config struct {
	HistorySlots         int
	DeltaConsensus       int
	DeltaAIMismatch      int
	SignalConsensusRatio float64
}

// DefaultConfig returns the stock scorer configuration.
func DefaultConfig() Config {
	return Config{
		HistorySlots:         40,
		DeltaConsensus:       5,
		DeltaAIMismatch:      4,
		SignalConsensusRatio: 0.75,
	}
}

// Options controls a single scoring pass.
type Options struct {
	// UpdateHistory marks the pass as canonical: the unique-topic count is
	// appended to the rolling baseline. Preview passes leave it false.
	UpdateHistory bool
}

// Scorer computes importance scores. Safe for concurrent use.
type Scorer struct {
	feedback FeedbackProvider
	history  *topicHistory
	cfg      Config
}

// NewScorer creates a scorer. feedback may be nil to score without the
// feedback adjustment.
func NewScorer(cfg Config, feedback FeedbackProvider) *Scorer {
	if cfg.HistorySlots <= 0 {
		cfg.HistorySlots = 40
	}
	return &Scorer{
		cfg:      cfg,
		feedback: feedback,
		history:  newTopicHistory(cfg.HistorySlots),
	}
}

var (
	bracketRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
	punctRe   = regexp.MustCompile("[\"'“”‘’`·…,:;!?/\\\\|]+")
	spaceRe   = regexp.MustCompile(`\s+`)
)

// normalizeTopicKey reduces a headline to its deduplication key: bracketed
// segments and punctuation removed, lowercased, whitespace collapsed.
func normalizeTopicKey(title string) string {
	s := bracketRe.ReplaceAllString(title, " ")
	s = punctRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Score runs one importance-scoring pass for an asset. tags must be
// parallel to articles.
func (s *Scorer) Score(ctx context.Context, assetCode string, articles []model.Article, tags []model.SentimentTag, opts Options) model.ScoreResult {
	rawCount := len(articles)

	// Unique-topic set, first occurrence wins. The same set feeds the
	// impact scan and the duplicate penalty.
	seen := make(map[string]struct{}, rawCount)
	uniqueIdx := make([]int, 0, rawCount)
	for i, a := range articles {
		key := normalizeTopicKey(a.Title)
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(a.Title))
		}
		if key == "" {
			key = a.Link
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniqueIdx = append(uniqueIdx, i)
	}
	uniqueCount := len(uniqueIdx)

	topicRatio := 0.0
	if rawCount > 0 {
		topicRatio = float64(uniqueCount) / float64(rawCount)
	}

	avg, ok := s.history.average(assetCode)
	if !ok || avg <= 0 {
		// No baseline yet: assume the current level is normal.
		avg = float64(max(1, uniqueCount))
	}
	surgeRatio := float64(uniqueCount) / avg

	score := 0
	reasons := make([]string, 0, 6)

	// Volume
	switch {
	case uniqueCount >= 6 && surgeRatio >= 3.0:
		score += 30
		reasons = append(reasons, fmt.Sprintf("news volume surge: %d unique topics, %.1fx recent average", uniqueCount, surgeRatio))
	case uniqueCount >= 10:
		score += 20
		reasons = append(reasons, fmt.Sprintf("high news volume: %d unique topics", uniqueCount))
	}

	// Source diversity over the raw batch
	sources := make(map[string]struct{})
	for _, a := range articles {
		if src := strings.TrimSpace(a.Source); src != "" {
			sources[src] = struct{}{}
		}
	}
	sourceCount := len(sources)
	switch {
	case sourceCount >= 5:
		score += 20
		reasons = append(reasons, fmt.Sprintf("covered by %d sources", sourceCount))
	case sourceCount >= 3:
		score += 10
		reasons = append(reasons, fmt.Sprintf("covered by %d sources", sourceCount))
	}

	// Impact keywords over unique articles only
	impactScore := 0
	matchedImpact := make([]string, 0, 4)
	matchedSet := make(map[string]struct{})
	for _, i := range uniqueIdx {
		lower := strings.ToLower(articles[i].Title)
		for kw, weight := range impactKeywords {
			if !strings.Contains(lower, kw) {
				continue
			}
			impactScore += weight
			if _, ok := matchedSet[kw]; !ok {
				matchedSet[kw] = struct{}{}
				matchedImpact = append(matchedImpact, kw)
			}
		}
	}
	if impactScore > maxImpactScore {
		impactScore = maxImpactScore
	}
	if impactScore > 0 {
		sort.Strings(matchedImpact)
		score += impactScore
		reasons = append(reasons, fmt.Sprintf("impact keywords: %s", strings.Join(matchedImpact, ", ")))
	}

	// Sentiment concentration over unique articles
	positiveCount, negativeCount := 0, 0
	for _, i := range uniqueIdx {
		if i >= len(tags) {
			continue
		}
		switch tags[i].Label {
		case model.SentimentPositive:
			positiveCount++
		case model.SentimentNegative:
			negativeCount++
		case model.SentimentNeutral:
		}
	}
	switch {
	case negativeCount >= 4:
		score += 10
		reasons = append(reasons, fmt.Sprintf("negative coverage cluster: %d articles", negativeCount))
	case positiveCount >= 5:
		score += 5
		reasons = append(reasons, fmt.Sprintf("positive coverage cluster: %d articles", positiveCount))
	}

	// Duplicate-heavy batches are mostly syndication noise
	if rawCount >= 10 {
		switch {
		case topicRatio < 0.35:
			score -= 20
			reasons = append(reasons, fmt.Sprintf("duplicate-heavy coverage: %.0f%% unique", topicRatio*100))
		case topicRatio < 0.5:
			score -= 10
			reasons = append(reasons, fmt.Sprintf("duplicate-heavy coverage: %.0f%% unique", topicRatio*100))
		}
	}

	// Tester feedback adjustment
	var feedbackSignal *model.FeedbackSignal
	if s.feedback != nil {
		if signal, err := s.feedback.AssetSignal(ctx, assetCode); err != nil {
			common.LogDebug("feedback signal unavailable", common.Fields{"asset": assetCode, "error": err.Error()})
		} else {
			feedbackSignal = &signal
			delta, fbReasons := s.feedbackAdjustment(signal)
			score += delta
			reasons = append(reasons, fbReasons...)
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	level, priority := deliveryFor(score)

	if opts.UpdateHistory {
		s.history.observe(assetCode, uniqueCount)
	}

	return model.ScoreResult{
		Score:         score,
		DeliveryLevel: level,
		Priority:      priority,
		Reasons:       reasons,
		Metrics: model.ScoreMetrics{
			RawCount:        rawCount,
			UniqueCount:     uniqueCount,
			SourceCount:     sourceCount,
			PositiveCount:   positiveCount,
			NegativeCount:   negativeCount,
			TopicRatio:      topicRatio,
			SurgeRatio:      surgeRatio,
			RollingAverage:  avg,
			ImpactKeywords:  matchedImpact,
			FeedbackSummary: feedbackSignal,
		},
	}
}

// feedbackAdjustment converts a ready feedback signal into a score delta.
func (s *Scorer) feedbackAdjustment(signal model.FeedbackSignal) (int, []string) {
	if !signal.Ready {
		return 0, nil
	}

	delta := 0
	reasons := make([]string, 0, 2)

	if signal.ConsensusRatio >= s.cfg.SignalConsensusRatio {
		delta += s.cfg.DeltaConsensus
		switch signal.ConsensusLabel {
		case model.SentimentPositive:
			reasons = append(reasons, fmt.Sprintf("tester consensus positive (%.0f%% of %d votes)", signal.ConsensusRatio*100, signal.TotalVotes))
		case model.SentimentNegative:
			reasons = append(reasons, fmt.Sprintf("tester consensus negative (%.0f%% of %d votes)", signal.ConsensusRatio*100, signal.TotalVotes))
		default:
			reasons = append(reasons, fmt.Sprintf("tester consensus %s (%.0f%% of %d votes)", signal.ConsensusLabel, signal.ConsensusRatio*100, signal.TotalVotes))
		}
	}

	if signal.AIMatchRatio < 0.5 {
		delta += s.cfg.DeltaAIMismatch
		reasons = append(reasons, fmt.Sprintf("testers disagree with automated labels (%.0f%% match)", signal.AIMatchRatio*100))
	}

	return delta, reasons
}

// deliveryFor maps a final score to its delivery tier.
func deliveryFor(score int) (model.DeliveryLevel, model.Priority) {
	switch {
	case score >= 70:
		return model.DeliveryPushImmediate, model.PriorityHigh
	case score >= 40:
		return model.DeliveryInApp, model.PriorityMedium
	default:
		return model.DeliveryDailyDigest, model.PriorityLow
	}
}

// HistorySize reports how many canonical observations exist for an asset.
func (s *Scorer) HistorySize(assetCode string) int {
	return s.history.size(assetCode)
}
