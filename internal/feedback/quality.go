package feedback

import (
	"context"
	"fmt"
	"sort"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
)

// QualityOptions tunes a tester quality evaluation. Zero values fall back
// to the store's configured defaults.
type QualityOptions struct {
	MinVotes         int
	PromoteThreshold float64
	DemoteThreshold  float64
	Limit            int
}

func (s *Store) qualityDefaults(opts QualityOptions) (QualityOptions, error) {
	if opts.MinVotes <= 0 {
		opts.MinVotes = s.cfg.QualityMinVotes
	}
	if opts.PromoteThreshold <= 0 {
		opts.PromoteThreshold = s.cfg.QualityPromoteRatio
	}
	if opts.DemoteThreshold <= 0 {
		opts.DemoteThreshold = s.cfg.QualityDemoteRatio
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.PromoteThreshold <= opts.DemoteThreshold {
		return opts, common.NewValidationError("promote_threshold", "must exceed demote_threshold")
	}
	return opts, nil
}

// tierUp and tierDown walk the observer -> general -> core ladder one step.
func tierUp(t model.TesterTier) (model.TesterTier, bool) {
	switch t {
	case model.TierObserver:
		return model.TierGeneral, true
	case model.TierGeneral:
		return model.TierCore, true
	case model.TierCore:
	}
	return "", false
}

func tierDown(t model.TesterTier) (model.TesterTier, bool) {
	switch t {
	case model.TierCore:
		return model.TierGeneral, true
	case model.TierGeneral:
		return model.TierObserver, true
	case model.TierObserver:
	}
	return "", false
}

// EvaluateTesters scores every tester with enough votes against the
// article-level consensus and recommends tier moves.
func (s *Store) EvaluateTesters(ctx context.Context, opts QualityOptions) ([]model.TesterQuality, error) {
	opts, err := s.qualityDefaults(opts)
	if err != nil {
		return nil, err
	}

	// Article-level consensus from all weighted votes
	consensusByLink, err := s.articleConsensusLabels(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id_hash, article_link, user_label, ai_label FROM feedback_events`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type userStats struct {
		votes            int
		consensusMatches int
		aiVotes          int
		aiMatches        int
	}
	stats := make(map[string]*userStats)
	for rows.Next() {
		var userHash, link, userLabel, aiLabel string
		if err := rows.Scan(&userHash, &link, &userLabel, &aiLabel); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		st := stats[userHash]
		if st == nil {
			st = &userStats{}
			stats[userHash] = st
		}
		st.votes++
		if consensusByLink[link] == model.SentimentLabel(userLabel) {
			st.consensusMatches++
		}
		if aiLabel != "" {
			st.aiVotes++
			if userLabel == aiLabel {
				st.aiMatches++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tiers, overrides, err := s.tierAndOverrideMaps(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]model.TesterQuality, 0, len(stats))
	for userHash, st := range stats {
		if st.votes < opts.MinVotes {
			continue
		}

		currentTier := tiers[userHash]
		if currentTier == "" {
			currentTier = model.TierGeneral
		}

		q := model.TesterQuality{
			UserIDHash:          userHash,
			CurrentTier:         currentTier,
			VoteCount:           st.votes,
			ConsensusMatchRatio: float64(st.consensusMatches) / float64(st.votes),
		}
		if st.aiVotes > 0 {
			q.AIMatchRatio = float64(st.aiMatches) / float64(st.aiVotes)
		}

		_, hasOverride := overrides[userHash]
		q.ManualOverride = hasOverride

		switch {
		case hasOverride:
			q.Reason = "manual_override_keep"
		case q.ConsensusMatchRatio >= opts.PromoteThreshold:
			if next, ok := tierUp(currentTier); ok {
				q.RecommendedTier = next
				q.Reason = "high_consensus_match"
			} else {
				q.Reason = "already_top_tier"
			}
		case q.ConsensusMatchRatio <= opts.DemoteThreshold:
			if next, ok := tierDown(currentTier); ok {
				q.RecommendedTier = next
				q.Reason = "low_consensus_match"
			} else {
				q.Reason = "already_bottom_tier"
			}
		default:
			q.Reason = "within_thresholds"
		}

		results = append(results, q)
	}

	sort.Slice(results, func(i, j int) bool {
		iRec, jRec := results[i].RecommendedTier != "", results[j].RecommendedTier != ""
		if iRec != jRec {
			return iRec
		}
		if results[i].VoteCount != results[j].VoteCount {
			return results[i].VoteCount > results[j].VoteCount
		}
		if results[i].ConsensusMatchRatio != results[j].ConsensusMatchRatio {
			return results[i].ConsensusMatchRatio > results[j].ConsensusMatchRatio
		}
		return results[i].UserIDHash < results[j].UserIDHash
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// AutoApplyTiers applies recommended tier moves, capped at maxApply. With
// dryRun set, nothing is mutated and the would-be moves are returned.
func (s *Store) AutoApplyTiers(ctx context.Context, opts QualityOptions, maxApply int, dryRun bool) ([]model.TesterQuality, error) {
	if maxApply <= 0 {
		maxApply = 10
	}

	evaluated, err := s.EvaluateTesters(ctx, opts)
	if err != nil {
		return nil, err
	}

	selected := make([]model.TesterQuality, 0, maxApply)
	for _, q := range evaluated {
		if q.RecommendedTier == "" {
			continue
		}
		selected = append(selected, q)
		if len(selected) == maxApply {
			break
		}
	}

	if dryRun {
		return selected, nil
	}

	for _, q := range selected {
		if err := s.setTierHashed(ctx, q.UserIDHash, q.RecommendedTier); err != nil {
			return nil, fmt.Errorf("failed to apply tier for %s: %w", q.UserIDHash, err)
		}
	}
	return selected, nil
}

// articleConsensusLabels computes the weighted-majority label per article.
func (s *Store) articleConsensusLabels(ctx context.Context) (map[string]model.SentimentLabel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT article_link, user_label, SUM(weighted_score)
		FROM feedback_events
		GROUP BY article_link, user_label`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate article votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sums := make(map[string]map[model.SentimentLabel]float64)
	for rows.Next() {
		var link, label string
		var weight float64
		if err := rows.Scan(&link, &label, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan article aggregate: %w", err)
		}
		if sums[link] == nil {
			sums[link] = make(map[model.SentimentLabel]float64)
		}
		sums[link][model.SentimentLabel(label)] += weight
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	consensus := make(map[string]model.SentimentLabel, len(sums))
	for link, perLabel := range sums {
		best := model.SentimentLabel("")
		bestWeight := -1.0
		for _, label := range labelOrder {
			if w := perLabel[label]; w > bestWeight {
				best = label
				bestWeight = w
			}
		}
		consensus[link] = best
	}
	return consensus, nil
}

func (s *Store) tierAndOverrideMaps(ctx context.Context) (map[string]model.TesterTier, map[string]struct{}, error) {
	tiers := make(map[string]model.TesterTier)
	rows, err := s.db.QueryContext(ctx, `SELECT user_id_hash, tier FROM tester_tiers`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	for rows.Next() {
		var userHash, tier string
		if err := rows.Scan(&userHash, &tier); err != nil {
			_ = rows.Close()
			return nil, nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		tiers[userHash] = model.TesterTier(tier)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, nil, err
	}
	_ = rows.Close()

	overrides := make(map[string]struct{})
	rows, err = s.db.QueryContext(ctx, `SELECT user_id_hash FROM trust_overrides`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var userHash string
		if err := rows.Scan(&userHash); err != nil {
			return nil, nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides[userHash] = struct{}{}
	}
	return tiers, overrides, rows.Err()
}
