package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
)

// ruleCache holds the applied keyword rules for a short TTL so the tagger
// doesn't hit SQLite on every headline.
type ruleCache struct {
	keywords map[model.SentimentLabel][]string
	loadedAt time.Time
	ttl      time.Duration
	mu       sync.RWMutex
}

func newRuleCache(ttl time.Duration) *ruleCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ruleCache{ttl: ttl}
}

func (c *ruleCache) get() (map[model.SentimentLabel][]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.keywords == nil || time.Since(c.loadedAt) > c.ttl {
		return nil, false
	}
	return c.keywords, true
}

func (c *ruleCache) set(keywords map[model.SentimentLabel][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keywords = keywords
	c.loadedAt = time.Now()
}

func (c *ruleCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keywords = nil
	c.loadedAt = time.Time{}
}

// AppliedRuleKeywords returns the applied rules grouped by label. Failures
// fall back to an empty map so tagging never blocks on the rule store.
func (s *Store) AppliedRuleKeywords(ctx context.Context) map[model.SentimentLabel][]string {
	if cached, ok := s.ruleCache.get(); ok {
		return cached
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword, label FROM keyword_rules WHERE status = ? ORDER BY keyword`,
		string(model.RuleApplied))
	if err != nil {
		common.LogError(err, "failed to load applied keyword rules", nil)
		return map[model.SentimentLabel][]string{}
	}
	defer func() { _ = rows.Close() }()

	keywords := make(map[model.SentimentLabel][]string)
	for rows.Next() {
		var keyword, label string
		if err := rows.Scan(&keyword, &label); err != nil {
			common.LogError(err, "failed to scan keyword rule", nil)
			return map[model.SentimentLabel][]string{}
		}
		l := model.SentimentLabel(label)
		keywords[l] = append(keywords[l], keyword)
	}
	if err := rows.Err(); err != nil {
		common.LogError(err, "failed to read keyword rules", nil)
		return map[model.SentimentLabel][]string{}
	}

	s.ruleCache.set(keywords)
	return keywords
}

// ApplyRule upserts a keyword rule into the applied state. Idempotent:
// re-applying overwrites label and source.
func (s *Store) ApplyRule(ctx context.Context, keyword string, label model.SentimentLabel, source model.RuleSource) (*model.KeywordRule, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, common.NewValidationError("keyword", "cannot be empty")
	}
	if !label.Valid() {
		return nil, common.NewValidationError("label", fmt.Sprintf("unknown label %q", label))
	}
	if source != model.RuleSourceManual && source != model.RuleSourceAutoFeedback {
		return nil, common.NewValidationError("source", fmt.Sprintf("unknown source %q", source))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_rules (keyword, label, status, source, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(keyword) DO UPDATE SET
			label = excluded.label,
			status = excluded.status,
			source = excluded.source,
			updated_at = CURRENT_TIMESTAMP`,
		keyword, string(label), string(model.RuleApplied), string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to apply keyword rule: %w", err)
	}

	s.ruleCache.invalidate()
	return s.getRule(ctx, keyword)
}

// DisableRule marks a keyword rule disabled. Disabling an unknown keyword
// records it as disabled so it cannot be auto-applied later.
func (s *Store) DisableRule(ctx context.Context, keyword string) (*model.KeywordRule, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, common.NewValidationError("keyword", "cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keyword_rules (keyword, label, status, source, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(keyword) DO UPDATE SET
			status = excluded.status,
			updated_at = CURRENT_TIMESTAMP`,
		keyword, string(model.SentimentNeutral), string(model.RuleDisabled), string(model.RuleSourceManual))
	if err != nil {
		return nil, fmt.Errorf("failed to disable keyword rule: %w", err)
	}

	s.ruleCache.invalidate()
	return s.getRule(ctx, keyword)
}

func (s *Store) getRule(ctx context.Context, keyword string) (*model.KeywordRule, error) {
	var rule model.KeywordRule
	var label, status, source string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, keyword, label, status, source, vote_count, consensus_ratio, created_at, updated_at
		FROM keyword_rules WHERE keyword = ?`, keyword).
		Scan(&rule.ID, &rule.Keyword, &label, &status, &source,
			&rule.VoteCount, &rule.ConsensusRatio, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword rule: %w", err)
	}
	rule.Label = model.SentimentLabel(label)
	rule.Status = model.RuleStatus(status)
	rule.Source = model.RuleSource(source)
	return &rule, nil
}

// ListRules returns all rules, optionally filtered by status.
func (s *Store) ListRules(ctx context.Context, status model.RuleStatus) ([]model.KeywordRule, error) {
	query := `SELECT id, keyword, label, status, source, vote_count, consensus_ratio, created_at, updated_at FROM keyword_rules`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query keyword rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.KeywordRule
	for rows.Next() {
		var rule model.KeywordRule
		var label, ruleStatus, source string
		if err := rows.Scan(&rule.ID, &rule.Keyword, &label, &ruleStatus, &source,
			&rule.VoteCount, &rule.ConsensusRatio, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan keyword rule: %w", err)
		}
		rule.Label = model.SentimentLabel(label)
		rule.Status = model.RuleStatus(ruleStatus)
		rule.Source = model.RuleSource(source)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// KeywordCandidates mines keyword votes for terms whose weighted consensus
// is strong enough to promote into a rule. A candidate additionally needs
// enough weighted disagreement with the automated labels, otherwise the
// static lexicons already cover it.
func (s *Store) KeywordCandidates(ctx context.Context, limit int) ([]model.KeywordCandidate, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword, user_label,
			COUNT(*) AS votes,
			SUM(weight) AS weighted,
			SUM(CASE WHEN ai_label != '' AND user_label != ai_label THEN weight ELSE 0 END) AS disagree
		FROM keyword_votes
		GROUP BY keyword, user_label`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate keyword votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type agg struct {
		perLabel       map[model.SentimentLabel]float64
		votes          int
		totalWeight    float64
		disagreeWeight float64
	}
	byKeyword := make(map[string]*agg)
	for rows.Next() {
		var keyword, label string
		var votes int
		var weighted, disagree float64
		if err := rows.Scan(&keyword, &label, &votes, &weighted, &disagree); err != nil {
			return nil, fmt.Errorf("failed to scan keyword aggregate: %w", err)
		}
		a := byKeyword[keyword]
		if a == nil {
			a = &agg{perLabel: make(map[model.SentimentLabel]float64)}
			byKeyword[keyword] = a
		}
		a.perLabel[model.SentimentLabel(label)] += weighted
		a.votes += votes
		a.totalWeight += weighted
		a.disagreeWeight += disagree
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	applied := make(map[string]struct{})
	for _, keywords := range s.AppliedRuleKeywords(ctx) {
		for _, kw := range keywords {
			applied[kw] = struct{}{}
		}
	}

	candidates := make([]model.KeywordCandidate, 0, len(byKeyword))
	for keyword, a := range byKeyword {
		if a.votes < s.cfg.RuleMinVotes || a.totalWeight <= 0 {
			continue
		}

		best := model.SentimentLabel("")
		bestWeight := -1.0
		for _, label := range labelOrder {
			if w := a.perLabel[label]; w > bestWeight {
				best = label
				bestWeight = w
			}
		}

		consensusRatio := bestWeight / a.totalWeight
		disagreementRatio := a.disagreeWeight / a.totalWeight
		if consensusRatio < s.cfg.RuleConsensusThreshold {
			continue
		}
		if disagreementRatio < s.cfg.RuleMinDisagreement {
			continue
		}

		_, isApplied := applied[keyword]
		candidates = append(candidates, model.KeywordCandidate{
			Keyword:           keyword,
			ConsensusLabel:    best,
			VoteCount:         a.votes,
			ConsensusRatio:    consensusRatio,
			DisagreementRatio: disagreementRatio,
			AlreadyApplied:    isApplied,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].VoteCount != candidates[j].VoteCount {
			return candidates[i].VoteCount > candidates[j].VoteCount
		}
		if candidates[i].ConsensusRatio != candidates[j].ConsensusRatio {
			return candidates[i].ConsensusRatio > candidates[j].ConsensusRatio
		}
		return candidates[i].Keyword < candidates[j].Keyword
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// AutoApplyRules promotes the strongest candidates into applied rules. With
// dryRun set, it reports what would be applied without mutating anything.
func (s *Store) AutoApplyRules(ctx context.Context, maxApply int, dryRun bool) ([]model.KeywordCandidate, error) {
	if maxApply <= 0 {
		maxApply = 5
	}

	candidates, err := s.KeywordCandidates(ctx, maxApply*3)
	if err != nil {
		return nil, err
	}

	// A manual disable sticks: auto-apply never resurrects those keywords.
	disabled := make(map[string]struct{})
	disabledRules, err := s.ListRules(ctx, model.RuleDisabled)
	if err != nil {
		return nil, err
	}
	for _, rule := range disabledRules {
		disabled[rule.Keyword] = struct{}{}
	}

	selected := make([]model.KeywordCandidate, 0, maxApply)
	for _, c := range candidates {
		if c.AlreadyApplied {
			continue
		}
		if _, off := disabled[c.Keyword]; off {
			continue
		}
		selected = append(selected, c)
		if len(selected) == maxApply {
			break
		}
	}

	if dryRun {
		return selected, nil
	}

	for _, c := range selected {
		if _, err := s.ApplyRule(ctx, c.Keyword, c.ConsensusLabel, model.RuleSourceAutoFeedback); err != nil {
			return nil, fmt.Errorf("failed to auto-apply rule %q: %w", c.Keyword, err)
		}
		// Record the supporting evidence at apply time
		if _, err := s.db.ExecContext(ctx,
			`UPDATE keyword_rules SET vote_count = ?, consensus_ratio = ? WHERE keyword = ?`,
			c.VoteCount, round4(c.ConsensusRatio), c.Keyword); err != nil {
			return nil, fmt.Errorf("failed to record rule evidence for %q: %w", c.Keyword, err)
		}
	}
	return selected, nil
}
