package feedback

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
)

// Submission is one incoming tester vote.
type Submission struct {
	UserID       string               `json:"user_id"`
	ArticleLink  string               `json:"article_link"`
	ArticleTitle string               `json:"article_title"`
	AssetCode    string               `json:"asset_code"`
	UserLabel    model.SentimentLabel `json:"user_label"`
	AILabel      model.SentimentLabel `json:"ai_label"`
	Comment      string               `json:"comment"`
	Confidence   float64              `json:"confidence"`
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SubmitFeedback records a vote, replacing any earlier vote by the same
// user on the same article. Keyword votes are regenerated atomically.
// created reports whether this was a new vote or an overwrite.
func (s *Store) SubmitFeedback(ctx context.Context, sub Submission) (event *model.FeedbackEvent, created bool, err error) {
	if sub.UserID == "" {
		return nil, false, common.NewValidationError("user_id", "cannot be empty")
	}
	if sub.ArticleLink == "" {
		return nil, false, common.NewValidationError("article_link", "cannot be empty")
	}
	if !sub.UserLabel.Valid() {
		return nil, false, common.NewValidationError("user_label", fmt.Sprintf("unknown label %q", sub.UserLabel))
	}
	if sub.AILabel != "" && !sub.AILabel.Valid() {
		return nil, false, common.NewValidationError("ai_label", fmt.Sprintf("unknown label %q", sub.AILabel))
	}

	// Confidence lives on a 1-5 scale; absent means 1.
	confidence := sub.Confidence
	if confidence < 1.0 {
		confidence = 1.0
	}
	if confidence > 5.0 {
		confidence = 5.0
	}

	userHash := hashUserID(sub.UserID)

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM feedback_events WHERE user_id_hash = ? AND article_link = ?)`,
			userHash, sub.ArticleLink).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check for existing vote: %w", err)
		}
		created = !exists

		trust := s.resolveTrust(ctx, tx, userHash)
		weighted := round4(confidence * trust.Weight)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO feedback_events
				(user_id_hash, article_link, article_title, asset_code, user_label, ai_label, confidence, trust_weight, weighted_score, comment)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id_hash, article_link) DO UPDATE SET
				article_title = excluded.article_title,
				asset_code = excluded.asset_code,
				user_label = excluded.user_label,
				ai_label = excluded.ai_label,
				confidence = excluded.confidence,
				trust_weight = excluded.trust_weight,
				weighted_score = excluded.weighted_score,
				comment = excluded.comment,
				updated_at = CURRENT_TIMESTAMP`,
			userHash, sub.ArticleLink, sub.ArticleTitle, sub.AssetCode,
			string(sub.UserLabel), string(sub.AILabel), confidence, trust.Weight, weighted, sub.Comment)
		if err != nil {
			return fmt.Errorf("failed to upsert feedback event: %w", err)
		}

		// Keyword votes always mirror the latest vote
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM keyword_votes WHERE user_id_hash = ? AND article_link = ?`,
			userHash, sub.ArticleLink); err != nil {
			return fmt.Errorf("failed to clear keyword votes: %w", err)
		}

		for _, kw := range extractKeywords(sub.ArticleTitle) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO keyword_votes (user_id_hash, article_link, keyword, user_label, ai_label, weight)
				VALUES (?, ?, ?, ?, ?, ?)`,
				userHash, sub.ArticleLink, kw, string(sub.UserLabel), string(sub.AILabel), weighted); err != nil {
				return fmt.Errorf("failed to insert keyword vote: %w", err)
			}
		}

		event = &model.FeedbackEvent{
			UserIDHash:    userHash,
			ArticleLink:   sub.ArticleLink,
			ArticleTitle:  sub.ArticleTitle,
			AssetCode:     sub.AssetCode,
			UserLabel:     sub.UserLabel,
			AILabel:       sub.AILabel,
			Confidence:    confidence,
			TrustWeight:   trust.Weight,
			WeightedScore: weighted,
			Comment:       sub.Comment,
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return event, created, nil
}

// ListEvents returns recent events, optionally filtered by asset code.
func (s *Store) ListEvents(ctx context.Context, assetCode string, limit int) ([]model.FeedbackEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id_hash, article_link, article_title, asset_code, user_label, ai_label,
			confidence, trust_weight, weighted_score, comment, created_at, updated_at
		FROM feedback_events`
	args := []any{}
	if assetCode != "" {
		query += ` WHERE asset_code = ?`
		args = append(args, assetCode)
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.FeedbackEvent
	for rows.Next() {
		var e model.FeedbackEvent
		var userLabel, aiLabel string
		if err := rows.Scan(&e.ID, &e.UserIDHash, &e.ArticleLink, &e.ArticleTitle, &e.AssetCode,
			&userLabel, &aiLabel, &e.Confidence, &e.TrustWeight, &e.WeightedScore,
			&e.Comment, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		e.UserLabel = model.SentimentLabel(userLabel)
		e.AILabel = model.SentimentLabel(aiLabel)
		events = append(events, e)
	}
	return events, rows.Err()
}

// labelOrder fixes the tie-break order for consensus resolution.
var labelOrder = []model.SentimentLabel{model.SentimentPositive, model.SentimentNegative, model.SentimentNeutral}

type voteTally struct {
	counts       map[model.SentimentLabel]int
	weightedSums map[model.SentimentLabel]float64
	totalVotes   int
	totalWeight  float64
	aiMatches    int
}

func newVoteTally() *voteTally {
	return &voteTally{
		counts:       make(map[model.SentimentLabel]int),
		weightedSums: make(map[model.SentimentLabel]float64),
	}
}

func (t *voteTally) add(userLabel, aiLabel model.SentimentLabel, weight float64) {
	t.counts[userLabel]++
	t.weightedSums[userLabel] += weight
	t.totalVotes++
	t.totalWeight += weight
	if aiLabel != "" && userLabel == aiLabel {
		t.aiMatches++
	}
}

// consensus returns the weighted-majority label and its share. Ties
// resolve positive, then negative, then neutral.
func (t *voteTally) consensus() (model.SentimentLabel, float64) {
	if t.totalVotes == 0 {
		return "", 0
	}
	best := model.SentimentLabel("")
	bestWeight := -1.0
	for _, label := range labelOrder {
		if w := t.weightedSums[label]; w > bestWeight {
			best = label
			bestWeight = w
		}
	}
	if t.totalWeight <= 0 {
		return best, 0
	}
	return best, bestWeight / t.totalWeight
}

func (t *voteTally) aiMatchRatio() float64 {
	if t.totalVotes == 0 {
		return 0
	}
	return float64(t.aiMatches) / float64(t.totalVotes)
}

// ArticleSummary aggregates all votes on one article and evaluates
// consensus readiness against the configured thresholds.
func (s *Store) ArticleSummary(ctx context.Context, articleLink string) (*model.ArticleConsensus, error) {
	if articleLink == "" {
		return nil, common.NewValidationError("article_link", "cannot be empty")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_label, ai_label, weighted_score FROM feedback_events WHERE article_link = ?`,
		articleLink)
	if err != nil {
		return nil, fmt.Errorf("failed to query article votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tally := newVoteTally()
	for rows.Next() {
		var userLabel, aiLabel string
		var weight float64
		if err := rows.Scan(&userLabel, &aiLabel, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		tally.add(model.SentimentLabel(userLabel), model.SentimentLabel(aiLabel), weight)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	label, ratio := tally.consensus()

	summary := &model.ArticleConsensus{
		ArticleLink:    articleLink,
		Counts:         tally.counts,
		WeightedSums:   tally.weightedSums,
		TotalVotes:     tally.totalVotes,
		ConsensusLabel: label,
		ConsensusRatio: ratio,
		AIMatchRatio:   tally.aiMatchRatio(),
	}

	// Readiness evaluation; every failed check is reported
	var reasons []string
	if summary.TotalVotes < s.cfg.ConsensusMinVotes {
		reasons = append(reasons, "not_enough_votes")
	}
	if summary.ConsensusRatio < s.cfg.ConsensusThreshold {
		reasons = append(reasons, "low_consensus_ratio")
	}
	if !summary.ConsensusLabel.Valid() {
		reasons = append(reasons, "invalid_consensus_label")
	}
	if len(reasons) == 0 {
		summary.Ready = true
		reasons = []string{"ready"}
	}
	summary.Reasons = reasons

	return summary, nil
}

// AssetSignal aggregates recent votes for an asset into the signal the
// importance scorer consumes. Missing feedback yields a not-ready signal,
// never an error.
func (s *Store) AssetSignal(ctx context.Context, assetCode string) (model.FeedbackSignal, error) {
	signal := model.FeedbackSignal{
		AssetCode:   assetCode,
		WindowHours: s.cfg.SignalWindowHours,
	}
	if assetCode == "" {
		return signal, nil
	}

	// Votes age out on creation time; relabeling an old vote does not
	// pull it back into the window.
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_label, ai_label, weighted_score
		FROM feedback_events
		WHERE asset_code = ? AND created_at >= datetime('now', ?)`,
		assetCode, fmt.Sprintf("-%d hours", s.cfg.SignalWindowHours))
	if err != nil {
		return signal, fmt.Errorf("failed to query asset votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tally := newVoteTally()
	for rows.Next() {
		var userLabel, aiLabel string
		var weight float64
		if err := rows.Scan(&userLabel, &aiLabel, &weight); err != nil {
			return signal, fmt.Errorf("failed to scan vote: %w", err)
		}
		tally.add(model.SentimentLabel(userLabel), model.SentimentLabel(aiLabel), weight)
	}
	if err := rows.Err(); err != nil {
		return signal, err
	}

	signal.TotalVotes = tally.totalVotes
	signal.ConsensusLabel, signal.ConsensusRatio = tally.consensus()
	signal.AIMatchRatio = tally.aiMatchRatio()
	signal.Ready = tally.totalVotes >= s.cfg.SignalMinVotes

	return signal, nil
}
