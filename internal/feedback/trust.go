package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
)

func clampWeight(w float64) float64 {
	if w < minTrustWeight {
		return minTrustWeight
	}
	if w > maxTrustWeight {
		return maxTrustWeight
	}
	return w
}

// resolveTrust computes a user's effective trust profile. Precedence:
// manual override, then tier default, then 1.0.
func (s *Store) resolveTrust(ctx context.Context, q querier, userHash string) model.TrustProfile {
	profile := model.TrustProfile{
		UserIDHash: userHash,
		Weight:     1.0,
		Source:     model.TrustSourceDefault,
	}

	var tier string
	if err := q.QueryRowContext(ctx,
		`SELECT tier FROM tester_tiers WHERE user_id_hash = ?`, userHash).Scan(&tier); err == nil {
		if t := model.TesterTier(tier); t.Valid() {
			profile.Tier = t
			profile.Weight = t.DefaultWeight()
			profile.Source = model.TrustSourceTierDefault
		}
	}

	var weight float64
	if err := q.QueryRowContext(ctx,
		`SELECT weight FROM trust_overrides WHERE user_id_hash = ?`, userHash).Scan(&weight); err == nil {
		profile.Weight = clampWeight(weight)
		profile.Source = model.TrustSourceManual
		profile.HasManual = true
	}

	return profile
}

// GetTrust returns the resolved trust profile for a raw user id.
func (s *Store) GetTrust(ctx context.Context, userID string) (model.TrustProfile, error) {
	if userID == "" {
		return model.TrustProfile{}, common.NewValidationError("user_id", "cannot be empty")
	}
	return s.resolveTrust(ctx, s.db, hashUserID(userID)), nil
}

// SetTrust installs a manual trust override and re-weights every stored
// vote by the user in the same transaction.
func (s *Store) SetTrust(ctx context.Context, userID string, weight float64) (model.TrustProfile, error) {
	if userID == "" {
		return model.TrustProfile{}, common.NewValidationError("user_id", "cannot be empty")
	}
	if weight < minTrustWeight || weight > maxTrustWeight {
		return model.TrustProfile{}, common.NewValidationError("weight",
			fmt.Sprintf("must be between %.1f and %.1f", minTrustWeight, maxTrustWeight))
	}

	userHash := hashUserID(userID)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO trust_overrides (user_id_hash, weight, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id_hash) DO UPDATE SET weight = excluded.weight, updated_at = CURRENT_TIMESTAMP`,
			userHash, weight); err != nil {
			return fmt.Errorf("failed to upsert trust override: %w", err)
		}
		return s.reweightUser(ctx, tx, userHash)
	})
	if err != nil {
		return model.TrustProfile{}, err
	}

	return s.resolveTrust(ctx, s.db, userHash), nil
}

// ClearTrust removes a manual override, dropping the user back to their
// tier default, and re-weights their votes.
func (s *Store) ClearTrust(ctx context.Context, userID string) (model.TrustProfile, error) {
	if userID == "" {
		return model.TrustProfile{}, common.NewValidationError("user_id", "cannot be empty")
	}

	userHash := hashUserID(userID)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM trust_overrides WHERE user_id_hash = ?`, userHash); err != nil {
			return fmt.Errorf("failed to delete trust override: %w", err)
		}
		return s.reweightUser(ctx, tx, userHash)
	})
	if err != nil {
		return model.TrustProfile{}, err
	}

	return s.resolveTrust(ctx, s.db, userHash), nil
}

// SetTier assigns a tester tier. Votes are re-weighted only when the tier
// default is actually in effect: a manual override keeps its precedence.
func (s *Store) SetTier(ctx context.Context, userID string, tier model.TesterTier) (model.TrustProfile, error) {
	if userID == "" {
		return model.TrustProfile{}, common.NewValidationError("user_id", "cannot be empty")
	}
	if !tier.Valid() {
		return model.TrustProfile{}, common.NewValidationError("tier", fmt.Sprintf("unknown tier %q", tier))
	}

	userHash := hashUserID(userID)
	if err := s.setTierHashed(ctx, userHash, tier); err != nil {
		return model.TrustProfile{}, err
	}

	return s.resolveTrust(ctx, s.db, userHash), nil
}

// setTierHashed is SetTier for an already-hashed user id, used by tier
// auto-apply where only hashes are known.
func (s *Store) setTierHashed(ctx context.Context, userHash string, tier model.TesterTier) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tester_tiers (user_id_hash, tier, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id_hash) DO UPDATE SET tier = excluded.tier, updated_at = CURRENT_TIMESTAMP`,
			userHash, string(tier)); err != nil {
			return fmt.Errorf("failed to upsert tester tier: %w", err)
		}

		if profile := s.resolveTrust(ctx, tx, userHash); profile.Source == model.TrustSourceTierDefault {
			return s.reweightUser(ctx, tx, userHash)
		}
		return nil
	})
}

// GetTier returns the stored tier for a user, if any.
func (s *Store) GetTier(ctx context.Context, userID string) (model.TesterTier, bool, error) {
	if userID == "" {
		return "", false, common.NewValidationError("user_id", "cannot be empty")
	}

	var tier string
	err := s.db.QueryRowContext(ctx,
		`SELECT tier FROM tester_tiers WHERE user_id_hash = ?`, hashUserID(userID)).Scan(&tier)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query tester tier: %w", err)
	}
	return model.TesterTier(tier), true, nil
}

// ListTrustProfiles returns the resolved profile of every user with a
// stored override or tier.
func (s *Store) ListTrustProfiles(ctx context.Context) ([]model.TrustProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id_hash, MAX(updated_at) FROM (
			SELECT user_id_hash, updated_at FROM trust_overrides
			UNION ALL
			SELECT user_id_hash, updated_at FROM tester_tiers
		) GROUP BY user_id_hash ORDER BY 2 DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trust profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type entry struct {
		hash    string
		updated time.Time
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.hash, &e.updated); err != nil {
			return nil, fmt.Errorf("failed to scan trust profile: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	profiles := make([]model.TrustProfile, 0, len(entries))
	for _, e := range entries {
		profile := s.resolveTrust(ctx, s.db, e.hash)
		profile.UpdatedAt = e.updated
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// reweightUser recomputes trust_weight and weighted_score for every event
// by the user, and mirrors the new weights into keyword_votes.
func (s *Store) reweightUser(ctx context.Context, tx *sql.Tx, userHash string) error {
	trust := s.resolveTrust(ctx, tx, userHash)

	rows, err := tx.QueryContext(ctx,
		`SELECT article_link, confidence FROM feedback_events WHERE user_id_hash = ?`, userHash)
	if err != nil {
		return fmt.Errorf("failed to query user events: %w", err)
	}

	type eventRow struct {
		link       string
		confidence float64
	}
	var events []eventRow
	for rows.Next() {
		var e eventRow
		if err := rows.Scan(&e.link, &e.confidence); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan user event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, e := range events {
		weighted := round4(e.confidence * trust.Weight)
		if _, err := tx.ExecContext(ctx, `
			UPDATE feedback_events SET trust_weight = ?, weighted_score = ?
			WHERE user_id_hash = ? AND article_link = ?`,
			trust.Weight, weighted, userHash, e.link); err != nil {
			return fmt.Errorf("failed to reweight event: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE keyword_votes SET weight = ?
			WHERE user_id_hash = ? AND article_link = ?`,
			weighted, userHash, e.link); err != nil {
			return fmt.Errorf("failed to reweight keyword votes: %w", err)
		}
	}

	return nil
}
