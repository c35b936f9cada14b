package history

import (
	"context"
	"fmt"
	"time"
)

// PruneResult reports what a prune removed (or, for a preview, would
// remove).
type PruneResult struct {
	OldDeleted      int `json:"old_deleted"`
	OverflowDeleted int `json:"overflow_deleted"`
	DeletedTotal    int `json:"deleted_total"`
	Remaining       int `json:"remaining"`
}

// Prune removes alerts older than retentionDays, then deletes the oldest
// rows until at most maxRows remain.
func (s *Store) Prune(ctx context.Context, retentionDays, maxRows int) (*PruneResult, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if maxRows <= 0 {
		maxRows = 5000
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result := &PruneResult{}

	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to prune old alerts: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		result.OldDeleted = int(n)
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_history`).Scan(&remaining); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	if overflow := remaining - maxRows; overflow > 0 {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM alert_history WHERE id IN (
				SELECT id FROM alert_history ORDER BY id ASC LIMIT ?
			)`, overflow)
		if err != nil {
			return nil, fmt.Errorf("failed to prune overflow alerts: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			result.OverflowDeleted = int(n)
		}
		remaining -= result.OverflowDeleted
	}

	result.DeletedTotal = result.OldDeleted + result.OverflowDeleted
	result.Remaining = remaining
	return result, nil
}

// PreviewPrune computes what Prune would delete without mutating anything.
func (s *Store) PreviewPrune(ctx context.Context, retentionDays, maxRows int) (*PruneResult, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if maxRows <= 0 {
		maxRows = 5000
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result := &PruneResult{}

	var total, old int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_history`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_history WHERE created_at < ?`, cutoff).Scan(&old); err != nil {
		return nil, fmt.Errorf("failed to count old alerts: %w", err)
	}

	result.OldDeleted = old
	if overflow := (total - old) - maxRows; overflow > 0 {
		result.OverflowDeleted = overflow
	}
	result.DeletedTotal = result.OldDeleted + result.OverflowDeleted
	result.Remaining = total - result.DeletedTotal
	return result, nil
}
