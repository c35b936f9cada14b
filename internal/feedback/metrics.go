package feedback

import (
	"context"
	"fmt"

	"github.com/signalwatch/signalwatch/internal/model"
)

// Metrics summarizes feedback activity for the ops endpoint.
type Metrics struct {
	LabelCounts    map[model.SentimentLabel]int `json:"label_counts"`
	TotalEvents    int                          `json:"total_events"`
	RecentEvents   int                          `json:"recent_events"`
	DistinctUsers  int                          `json:"distinct_users"`
	DistinctAssets int                          `json:"distinct_assets"`
	AppliedRules   int                          `json:"applied_rules"`
	WindowHours    int                          `json:"window_hours"`
}

// GetMetrics aggregates feedback activity, with the recency window taken
// from the signal configuration.
func (s *Store) GetMetrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{
		LabelCounts: make(map[model.SentimentLabel]int),
		WindowHours: s.cfg.SignalWindowHours,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT user_id_hash), COUNT(DISTINCT NULLIF(asset_code, ''))
		FROM feedback_events`).Scan(&m.TotalEvents, &m.DistinctUsers, &m.DistinctAssets)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback totals: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback_events WHERE updated_at >= datetime('now', ?)`,
		fmt.Sprintf("-%d hours", s.cfg.SignalWindowHours)).Scan(&m.RecentEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_label, COUNT(*) FROM feedback_events GROUP BY user_label`)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		m.LabelCounts[model.SentimentLabel(label)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM keyword_rules WHERE status = ?`,
		string(model.RuleApplied)).Scan(&m.AppliedRules)
	if err != nil {
		return nil, fmt.Errorf("failed to count applied rules: %w", err)
	}

	return m, nil
}
