package history

import (
	"context"
	"fmt"

	"github.com/signalwatch/signalwatch/internal/model"
)

// AlertMetrics summarizes recent alert activity.
type AlertMetrics struct {
	ByDeliveryLevel map[model.DeliveryLevel]int `json:"by_delivery_level"`
	TotalAlerts     int                         `json:"total_alerts"`
	DistinctAssets  int                         `json:"distinct_assets"`
	AverageScore    float64                     `json:"average_score"`
	MaxScore        int                         `json:"max_score"`
	WindowHours     int                         `json:"window_hours"`
}

// GetAlertMetrics aggregates alert activity inside the window.
func (s *Store) GetAlertMetrics(ctx context.Context, windowHours int) (*AlertMetrics, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := fmt.Sprintf("-%d hours", windowHours)

	m := &AlertMetrics{
		ByDeliveryLevel: make(map[model.DeliveryLevel]int),
		WindowHours:     windowHours,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT asset_code), COALESCE(AVG(score), 0), COALESCE(MAX(score), 0)
		FROM alert_history WHERE created_at >= datetime('now', ?)`, since).
		Scan(&m.TotalAlerts, &m.DistinctAssets, &m.AverageScore, &m.MaxScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate alert metrics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT delivery_level, COUNT(*) FROM alert_history
		WHERE created_at >= datetime('now', ?) GROUP BY delivery_level`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count delivery levels: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan delivery count: %w", err)
		}
		m.ByDeliveryLevel[model.DeliveryLevel(level)] = count
	}
	return m, rows.Err()
}

// RunMetrics summarizes recent scheduler activity per policy.
type RunMetrics struct {
	RunsByPolicy      map[string]int `json:"runs_by_policy"`
	TotalRuns         int            `json:"total_runs"`
	ErrorRuns         int            `json:"error_runs"`
	AverageDurationMS float64        `json:"average_duration_ms"`
	WindowHours       int            `json:"window_hours"`
}

// GetRunMetrics aggregates run activity inside the window.
func (s *Store) GetRunMetrics(ctx context.Context, windowHours int) (*RunMetrics, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	since := fmt.Sprintf("-%d hours", windowHours)

	m := &RunMetrics{
		RunsByPolicy: make(map[string]int),
		WindowHours:  windowHours,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM run_history WHERE started_at >= datetime('now', ?)`,
		model.RunStatusError, since).
		Scan(&m.TotalRuns, &m.ErrorRuns, &m.AverageDurationMS)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate run metrics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy, COUNT(*) FROM run_history
		WHERE started_at >= datetime('now', ?) GROUP BY policy`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs by policy: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var policy string
		var count int
		if err := rows.Scan(&policy, &count); err != nil {
			return nil, fmt.Errorf("failed to scan policy count: %w", err)
		}
		m.RunsByPolicy[policy] = count
	}
	return m, rows.Err()
}
