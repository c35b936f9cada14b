// Package history persists scored alerts and monitoring runs to SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalwatch/signalwatch/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// expectedSchemaVersion is the latest schema version for the history
// database.
const expectedSchemaVersion = 1

// Store is the SQLite-backed alert and run history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (or creates) the history database.
func NewStore(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies all pending database migrations.
func (s *Store) Migrate(ctx context.Context) error {
	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion < 1 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		queries := []string{
			// Typed columns cover the query paths; payload_json keeps the
			// full alert (reasons, metrics, articles) for display.
			`CREATE TABLE IF NOT EXISTS alert_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
				asset_code TEXT NOT NULL,
				asset_name TEXT NOT NULL DEFAULT '',
				score INTEGER NOT NULL,
				delivery_level TEXT NOT NULL,
				priority TEXT NOT NULL,
				article_count INTEGER NOT NULL DEFAULT 0,
				sentiment TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT '',
				payload_json TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX idx_alert_history_created ON alert_history(created_at)`,
			`CREATE INDEX idx_alert_history_asset ON alert_history(asset_code, created_at)`,

			`CREATE TABLE IF NOT EXISTS run_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL,
				status TEXT NOT NULL,
				trigger_kind TEXT NOT NULL DEFAULT '',
				policy TEXT NOT NULL DEFAULT '',
				duration_ms INTEGER NOT NULL DEFAULT 0,
				result_count INTEGER NOT NULL DEFAULT 0,
				average_score REAL NOT NULL DEFAULT 0,
				effective_min_score INTEGER NOT NULL DEFAULT 0,
				adaptive_direction TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX idx_run_history_started ON run_history(started_at)`,
		}

		for _, query := range queries {
			if _, err := tx.Exec(query); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to execute query: %w", err)
			}
		}

		if _, err := tx.Exec("PRAGMA user_version = 1"); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration: %w", err)
		}

		slog.Info("Applied history migration", "version", 1, "description", "Initial history schema")
	}

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != expectedSchemaVersion {
		return fmt.Errorf("history schema version mismatch: expected %d, got %d", expectedSchemaVersion, finalVersion)
	}

	return nil
}

// SaveAlerts persists a batch of scored alerts.
func (s *Store) SaveAlerts(ctx context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to marshal alert payload: %w", err)
		}

		createdAt := alert.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alert_history
				(created_at, asset_code, asset_name, score, delivery_level, priority, article_count, sentiment, summary, payload_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			createdAt, alert.AssetCode, alert.AssetName, alert.Score,
			string(alert.DeliveryLevel), string(alert.Priority),
			alert.ArticleCount, alert.Sentiment, alert.Summary, string(payload)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alerts: %w", err)
	}
	return nil
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	Since         time.Time
	AssetCode     string
	DeliveryLevel model.DeliveryLevel
	MinScore      int
	Limit         int
}

// ListAlerts returns alerts newest first.
func (s *Store) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `
		SELECT id, created_at, asset_code, asset_name, score, delivery_level, priority,
			article_count, sentiment, summary, payload_json
		FROM alert_history WHERE 1=1`
	args := []any{}
	if filter.AssetCode != "" {
		query += ` AND asset_code = ?`
		args = append(args, filter.AssetCode)
	}
	if filter.MinScore > 0 {
		query += ` AND score >= ?`
		args = append(args, filter.MinScore)
	}
	if filter.DeliveryLevel != "" {
		query += ` AND delivery_level = ?`
		args = append(args, string(filter.DeliveryLevel))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var level, priority, payload string
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.AssetCode, &a.AssetName, &a.Score,
			&level, &priority, &a.ArticleCount, &a.Sentiment, &a.Summary, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.DeliveryLevel = model.DeliveryLevel(level)
		a.Priority = model.Priority(priority)
		if payload != "" {
			var full model.Alert
			if err := json.Unmarshal([]byte(payload), &full); err == nil {
				a.Reasons = full.Reasons
				a.Articles = full.Articles
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// SaveRun persists one monitoring run record.
func (s *Store) SaveRun(ctx context.Context, run model.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history
			(started_at, finished_at, status, trigger_kind, policy, duration_ms, result_count, average_score, effective_min_score, adaptive_direction, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt, run.FinishedAt, run.Status, run.Trigger, run.Policy,
		run.DurationMS, run.ResultCount, run.AverageScore, run.EffectiveMinScore,
		run.AdaptiveDirection, run.Error)
	if err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}
	return nil
}

// ListRuns returns run records newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, trigger_kind, policy, duration_ms,
			result_count, average_score, effective_min_score, adaptive_direction, error
		FROM run_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Trigger, &r.Policy,
			&r.DurationMS, &r.ResultCount, &r.AverageScore, &r.EffectiveMinScore,
			&r.AdaptiveDirection, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
