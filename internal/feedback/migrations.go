package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// expectedSchemaVersion is the latest schema version for the feedback
// database.
const expectedSchemaVersion = 2

// migration represents a database schema migration.
type migration struct {
	up          func(*sql.Tx) error
	description string
	version     int
}

var migrations = []migration{
	{
		version:     1,
		description: "Initial feedback schema",
		up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS feedback_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id_hash TEXT NOT NULL,
					article_link TEXT NOT NULL,
					article_title TEXT NOT NULL DEFAULT '',
					asset_code TEXT NOT NULL DEFAULT '',
					user_label TEXT NOT NULL,
					ai_label TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 1.0,
					trust_weight REAL NOT NULL DEFAULT 1.0,
					weighted_score REAL NOT NULL DEFAULT 1.0,
					comment TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id_hash, article_link)
				)`,
				`CREATE INDEX idx_feedback_events_link ON feedback_events(article_link)`,
				`CREATE INDEX idx_feedback_events_asset ON feedback_events(asset_code, updated_at)`,

				`CREATE TABLE IF NOT EXISTS keyword_votes (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id_hash TEXT NOT NULL,
					article_link TEXT NOT NULL,
					keyword TEXT NOT NULL,
					user_label TEXT NOT NULL,
					ai_label TEXT NOT NULL DEFAULT '',
					weight REAL NOT NULL DEFAULT 1.0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_keyword_votes_keyword ON keyword_votes(keyword)`,
				`CREATE INDEX idx_keyword_votes_user ON keyword_votes(user_id_hash, article_link)`,

				`CREATE TABLE IF NOT EXISTS trust_overrides (
					user_id_hash TEXT PRIMARY KEY,
					weight REAL NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS tester_tiers (
					user_id_hash TEXT PRIMARY KEY,
					tier TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS keyword_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					keyword TEXT NOT NULL UNIQUE,
					label TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'applied',
					source TEXT NOT NULL DEFAULT 'manual',
					vote_count INTEGER NOT NULL DEFAULT 0,
					consensus_ratio REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		version:     2,
		description: "Add admin audit log",
		up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS audit_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					actor TEXT NOT NULL DEFAULT '',
					action TEXT NOT NULL,
					target_type TEXT NOT NULL DEFAULT '',
					target_id TEXT NOT NULL DEFAULT '',
					meta_json TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX idx_audit_log_created ON audit_log(created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *Store) Migrate(ctx context.Context) error {
	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := m.up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, commitErr)
		}

		slog.Info("Applied feedback migration",
			"version", m.version,
			"description", m.description)
	}

	var finalVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != expectedSchemaVersion {
		return fmt.Errorf("feedback schema version mismatch: expected %d, got %d", expectedSchemaVersion, finalVersion)
	}

	return nil
}
