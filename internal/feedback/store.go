// Package feedback implements the consensus feedback engine: trust-weighted
// tester votes, keyword-rule mining, and the aggregated signals consumed by
// the importance scorer.
package feedback

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalwatch/signalwatch/internal/config"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Trust weight bounds for manual overrides.
const (
	minTrustWeight = 0.2
	maxTrustWeight = 3.0
)

// Store is the SQLite-backed consensus feedback engine.
type Store struct {
	db        *sql.DB
	ruleCache *ruleCache
	dbPath    string
	cfg       config.FeedbackConfig
}

// NewStore opens (or creates) the feedback database.
func NewStore(dbPath string, cfg config.FeedbackConfig) (*Store, error) {
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

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:        db,
		dbPath:    dbPath,
		cfg:       cfg,
		ruleCache: newRuleCache(cfg.RuleCacheTTL),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// hashUserID anonymizes a raw user identifier. Raw identifiers never touch
// disk.
func hashUserID(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])
}

// round4 rounds a weighted score to four decimal places so stored values
// stay stable across recomputation.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// inTx runs fn inside a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
