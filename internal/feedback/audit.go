package feedback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/signalwatch/signalwatch/internal/common"
	"github.com/signalwatch/signalwatch/internal/model"
)

// RecordAudit appends an admin mutation to the audit log. Best effort: a
// failure is logged and swallowed so it never breaks the primary path.
func (s *Store) RecordAudit(ctx context.Context, actor, action, targetType, targetID string, meta map[string]any) {
	metaJSON := ""
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			metaJSON = string(raw)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, target_type, target_id, meta_json)
		VALUES (?, ?, ?, ?, ?)`,
		actor, action, targetType, targetID, metaJSON)
	if err != nil {
		common.LogError(err, "failed to record audit entry", common.Fields{"action": action})
	}
}

// ListAudit returns the newest audit entries.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, actor, action, target_type, target_id, meta_json
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Actor, &e.Action, &e.TargetType, &e.TargetID, &e.MetaJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
