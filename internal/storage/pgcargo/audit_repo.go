package pgcargo

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

func (t *txRepo) InsertAudit(ctx context.Context, e *models.AuditLogEntry) error {
	_, err := t.q.Exec(ctx, `
INSERT INTO audit_log (id, actor, action, entity_type, entity_id, before, after, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, e.ID, e.Actor, string(e.Action), e.EntityType, e.EntityID, nullJSON(e.Before), nullJSON(e.After), e.CreatedAt)
	return errors.Wrap(err, "insert audit")
}

func (s *Storage) ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EntityType != nil {
		where = append(where, "entity_type = "+arg(*f.EntityType))
	}
	if f.EntityID != nil {
		where = append(where, "entity_id = "+arg(*f.EntityID))
	}
	if f.Actor != nil {
		where = append(where, "actor = "+arg(*f.Actor))
	}

	q := `SELECT id, actor, action, entity_type, entity_id, before, after, created_at FROM audit_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select audit")
	}
	defer rows.Close()

	var out []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var action string
		var before, after []byte
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.EntityType, &e.EntityID, &before, &after, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan audit")
		}
		e.Action = models.AuditAction(action)
		e.Before = before
		e.After = after
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// nullJSON maps an empty snapshot to SQL NULL instead of an invalid jsonb literal.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
