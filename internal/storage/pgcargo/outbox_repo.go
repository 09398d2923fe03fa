package pgcargo

import (
	"context"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (t *txRepo) InsertOutboxEvent(ctx context.Context, e *models.OutboxEvent) error {
	_, err := t.q.Exec(ctx, `
INSERT INTO outbox_events (id, topic, key, payload, attempts, next_attempt_at, created_at)
VALUES ($1,$2,$3,$4,0,$5,$6)
`, e.ID, e.Topic, e.Key, string(e.Payload), e.NextAttemptAt, e.CreatedAt)
	return errors.Wrap(err, "insert outbox event")
}

// ClaimDueEvents picks unpublished events that are due and leases them by
// pushing next_attempt_at forward, so a second relay does not pick them up
// while this one publishes. Uses SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxEvent, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, topic, key, payload, attempts, next_attempt_at, last_error, created_at
FROM outbox_events
WHERE published_at IS NULL
  AND next_attempt_at <= $1
ORDER BY created_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due events")
	}
	defer rows.Close()

	var picked []*models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Topic, &e.Key, &payload, &e.Attempts, &e.NextAttemptAt, &e.LastError, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan due event")
		}
		e.Payload = payload
		picked = append(picked, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	if len(picked) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(picked))
	for _, e := range picked {
		ids = append(ids, e.ID)
	}
	leaseUntil := now.UTC().Add(lease)
	if _, err := tx.Exec(ctx, `UPDATE outbox_events SET next_attempt_at = $2 WHERE id = ANY($1::uuid[])`, ids, leaseUntil); err != nil {
		return nil, errors.Wrap(err, "lease events")
	}
	for _, e := range picked {
		e.NextAttemptAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE outbox_events SET published_at = $2, attempts = attempts + 1, last_error = NULL
WHERE id = $1
`, id, at.UTC())
	return errors.Wrap(err, "mark published")
}

func (s *Storage) MarkFailed(ctx context.Context, id string, reason string, next time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE outbox_events SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
WHERE id = $1
`, id, reason, next.UTC())
	return errors.Wrap(err, "mark failed")
}

// PendingCount feeds the relay's readiness endpoint.
func (s *Storage) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM outbox_events WHERE published_at IS NULL`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count pending")
	}
	return n, nil
}
