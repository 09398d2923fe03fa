package pgcargo

import (
	"context"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// IncrementSequence is a single upsert: the first caller creates the row at 1,
// later callers bump it. The row lock is held until the surrounding transaction
// ends, so the number and the booking that carries it commit together.
func (t *txRepo) IncrementSequence(ctx context.Context, key models.SequenceKey) (int64, error) {
	var n int64
	err := t.q.QueryRow(ctx, `
INSERT INTO sequence_counters (branch, entity, field, last_value, updated_at)
VALUES ($1,$2,$3,1,now())
ON CONFLICT (branch, entity, field)
DO UPDATE SET last_value = sequence_counters.last_value + 1, updated_at = now()
RETURNING last_value
`, string(key.Branch), key.Entity, key.Field).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "increment sequence")
	}
	return n, nil
}

func (t *txRepo) GetSequence(ctx context.Context, key models.SequenceKey) (int64, error) {
	var n int64
	err := t.q.QueryRow(ctx, `
SELECT last_value FROM sequence_counters
WHERE branch = $1 AND entity = $2 AND field = $3
FOR UPDATE
`, string(key.Branch), key.Entity, key.Field).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "select sequence")
	}
	return n, nil
}

// SetSequence never lowers a counter.
func (t *txRepo) SetSequence(ctx context.Context, key models.SequenceKey, value int64) error {
	_, err := t.q.Exec(ctx, `
INSERT INTO sequence_counters (branch, entity, field, last_value, updated_at)
VALUES ($1,$2,$3,$4,now())
ON CONFLICT (branch, entity, field)
DO UPDATE SET last_value = GREATEST(sequence_counters.last_value, EXCLUDED.last_value), updated_at = now()
`, string(key.Branch), key.Entity, key.Field, value)
	return errors.Wrap(err, "set sequence")
}
