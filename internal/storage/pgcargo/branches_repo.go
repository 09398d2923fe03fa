package pgcargo

import (
	"context"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) ListBranches(ctx context.Context) ([]models.Branch, error) {
	rows, err := s.db.Query(ctx, `SELECT code, name FROM branches ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, "select branches")
	}
	defer rows.Close()

	var out []models.Branch
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, errors.Wrap(err, "scan branch")
		}
		out = append(out, models.Branch{Code: models.BranchID(code), Name: name})
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpsertBranches seeds the directory from configuration; re-running is a no-op
// apart from picking up renamed branches.
func (s *Storage) UpsertBranches(ctx context.Context, bs []models.Branch) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, b := range bs {
		if b.Code == "" {
			return errors.New("branch code is required")
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO branches (code, name) VALUES ($1,$2)
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
`, string(b.Code), b.Name); err != nil {
			return errors.Wrap(err, "upsert branch")
		}
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func (t *txRepo) BranchExists(ctx context.Context, id models.BranchID) (bool, error) {
	var ok bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE code = $1)`, string(id)).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "check branch")
	}
	return ok, nil
}
