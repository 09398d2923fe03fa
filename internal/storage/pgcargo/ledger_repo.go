package pgcargo

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const ledgerCols = `id, booking_id, branch, amount, type, reason, description, reverses, created_by, created_at`

func scanLedger(row scanner) (*models.LedgerTransaction, error) {
	var t models.LedgerTransaction
	var branch, typ, reason string
	if err := row.Scan(&t.ID, &t.BookingID, &branch, &t.Amount, &typ, &reason, &t.Description, &t.Reverses, &t.CreatedBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Branch = models.BranchID(branch)
	t.Type = models.LedgerEntryType(typ)
	t.Reason = models.LedgerReason(reason)
	return &t, nil
}

// findLedger returns nil, nil when nothing matches.
func findLedger(ctx context.Context, q querier, where string, args ...any) (*models.LedgerTransaction, error) {
	t, err := scanLedger(q.QueryRow(ctx, `SELECT `+ledgerCols+` FROM ledger_transactions `+where+` LIMIT 1`, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select ledger transaction")
	}
	return t, nil
}

func (t *txRepo) FindLedgerByBooking(ctx context.Context, bookingID uint64, reason models.LedgerReason) (*models.LedgerTransaction, error) {
	return findLedger(ctx, t.q, `WHERE booking_id = $1 AND reason = $2`, bookingID, string(reason))
}

func (t *txRepo) FindReversalOf(ctx context.Context, id uint64) (*models.LedgerTransaction, error) {
	return findLedger(ctx, t.q, `WHERE reverses = $1`, id)
}

func (t *txRepo) GetLedgerTransaction(ctx context.Context, id uint64) (*models.LedgerTransaction, error) {
	lt, err := findLedger(ctx, t.q, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if lt == nil {
		return nil, errors.Wrapf(models.ErrNotFound, "ledger transaction %d", id)
	}
	return lt, nil
}

func (t *txRepo) CountLedgerByBooking(ctx context.Context, bookingID uint64) (int, error) {
	var n int
	if err := t.q.QueryRow(ctx, `SELECT count(*) FROM ledger_transactions WHERE booking_id = $1`, bookingID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count ledger")
	}
	return n, nil
}

func (t *txRepo) InsertLedgerTransaction(ctx context.Context, lt *models.LedgerTransaction) error {
	err := t.q.QueryRow(ctx, `
INSERT INTO ledger_transactions (booking_id, branch, amount, type, reason, description, reverses, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`, lt.BookingID, string(lt.Branch), lt.Amount, string(lt.Type), string(lt.Reason), lt.Description, lt.Reverses, lt.CreatedBy, lt.CreatedAt).Scan(&lt.ID)
	switch {
	case uniqueViolation(err, "uq_ledger_delivery_collection"):
		return errors.Wrapf(models.ErrDuplicatePosting, "booking %d", lt.BookingID)
	case uniqueViolation(err, "uq_ledger_reverses"):
		return errors.Wrapf(models.ErrAlreadyReversed, "transaction %d", *lt.Reverses)
	case err != nil:
		return errors.Wrap(err, "insert ledger transaction")
	}
	return nil
}

func (s *Storage) ListLedger(ctx context.Context, f models.LedgerFilter) ([]*models.LedgerTransaction, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Scope != nil {
		p := arg(branchStrings(f.Scope))
		where = append(where, fmt.Sprintf(`(branch = ANY(%[1]s) OR booking_id IN (
  SELECT id FROM bookings WHERE origin_branch = ANY(%[1]s) OR destination_branch = ANY(%[1]s)))`, p))
	}
	if f.Branch != nil {
		where = append(where, "branch = "+arg(string(*f.Branch)))
	}
	if f.BookingID != nil {
		where = append(where, "booking_id = "+arg(*f.BookingID))
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(f.CreatedFrom.UTC()))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at < "+arg(f.CreatedTo.UTC()))
	}

	q := `SELECT ` + ledgerCols + ` FROM ledger_transactions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select ledger")
	}
	defer rows.Close()

	var out []*models.LedgerTransaction
	for rows.Next() {
		t, err := scanLedger(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan ledger transaction")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
