package pgcargo

import (
	"context"
	"fmt"
	"strings"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const bookingCols = `
  id, lr_number, lr_seq, origin_branch, destination_branch,
  sender, receiver,
  freight, handling, hamali, total,
  payment_type, status, version,
  delivery_remark, collected_by, collected_by_mobile, delivered_at,
  cancel_remark, cancelled_at,
  created_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (*models.Booking, error) {
	var b models.Booking
	var origin, dest, payment, status string
	if err := row.Scan(
		&b.ID, &b.LRNumber, &b.LRSeq, &origin, &dest,
		&b.Sender, &b.Receiver,
		&b.Costs.Freight, &b.Costs.Handling, &b.Costs.Hamali, &b.Costs.Total,
		&payment, &status, &b.Version,
		&b.DeliveryRemark, &b.CollectedBy, &b.CollectedByMobile, &b.DeliveredAt,
		&b.CancelRemark, &b.CancelledAt,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.OriginBranch = models.BranchID(origin)
	b.DestinationBranch = models.BranchID(dest)
	b.PaymentType = models.PaymentType(payment)
	b.Status = models.Status(status)
	return &b, nil
}

func getBooking(ctx context.Context, q querier, where string, args ...any) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, `SELECT`+bookingCols+` FROM bookings `+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrap(models.ErrNotFound, "booking")
	}
	if err != nil {
		return nil, errors.Wrap(err, "select booking")
	}
	if err := loadParcels(ctx, q, []*models.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func loadParcels(ctx context.Context, q querier, bs []*models.Booking) error {
	if len(bs) == 0 {
		return nil
	}
	byID := make(map[uint64]*models.Booking, len(bs))
	ids := make([]int64, 0, len(bs))
	for _, b := range bs {
		byID[b.ID] = b
		b.Parcels = []models.Parcel{}
		ids = append(ids, int64(b.ID))
	}

	rows, err := q.Query(ctx, `
SELECT booking_id, quantity, category, rate, weight
FROM booking_parcels
WHERE booking_id = ANY($1)
ORDER BY booking_id, position
`, ids)
	if err != nil {
		return errors.Wrap(err, "select parcels")
	}
	defer rows.Close()

	for rows.Next() {
		var id uint64
		var p models.Parcel
		var category string
		var weight decimal.NullDecimal
		if err := rows.Scan(&id, &p.Quantity, &category, &p.Rate, &weight); err != nil {
			return errors.Wrap(err, "scan parcel")
		}
		p.Category = models.ItemCategory(category)
		if weight.Valid {
			w := weight.Decimal
			p.Weight = &w
		}
		if b, ok := byID[id]; ok {
			b.Parcels = append(b.Parcels, p)
		}
	}
	if rows.Err() != nil {
		return errors.Wrap(rows.Err(), "rows")
	}
	return nil
}

func insertParcels(ctx context.Context, q querier, bookingID uint64, ps []models.Parcel) error {
	for i, p := range ps {
		var weight any
		if p.Weight != nil {
			weight = *p.Weight
		}
		if _, err := q.Exec(ctx, `
INSERT INTO booking_parcels (booking_id, position, quantity, category, rate, weight)
VALUES ($1,$2,$3,$4,$5,$6)
`, bookingID, i, p.Quantity, string(p.Category), p.Rate, weight); err != nil {
			return errors.Wrap(err, "insert parcel")
		}
	}
	return nil
}

func (s *Storage) GetBooking(ctx context.Context, id uint64) (*models.Booking, error) {
	return getBooking(ctx, s.db, `WHERE id = $1`, id)
}

func (s *Storage) GetBookingByLR(ctx context.Context, lr string) (*models.Booking, error) {
	return getBooking(ctx, s.db, `WHERE lr_number = $1`, lr)
}

// ListBookings pushes the scope predicate into SQL so rows outside the
// caller's branches never leave the database.
func (s *Storage) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Scope != nil {
		p := arg(branchStrings(f.Scope))
		where = append(where, fmt.Sprintf("(origin_branch = ANY(%s) OR destination_branch = ANY(%s))", p, p))
	}
	if f.FromBranch != nil {
		where = append(where, "origin_branch = "+arg(string(*f.FromBranch)))
	}
	if f.ToBranch != nil {
		where = append(where, "destination_branch = "+arg(string(*f.ToBranch)))
	}
	if f.Status != nil {
		where = append(where, "status = "+arg(string(*f.Status)))
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(f.CreatedFrom.UTC()))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at < "+arg(f.CreatedTo.UTC()))
	}

	q := `SELECT` + bookingCols + ` FROM bookings`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select bookings")
	}
	defer rows.Close()

	out := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan booking")
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	if err := loadParcels(ctx, s.db, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *txRepo) InsertBooking(ctx context.Context, b *models.Booking) error {
	err := t.q.QueryRow(ctx, `
INSERT INTO bookings (
  lr_number, lr_seq, origin_branch, destination_branch,
  sender, receiver, freight, handling, hamali,
  payment_type, status, version, created_by, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING id, total
`,
		b.LRNumber, b.LRSeq, string(b.OriginBranch), string(b.DestinationBranch),
		b.Sender, b.Receiver, b.Costs.Freight, b.Costs.Handling, b.Costs.Hamali,
		string(b.PaymentType), string(b.Status), b.Version, b.CreatedBy, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID, &b.Costs.Total)
	if err != nil {
		return errors.Wrap(err, "insert booking")
	}
	return insertParcels(ctx, t.q, b.ID, b.Parcels)
}

func (t *txRepo) GetBooking(ctx context.Context, id uint64) (*models.Booking, error) {
	return getBooking(ctx, t.q, `WHERE id = $1`, id)
}

func (t *txRepo) UpdateBookingStatus(ctx context.Context, b *models.Booking, prevStatus models.Status, prevVersion int64) error {
	tag, err := t.q.Exec(ctx, `
UPDATE bookings SET
  status = $2, version = $3,
  delivery_remark = $4, collected_by = $5, collected_by_mobile = $6, delivered_at = $7,
  cancel_remark = $8, cancelled_at = $9,
  updated_at = $10
WHERE id = $1 AND status = $11 AND version = $12
`,
		b.ID, string(b.Status), b.Version,
		b.DeliveryRemark, b.CollectedBy, b.CollectedByMobile, b.DeliveredAt,
		b.CancelRemark, b.CancelledAt,
		b.UpdatedAt, string(prevStatus), prevVersion,
	)
	if err != nil {
		return errors.Wrap(err, "update booking status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrConcurrentModification, "booking %d", b.ID)
	}
	return nil
}

func (t *txRepo) UpdateBookingDetails(ctx context.Context, b *models.Booking, prevVersion int64) error {
	tag, err := t.q.Exec(ctx, `
UPDATE bookings SET
  sender = $2, receiver = $3,
  freight = $4, handling = $5, hamali = $6,
  payment_type = $7, version = $8, updated_at = $9
WHERE id = $1 AND status = 'BOOKED' AND version = $10
`,
		b.ID, b.Sender, b.Receiver,
		b.Costs.Freight, b.Costs.Handling, b.Costs.Hamali,
		string(b.PaymentType), b.Version, b.UpdatedAt, prevVersion,
	)
	if err != nil {
		return errors.Wrap(err, "update booking")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrConcurrentModification, "booking %d", b.ID)
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM booking_parcels WHERE booking_id = $1`, b.ID); err != nil {
		return errors.Wrap(err, "delete parcels")
	}
	return insertParcels(ctx, t.q, b.ID, b.Parcels)
}

func (t *txRepo) DeleteBooking(ctx context.Context, id uint64, prevVersion int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND version = $2`, id, prevVersion)
	if err != nil {
		return errors.Wrap(err, "delete booking")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrConcurrentModification, "booking %d", id)
	}
	return nil
}

func branchStrings(ids []models.BranchID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
