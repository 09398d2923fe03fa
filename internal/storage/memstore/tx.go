package memstore

import (
	"context"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

type tx struct {
	s *Store
	d *data
}

func (t *tx) IncrementSequence(ctx context.Context, key models.SequenceKey) (int64, error) {
	if err := t.s.fault("IncrementSequence"); err != nil {
		return 0, err
	}
	t.d.counters[key]++
	return t.d.counters[key], nil
}

func (t *tx) GetSequence(ctx context.Context, key models.SequenceKey) (int64, error) {
	return t.d.counters[key], nil
}

func (t *tx) SetSequence(ctx context.Context, key models.SequenceKey, value int64) error {
	if err := t.s.fault("SetSequence"); err != nil {
		return err
	}
	t.d.counters[key] = value
	return nil
}

func (t *tx) BranchExists(ctx context.Context, id models.BranchID) (bool, error) {
	return t.s.branchExists(id), nil
}

func (t *tx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if err := t.s.fault("InsertBooking"); err != nil {
		return err
	}
	if _, dup := t.d.lrIndex[b.LRNumber]; dup {
		return errors.Errorf("lr number %s already issued", b.LRNumber)
	}
	t.d.nextBookingID++
	b.ID = t.d.nextBookingID
	t.d.bookings[b.ID] = b.Clone()
	t.d.lrIndex[b.LRNumber] = b.ID
	return nil
}

func (t *tx) GetBooking(ctx context.Context, id uint64) (*models.Booking, error) {
	b, ok := t.d.bookings[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "booking %d", id)
	}
	return b.Clone(), nil
}

func (t *tx) UpdateBookingStatus(ctx context.Context, b *models.Booking, prevStatus models.Status, prevVersion int64) error {
	if err := t.s.fault("UpdateBookingStatus"); err != nil {
		return err
	}
	cur, ok := t.d.bookings[b.ID]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "booking %d", b.ID)
	}
	if cur.Status != prevStatus || cur.Version != prevVersion {
		return errors.Wrapf(models.ErrConcurrentModification, "booking %d", b.ID)
	}
	next := cur.Clone()
	next.Status = b.Status
	next.Version = b.Version
	next.DeliveryRemark = b.DeliveryRemark
	next.CollectedBy = b.CollectedBy
	next.CollectedByMobile = b.CollectedByMobile
	next.DeliveredAt = b.DeliveredAt
	next.CancelRemark = b.CancelRemark
	next.CancelledAt = b.CancelledAt
	next.UpdatedAt = b.UpdatedAt
	t.d.bookings[b.ID] = next
	return nil
}

func (t *tx) UpdateBookingDetails(ctx context.Context, b *models.Booking, prevVersion int64) error {
	if err := t.s.fault("UpdateBookingDetails"); err != nil {
		return err
	}
	cur, ok := t.d.bookings[b.ID]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "booking %d", b.ID)
	}
	if cur.Status != models.StatusBooked || cur.Version != prevVersion {
		return errors.Wrapf(models.ErrConcurrentModification, "booking %d", b.ID)
	}
	next := cur.Clone()
	next.Sender = b.Sender
	next.Receiver = b.Receiver
	next.Parcels = append([]models.Parcel(nil), b.Parcels...)
	next.Costs = models.NewCosts(b.Costs.Freight, b.Costs.Handling, b.Costs.Hamali)
	next.PaymentType = b.PaymentType
	next.Version = b.Version
	next.UpdatedAt = b.UpdatedAt
	t.d.bookings[b.ID] = next
	return nil
}

func (t *tx) DeleteBooking(ctx context.Context, id uint64, prevVersion int64) error {
	cur, ok := t.d.bookings[id]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "booking %d", id)
	}
	if cur.Version != prevVersion {
		return errors.Wrapf(models.ErrConcurrentModification, "booking %d", id)
	}
	delete(t.d.bookings, id)
	delete(t.d.lrIndex, cur.LRNumber)
	return nil
}

func (t *tx) FindLedgerByBooking(ctx context.Context, bookingID uint64, reason models.LedgerReason) (*models.LedgerTransaction, error) {
	for _, e := range t.d.ledger {
		if e.BookingID == bookingID && e.Reason == reason {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (t *tx) FindReversalOf(ctx context.Context, id uint64) (*models.LedgerTransaction, error) {
	for _, e := range t.d.ledger {
		if e.Reverses != nil && *e.Reverses == id {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (t *tx) GetLedgerTransaction(ctx context.Context, id uint64) (*models.LedgerTransaction, error) {
	for _, e := range t.d.ledger {
		if e.ID == id {
			c := *e
			return &c, nil
		}
	}
	return nil, errors.Wrapf(models.ErrNotFound, "ledger transaction %d", id)
}

func (t *tx) CountLedgerByBooking(ctx context.Context, bookingID uint64) (int, error) {
	n := 0
	for _, e := range t.d.ledger {
		if e.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}

// InsertLedgerTransaction enforces the same uniqueness as the Postgres partial
// index: one delivery collection per booking, one reversal per posting.
func (t *tx) InsertLedgerTransaction(ctx context.Context, lt *models.LedgerTransaction) error {
	if err := t.s.fault("InsertLedgerTransaction"); err != nil {
		return err
	}
	for _, e := range t.d.ledger {
		if lt.Reason == models.LedgerReasonDeliveryCollection && e.Reason == lt.Reason && e.BookingID == lt.BookingID {
			return errors.Wrapf(models.ErrDuplicatePosting, "booking %d", lt.BookingID)
		}
		if lt.Reverses != nil && e.Reverses != nil && *e.Reverses == *lt.Reverses {
			return errors.Wrapf(models.ErrAlreadyReversed, "transaction %d", *lt.Reverses)
		}
	}
	t.d.nextLedgerID++
	lt.ID = t.d.nextLedgerID
	c := *lt
	t.d.ledger = append(t.d.ledger, &c)
	return nil
}

func (t *tx) InsertAudit(ctx context.Context, e *models.AuditLogEntry) error {
	if err := t.s.fault("InsertAudit"); err != nil {
		return err
	}
	c := *e
	t.d.audit = append(t.d.audit, &c)
	return nil
}

func (t *tx) InsertOutboxEvent(ctx context.Context, e *models.OutboxEvent) error {
	if err := t.s.fault("InsertOutboxEvent"); err != nil {
		return err
	}
	c := *e
	t.d.outbox = append(t.d.outbox, &c)
	return nil
}
