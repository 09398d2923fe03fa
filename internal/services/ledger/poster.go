package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

// Store is append-only: there is no update and no delete.
type Store interface {
	// FindLedgerByBooking returns nil, nil when the booking has no posting for reason.
	FindLedgerByBooking(ctx context.Context, bookingID uint64, reason models.LedgerReason) (*models.LedgerTransaction, error)
	// FindReversalOf returns nil, nil when id has not been reversed.
	FindReversalOf(ctx context.Context, id uint64) (*models.LedgerTransaction, error)
	// InsertLedgerTransaction assigns ID and CreatedAt. A second delivery
	// collection for the same booking fails with ErrDuplicatePosting.
	InsertLedgerTransaction(ctx context.Context, t *models.LedgerTransaction) error
}

type Poster struct {
	st  Store
	now func() time.Time
}

func NewPoster(st Store) *Poster {
	return &Poster{st: st, now: func() time.Time { return time.Now().UTC() }}
}

// PostDeliveryCollection credits the destination branch with the total of a
// To Pay booking. Paid bookings post nothing and return nil, nil.
// At most one collection exists per booking; a retry gets *DuplicatePostingError.
func (p *Poster) PostDeliveryCollection(ctx context.Context, b *models.Booking, actor string) (*models.LedgerTransaction, error) {
	if b.PaymentType != models.PaymentToPay {
		return nil, nil
	}
	if !b.Costs.Consistent() {
		return nil, errors.Errorf("booking %d has inconsistent costs", b.ID)
	}

	existing, err := p.st.FindLedgerByBooking(ctx, b.ID, models.LedgerReasonDeliveryCollection)
	if err != nil {
		return nil, errors.Wrap(err, "find existing collection")
	}
	if existing != nil {
		return nil, &models.DuplicatePostingError{Existing: existing}
	}

	tx := &models.LedgerTransaction{
		BookingID:   b.ID,
		Branch:      b.DestinationBranch,
		Amount:      b.Costs.Total,
		Type:        models.LedgerCredit,
		Reason:      models.LedgerReasonDeliveryCollection,
		Description: fmt.Sprintf("To Pay collection for LR %s", b.LRNumber),
		CreatedBy:   actor,
		CreatedAt:   p.now(),
	}
	if err := p.st.InsertLedgerTransaction(ctx, tx); err != nil {
		if errors.Is(err, models.ErrDuplicatePosting) {
			return nil, err
		}
		return nil, errors.Wrap(err, "insert collection")
	}
	return tx, nil
}

// PostOffset undoes original by posting the opposite entry for the same amount.
// Each posting can be offset once, and offsets themselves are not offset.
func (p *Poster) PostOffset(ctx context.Context, original *models.LedgerTransaction, actor, note string) (*models.LedgerTransaction, error) {
	if original.Reverses != nil {
		v := models.NewValidationError()
		v.Add("id", "an offsetting entry cannot itself be reversed")
		return nil, v
	}
	prev, err := p.st.FindReversalOf(ctx, original.ID)
	if err != nil {
		return nil, errors.Wrap(err, "find reversal")
	}
	if prev != nil {
		return nil, errors.Wrapf(models.ErrAlreadyReversed, "transaction %d reversed by %d", original.ID, prev.ID)
	}

	typ := models.LedgerDebit
	if original.Type == models.LedgerDebit {
		typ = models.LedgerCredit
	}
	desc := fmt.Sprintf("Reversal of transaction %d", original.ID)
	if note != "" {
		desc += ": " + note
	}
	id := original.ID
	tx := &models.LedgerTransaction{
		BookingID:   original.BookingID,
		Branch:      original.Branch,
		Amount:      original.Amount,
		Type:        typ,
		Reason:      models.LedgerReasonReversal,
		Description: desc,
		Reverses:    &id,
		CreatedBy:   actor,
		CreatedAt:   p.now(),
	}
	if err := p.st.InsertLedgerTransaction(ctx, tx); err != nil {
		return nil, errors.Wrap(err, "insert reversal")
	}
	return tx, nil
}
