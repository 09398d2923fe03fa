// Package storage declares the repository boundary shared by the Postgres and
// in-memory stores. Compound operations run inside WithinTx so that a booking,
// its ledger posting, its audit entry and its outbox event commit together.
package storage

import (
	"context"

	"github.com/BearBump/CargoLedger/internal/models"
)

// Tx is the view of the store available inside one transaction.
type Tx interface {
	// IncrementSequence creates the counter at 1 or bumps it, atomically.
	IncrementSequence(ctx context.Context, key models.SequenceKey) (int64, error)
	// GetSequence returns 0 for a counter that was never issued.
	GetSequence(ctx context.Context, key models.SequenceKey) (int64, error)
	SetSequence(ctx context.Context, key models.SequenceKey, value int64) error

	BranchExists(ctx context.Context, id models.BranchID) (bool, error)

	// InsertBooking assigns ID.
	InsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id uint64) (*models.Booking, error)
	// UpdateBookingStatus writes b's status fields only if the stored row still
	// has prevStatus and prevVersion, else ErrConcurrentModification.
	UpdateBookingStatus(ctx context.Context, b *models.Booking, prevStatus models.Status, prevVersion int64) error
	// UpdateBookingDetails is the same compare-and-swap for the editable fields.
	UpdateBookingDetails(ctx context.Context, b *models.Booking, prevVersion int64) error
	DeleteBooking(ctx context.Context, id uint64, prevVersion int64) error

	FindLedgerByBooking(ctx context.Context, bookingID uint64, reason models.LedgerReason) (*models.LedgerTransaction, error)
	FindReversalOf(ctx context.Context, id uint64) (*models.LedgerTransaction, error)
	GetLedgerTransaction(ctx context.Context, id uint64) (*models.LedgerTransaction, error)
	CountLedgerByBooking(ctx context.Context, bookingID uint64) (int, error)
	InsertLedgerTransaction(ctx context.Context, t *models.LedgerTransaction) error

	InsertAudit(ctx context.Context, e *models.AuditLogEntry) error
	InsertOutboxEvent(ctx context.Context, e *models.OutboxEvent) error
}

type Store interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListBranches(ctx context.Context) ([]models.Branch, error)
	UpsertBranches(ctx context.Context, bs []models.Branch) error

	GetBooking(ctx context.Context, id uint64) (*models.Booking, error)
	GetBookingByLR(ctx context.Context, lr string) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error)

	ListLedger(ctx context.Context, f models.LedgerFilter) ([]*models.LedgerTransaction, error)
	ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error)
}
