package messages

import (
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
)

const TopicBookingEvents = "booking.events"

type BookingEventType string

const (
	BookingCreated       BookingEventType = "booking.created"
	BookingStatusChanged BookingEventType = "booking.status_changed"
	BookingUpdated       BookingEventType = "booking.updated"
	BookingPurged        BookingEventType = "booking.purged"
)

// BookingEvent is the payload of an outbox row. Booking is the state after the
// change; it is nil for purges.
type BookingEvent struct {
	EventID    string           `json:"event_id"`
	Type       BookingEventType `json:"type"`
	BookingID  uint64           `json:"booking_id"`
	LRNumber   string           `json:"lr_number"`
	Status     models.Status    `json:"status,omitempty"`
	Version    int64            `json:"version"`
	Actor      string           `json:"actor"`
	OccurredAt time.Time        `json:"occurred_at"`

	LedgerTransactionID *uint64         `json:"ledger_transaction_id,omitempty"`
	Booking             *models.Booking `json:"booking,omitempty"`
}
