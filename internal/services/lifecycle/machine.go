package lifecycle

import (
	"strings"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

const (
	DefaultDeliveryRemark = "Delivered"
	DefaultCancelRemark   = "Cancelled"
)

// edges is the whole transition graph; anything not listed is illegal,
// including staying in the current status.
var edges = map[models.Status][]models.Status{
	models.StatusBooked:    {models.StatusInTransit, models.StatusCancelled},
	models.StatusInTransit: {models.StatusArrived, models.StatusCancelled},
	models.StatusArrived:   {models.StatusDelivered, models.StatusCancelled},
}

func CanTransition(from, to models.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable in one step from s.
func Next(s models.Status) []models.Status {
	return append([]models.Status(nil), edges[s]...)
}

// Context is the request-supplied data that accompanies a transition.
type Context struct {
	Remark            string
	CollectedBy       string
	CollectedByMobile string
	Now               time.Time
}

type Defaults struct {
	DeliveryRemark string
	CancelRemark   string
}

type Machine struct {
	defaults Defaults
}

func New(d Defaults) *Machine {
	if strings.TrimSpace(d.DeliveryRemark) == "" {
		d.DeliveryRemark = DefaultDeliveryRemark
	}
	if strings.TrimSpace(d.CancelRemark) == "" {
		d.CancelRemark = DefaultCancelRemark
	}
	return &Machine{defaults: d}
}

// Check validates a move along the graph without building the result, so
// callers can reject a terminal booking before looking at who holds it.
func Check(from, target models.Status) error {
	if !target.Valid() {
		v := models.NewValidationError()
		v.Add("status", "unknown status")
		return v
	}
	if !CanTransition(from, target) {
		return &models.TransitionError{From: from, To: target}
	}
	return nil
}

// Transition validates the move and returns the updated copy of b; b itself is
// left untouched so the caller can still compare-and-swap on its status/version.
func (m *Machine) Transition(b *models.Booking, target models.Status, c Context) (*models.Booking, error) {
	if b == nil {
		return nil, errors.New("booking is nil")
	}
	if err := Check(b.Status, target); err != nil {
		return nil, err
	}

	now := c.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	out := b.Clone()
	out.Status = target
	out.Version = b.Version + 1
	out.UpdatedAt = now

	switch target {
	case models.StatusDelivered:
		remark := strings.TrimSpace(c.Remark)
		if remark == "" {
			remark = m.defaults.DeliveryRemark
		}
		out.DeliveryRemark = &remark
		if v := strings.TrimSpace(c.CollectedBy); v != "" {
			out.CollectedBy = &v
		}
		if v := strings.TrimSpace(c.CollectedByMobile); v != "" {
			out.CollectedByMobile = &v
		}
		out.DeliveredAt = &now
	case models.StatusCancelled:
		remark := strings.TrimSpace(c.Remark)
		if remark == "" {
			remark = m.defaults.CancelRemark
		}
		out.CancelRemark = &remark
		out.CancelledAt = &now
	}
	return out, nil
}

// RequiresCollection reports whether moving b into target owes a ledger posting.
func RequiresCollection(b *models.Booking, target models.Status) bool {
	return target == models.StatusDelivered && b.PaymentType == models.PaymentToPay
}

// EnsureEditable fails once the booking has left BOOKED.
func EnsureEditable(b *models.Booking) error {
	if b.Status != models.StatusBooked {
		return errors.Wrapf(models.ErrBookingFrozen, "booking %d is %s", b.ID, b.Status)
	}
	return nil
}

// ApplyDetails replaces the editable part of a BOOKED booking and re-derives the total.
func (m *Machine) ApplyDetails(b *models.Booking, d models.BookingDetails, now time.Time) (*models.Booking, error) {
	if err := EnsureEditable(b); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	out := b.Clone()
	out.Sender = d.Sender
	out.Receiver = d.Receiver
	out.Parcels = append([]models.Parcel(nil), d.Parcels...)
	out.Costs = models.NewCosts(d.Freight, d.Handling, d.Hamali)
	out.PaymentType = d.PaymentType
	out.Version = b.Version + 1
	out.UpdatedAt = now
	return out, nil
}
