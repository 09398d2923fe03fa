package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BranchID string

type Branch struct {
	Code BranchID `json:"code"`
	Name string   `json:"name"`
}

type Party struct {
	Name   string  `json:"name"`
	Mobile string  `json:"mobile"`
	Email  *string `json:"email,omitempty"`
}

// Parcel is a line item owned by exactly one booking.
type Parcel struct {
	Quantity int              `json:"quantity"`
	Category ItemCategory     `json:"category"`
	Rate     decimal.Decimal  `json:"rate"`
	Weight   *decimal.Decimal `json:"weight,omitempty"`
}

// Costs carries the charge components of a booking. Total is always derived
// from the components; use NewCosts or Recompute, never assign it directly.
type Costs struct {
	Freight  decimal.Decimal `json:"freight"`
	Handling decimal.Decimal `json:"handling"`
	Hamali   decimal.Decimal `json:"hamali"`
	Total    decimal.Decimal `json:"total"`
}

func NewCosts(freight, handling, hamali decimal.Decimal) Costs {
	c := Costs{Freight: freight, Handling: handling, Hamali: hamali}
	c.Recompute()
	return c
}

func (c *Costs) Recompute() {
	c.Total = c.Freight.Add(c.Handling).Add(c.Hamali)
}

func (c Costs) Consistent() bool {
	return c.Total.Equal(c.Freight.Add(c.Handling).Add(c.Hamali))
}

type Booking struct {
	ID       uint64 `json:"id"`
	LRNumber string `json:"lrNumber"`
	LRSeq    int64  `json:"lrSeq"`

	OriginBranch      BranchID `json:"originBranch"`
	DestinationBranch BranchID `json:"destinationBranch"`

	Sender   Party    `json:"sender"`
	Receiver Party    `json:"receiver"`
	Parcels  []Parcel `json:"parcels"`
	Costs    Costs    `json:"costs"`

	PaymentType PaymentType `json:"paymentType"`
	Status      Status      `json:"status"`
	Version     int64       `json:"version"`

	DeliveryRemark    *string    `json:"deliveryRemark,omitempty"`
	CollectedBy       *string    `json:"collectedBy,omitempty"`
	CollectedByMobile *string    `json:"collectedByMobile,omitempty"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`

	CancelRemark *string    `json:"cancelRemark,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CustodyBranch is the branch physically responsible for the parcels right now:
// the origin while still BOOKED, the destination once the parcels left.
func (b *Booking) CustodyBranch() BranchID {
	if b.Status == StatusBooked {
		return b.OriginBranch
	}
	return b.DestinationBranch
}

// Touches reports whether the booking's origin or destination is in the set.
func (b *Booking) Touches(branches map[BranchID]struct{}) bool {
	if _, ok := branches[b.OriginBranch]; ok {
		return true
	}
	_, ok := branches[b.DestinationBranch]
	return ok
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.Parcels = append([]Parcel(nil), b.Parcels...)
	return &c
}

// BookingDraft is the client-settable part of a booking.
type BookingDraft struct {
	OriginBranch      BranchID
	DestinationBranch BranchID
	Sender            Party
	Receiver          Party
	Parcels           []Parcel
	Freight           decimal.Decimal
	Handling          decimal.Decimal
	Hamali            decimal.Decimal
	PaymentType       PaymentType
}

// BookingDetails is what may be replaced while a booking is still BOOKED.
type BookingDetails struct {
	Sender      Party
	Receiver    Party
	Parcels     []Parcel
	Freight     decimal.Decimal
	Handling    decimal.Decimal
	Hamali      decimal.Decimal
	PaymentType PaymentType
}

type BookingFilter struct {
	FromBranch  *BranchID
	ToBranch    *BranchID
	Status      *Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	// Scope restricts results to bookings touching these branches; nil means unrestricted.
	Scope []BranchID

	Limit  int
	Offset int
}
