package models

import (
	"strings"
)

// Status is the canonical booking status. Only the constants below are valid.
type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusArrived   Status = "ARRIVED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

func AllStatuses() []Status {
	return []Status{StatusBooked, StatusInTransit, StatusArrived, StatusDelivered, StatusCancelled}
}

func (s Status) String() string { return string(s) }

func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusInTransit, StatusArrived, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus normalizes the spellings seen from older clients
// ("In Transit", "in-transit", "Canceled", ...) into the canonical status.
func ParseStatus(raw string) (Status, bool) {
	switch normalizeToken(raw) {
	case "BOOKED":
		return StatusBooked, true
	case "IN_TRANSIT", "INTRANSIT":
		return StatusInTransit, true
	case "ARRIVED":
		return StatusArrived, true
	case "DELIVERED":
		return StatusDelivered, true
	case "CANCELLED", "CANCELED":
		return StatusCancelled, true
	}
	return "", false
}

type PaymentType string

const (
	PaymentPaid  PaymentType = "PAID"
	PaymentToPay PaymentType = "TO_PAY"
)

func (p PaymentType) Valid() bool {
	return p == PaymentPaid || p == PaymentToPay
}

// ParsePaymentType accepts "Paid", "To Pay", "TO_PAY", "topay" and friends.
func ParsePaymentType(raw string) (PaymentType, bool) {
	switch normalizeToken(raw) {
	case "PAID":
		return PaymentPaid, true
	case "TO_PAY", "TOPAY":
		return PaymentToPay, true
	}
	return "", false
}

type ItemCategory string

const (
	CategoryBox      ItemCategory = "BOX"
	CategoryBag      ItemCategory = "BAG"
	CategoryBundle   ItemCategory = "BUNDLE"
	CategoryCarton   ItemCategory = "CARTON"
	CategoryDocument ItemCategory = "DOCUMENT"
	CategoryDrum     ItemCategory = "DRUM"
	CategoryOther    ItemCategory = "OTHER"
)

func ParseItemCategory(raw string) (ItemCategory, bool) {
	c := ItemCategory(normalizeToken(raw))
	switch c {
	case CategoryBox, CategoryBag, CategoryBundle, CategoryCarton, CategoryDocument, CategoryDrum, CategoryOther:
		return c, true
	}
	return "", false
}

func normalizeToken(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}
