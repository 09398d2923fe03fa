package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Storage keeps money as NUMERIC(14,2) and weight as NUMERIC(14,3); anything
// finer or larger is refused here instead of being rounded or overflowing.
const (
	MoneyScale  = 2
	WeightScale = 3
)

var (
	maxMoney  = decimal.New(1, 12)
	maxWeight = decimal.New(1, 11)
)

func (d *BookingDraft) Validate() error {
	v := NewValidationError()
	if d.OriginBranch == "" {
		v.Add("originBranch", "is required")
	}
	if d.DestinationBranch == "" {
		v.Add("destinationBranch", "is required")
	}
	if d.OriginBranch != "" && d.OriginBranch == d.DestinationBranch {
		v.Add("destinationBranch", "must differ from originBranch")
	}
	validateDetails(v, d.Sender, d.Receiver, d.Parcels, d.Freight, d.Handling, d.Hamali, d.PaymentType)
	return v.OrNil()
}

func (d *BookingDetails) Validate() error {
	v := NewValidationError()
	validateDetails(v, d.Sender, d.Receiver, d.Parcels, d.Freight, d.Handling, d.Hamali, d.PaymentType)
	return v.OrNil()
}

func validateDetails(v *ValidationError, sender, receiver Party, parcels []Parcel, freight, handling, hamali decimal.Decimal, pt PaymentType) {
	validateParty(v, "sender", sender)
	validateParty(v, "receiver", receiver)

	if len(parcels) == 0 {
		v.Add("parcels", "at least one parcel is required")
	}
	for i, p := range parcels {
		field := fmt.Sprintf("parcels[%d]", i)
		if p.Quantity <= 0 {
			v.Add(field+".quantity", "must be a positive integer")
		}
		if p.Category == "" {
			v.Add(field+".category", "is required")
		} else if _, ok := ParseItemCategory(string(p.Category)); !ok {
			v.Add(field+".category", "unknown item category")
		}
		checkAmount(v, field+".rate", p.Rate, MoneyScale, maxMoney)
		if p.Weight != nil {
			checkAmount(v, field+".weight", *p.Weight, WeightScale, maxWeight)
		}
	}

	ok := checkAmount(v, "costs.freight", freight, MoneyScale, maxMoney)
	ok = checkAmount(v, "costs.handling", handling, MoneyScale, maxMoney) && ok
	ok = checkAmount(v, "costs.hamali", hamali, MoneyScale, maxMoney) && ok
	if ok && freight.Add(handling).Add(hamali).GreaterThanOrEqual(maxMoney) {
		v.Add("costs.total", fmt.Sprintf("must be below %s", maxMoney))
	}
	if !pt.Valid() {
		v.Add("paymentType", "must be Paid or To Pay")
	}
}

func checkAmount(v *ValidationError, field string, d decimal.Decimal, scale int32, limit decimal.Decimal) bool {
	switch {
	case d.IsNegative():
		v.Add(field, "must not be negative")
	case !d.Equal(d.Truncate(scale)):
		v.Add(field, fmt.Sprintf("must have at most %d decimal places", scale))
	case d.GreaterThanOrEqual(limit):
		v.Add(field, fmt.Sprintf("must be below %s", limit))
	default:
		return true
	}
	return false
}

func validateParty(v *ValidationError, prefix string, p Party) {
	if strings.TrimSpace(p.Name) == "" {
		v.Add(prefix+".name", "is required")
	}
	if strings.TrimSpace(p.Mobile) == "" {
		v.Add(prefix+".mobile", "is required")
	}
}
