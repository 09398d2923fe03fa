package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryType string

const (
	LedgerCredit LedgerEntryType = "CREDIT"
	LedgerDebit  LedgerEntryType = "DEBIT"
)

// LedgerReason says which lifecycle event produced a posting.
type LedgerReason string

const (
	LedgerReasonDeliveryCollection LedgerReason = "DELIVERY_COLLECTION"
	LedgerReasonReversal           LedgerReason = "REVERSAL"
)

// LedgerTransaction is write-once. Corrections are new offsetting postings.
type LedgerTransaction struct {
	ID          uint64          `json:"id"`
	BookingID   uint64          `json:"bookingId"`
	Branch      BranchID        `json:"branch"`
	Amount      decimal.Decimal `json:"amount"`
	Type        LedgerEntryType `json:"type"`
	Reason      LedgerReason    `json:"reason"`
	Description string          `json:"description"`
	Reverses    *uint64         `json:"reverses,omitempty"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Signed returns the amount as it affects the branch balance.
func (t *LedgerTransaction) Signed() decimal.Decimal {
	if t.Type == LedgerDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type LedgerFilter struct {
	Branch      *BranchID
	BookingID   *uint64
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	// Scope restricts results to these branches; nil means unrestricted.
	Scope []BranchID

	Limit  int
	Offset int
}

type BranchBalance struct {
	Branch  BranchID        `json:"branch"`
	Credits decimal.Decimal `json:"credits"`
	Debits  decimal.Decimal `json:"debits"`
	Balance decimal.Decimal `json:"balance"`
}

// Balances folds postings into per-branch balances, ordered by first appearance.
func Balances(txs []*LedgerTransaction) []BranchBalance {
	idx := map[BranchID]int{}
	var out []BranchBalance
	for _, t := range txs {
		i, ok := idx[t.Branch]
		if !ok {
			i = len(out)
			idx[t.Branch] = i
			out = append(out, BranchBalance{Branch: t.Branch})
		}
		if t.Type == LedgerDebit {
			out[i].Debits = out[i].Debits.Add(t.Amount)
		} else {
			out[i].Credits = out[i].Credits.Add(t.Amount)
		}
		out[i].Balance = out[i].Credits.Sub(out[i].Debits)
	}
	return out
}
