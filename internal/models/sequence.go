package models

import "fmt"

const (
	SequenceEntityBooking = "booking"
	SequenceFieldLR       = "lr_number"
)

// SequenceKey identifies one counter: one per (branch, entity, field).
type SequenceKey struct {
	Branch BranchID
	Entity string
	Field  string
}

func LRSequenceKey(branch BranchID) SequenceKey {
	return SequenceKey{Branch: branch, Entity: SequenceEntityBooking, Field: SequenceFieldLR}
}

func (k SequenceKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Branch, k.Entity, k.Field)
}
