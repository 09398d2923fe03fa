package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrBookingFrozen          = errors.New("booking is no longer editable")
	ErrForbidden              = errors.New("forbidden")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrAllocationUnavailable  = errors.New("sequence allocation unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicatePosting       = errors.New("duplicate ledger posting")
	ErrAlreadyReversed        = errors.New("ledger transaction already reversed")
	ErrLedgerReferenced       = errors.New("booking is referenced by ledger transactions")
	ErrNotFound               = errors.New("not found")
)

// ValidationError lists offending fields with a reason each.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields[field] = reason
}

// OrNil returns nil when nothing was recorded, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return "forbidden: " + e.Reason }

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

func Forbidden(format string, args ...any) error {
	return &ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

// DuplicatePostingError carries the posting that already exists for the booking.
type DuplicatePostingError struct {
	Existing *LedgerTransaction
}

func (e *DuplicatePostingError) Error() string {
	if e.Existing == nil {
		return ErrDuplicatePosting.Error()
	}
	return fmt.Sprintf("duplicate ledger posting: booking %d already has transaction %d", e.Existing.BookingID, e.Existing.ID)
}

func (e *DuplicatePostingError) Unwrap() error { return ErrDuplicatePosting }

// IsRetryable reports failures that indicate "refresh and try again".
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrAllocationUnavailable)
}

// IsClientError reports failures caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBookingFrozen) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound)
}
