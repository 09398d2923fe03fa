package sequence

import (
	"context"
	"fmt"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

const DefaultLRWidth = 6

// Counter is an atomic increment-and-read keyed by (branch, entity, field).
// A missing counter must be created at 1 by the same atomic operation.
type Counter interface {
	IncrementSequence(ctx context.Context, key models.SequenceKey) (int64, error)
}

type Allocator struct {
	width int
}

func New(width int) *Allocator {
	if width <= 0 {
		width = DefaultLRWidth
	}
	return &Allocator{width: width}
}

// Allocate returns the next value for key. Any store failure is reported as
// ErrAllocationUnavailable; the caller must then abandon the booking.
func (a *Allocator) Allocate(ctx context.Context, c Counter, key models.SequenceKey) (int64, error) {
	if key.Branch == "" || key.Entity == "" || key.Field == "" {
		return 0, errors.Errorf("incomplete sequence key %q", key.String())
	}
	n, err := c.IncrementSequence(ctx, key)
	if err != nil {
		return 0, errors.Wrapf(models.ErrAllocationUnavailable, "allocate %s: %v", key, err)
	}
	if n <= 0 {
		return 0, errors.Wrapf(models.ErrAllocationUnavailable, "allocate %s: counter returned %d", key, n)
	}
	return n, nil
}

// AllocateLR issues the next LR sequence for branch and its printed form.
func (a *Allocator) AllocateLR(ctx context.Context, c Counter, branch models.BranchID) (int64, string, error) {
	n, err := a.Allocate(ctx, c, models.LRSequenceKey(branch))
	if err != nil {
		return 0, "", err
	}
	return n, a.FormatLR(branch, n), nil
}

// FormatLR is display only; uniqueness is carried by the integer.
func (a *Allocator) FormatLR(branch models.BranchID, n int64) string {
	return fmt.Sprintf("%s-%0*d", branch, a.width, n)
}
