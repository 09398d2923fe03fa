// Package memstore is an in-process implementation of storage.Store. Writers
// are serialized and each transaction works on a private copy that replaces
// the committed state only when the callback succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/BearBump/CargoLedger/internal/storage"
	"github.com/pkg/errors"
)

type data struct {
	bookings map[uint64]*models.Booking
	lrIndex  map[string]uint64
	counters map[models.SequenceKey]int64
	ledger   []*models.LedgerTransaction
	audit    []*models.AuditLogEntry
	outbox   []*models.OutboxEvent

	nextBookingID uint64
	nextLedgerID  uint64
}

func (d *data) clone() *data {
	c := &data{
		bookings:      make(map[uint64]*models.Booking, len(d.bookings)),
		lrIndex:       make(map[string]uint64, len(d.lrIndex)),
		counters:      make(map[models.SequenceKey]int64, len(d.counters)),
		ledger:        append([]*models.LedgerTransaction(nil), d.ledger...),
		audit:         append([]*models.AuditLogEntry(nil), d.audit...),
		outbox:        append([]*models.OutboxEvent(nil), d.outbox...),
		nextBookingID: d.nextBookingID,
		nextLedgerID:  d.nextLedgerID,
	}
	for k, v := range d.bookings {
		c.bookings[k] = v
	}
	for k, v := range d.lrIndex {
		c.lrIndex[k] = v
	}
	for k, v := range d.counters {
		c.counters[k] = v
	}
	return c
}

type Store struct {
	mu sync.RWMutex
	d  *data

	bmu      sync.RWMutex
	branches map[models.BranchID]models.Branch

	fmu    sync.Mutex
	faults map[string]error
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		d: &data{
			bookings: map[uint64]*models.Booking{},
			lrIndex:  map[string]uint64{},
			counters: map[models.SequenceKey]int64{},
		},
		branches: map[models.BranchID]models.Branch{},
		faults:   map[string]error{},
	}
}

// InjectFault makes the named transactional operation (e.g. "InsertAudit")
// fail with err until cleared with a nil err.
func (s *Store) InjectFault(op string, err error) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	return s.faults[op]
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.d.clone()
	if err := fn(ctx, &tx{s: s, d: work}); err != nil {
		return err
	}
	s.d = work
	return nil
}

func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	s.bmu.RLock()
	defer s.bmu.RUnlock()
	out := make([]models.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) UpsertBranches(ctx context.Context, bs []models.Branch) error {
	s.bmu.Lock()
	defer s.bmu.Unlock()
	for _, b := range bs {
		if b.Code == "" {
			return errors.New("branch code is required")
		}
		s.branches[b.Code] = b
	}
	return nil
}

func (s *Store) branchExists(id models.BranchID) bool {
	s.bmu.RLock()
	defer s.bmu.RUnlock()
	_, ok := s.branches[id]
	return ok
}

func (s *Store) GetBooking(ctx context.Context, id uint64) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.d.bookings[id]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "booking %d", id)
	}
	return b.Clone(), nil
}

func (s *Store) GetBookingByLR(ctx context.Context, lr string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.d.lrIndex[lr]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "booking %s", lr)
	}
	return s.d.bookings[id].Clone(), nil
}

func (s *Store) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scope map[models.BranchID]struct{}
	if f.Scope != nil {
		scope = make(map[models.BranchID]struct{}, len(f.Scope))
		for _, b := range f.Scope {
			scope[b] = struct{}{}
		}
	}

	var all []*models.Booking
	for _, b := range s.d.bookings {
		if scope != nil && !b.Touches(scope) {
			continue
		}
		if f.FromBranch != nil && b.OriginBranch != *f.FromBranch {
			continue
		}
		if f.ToBranch != nil && b.DestinationBranch != *f.ToBranch {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.CreatedFrom != nil && b.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && !b.CreatedAt.Before(*f.CreatedTo) {
			continue
		}
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	all = page(all, f.Limit, f.Offset)
	out := make([]*models.Booking, 0, len(all))
	for _, b := range all {
		out = append(out, b.Clone())
	}
	return out, nil
}

func (s *Store) ListLedger(ctx context.Context, f models.LedgerFilter) ([]*models.LedgerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scope map[models.BranchID]struct{}
	if f.Scope != nil {
		scope = make(map[models.BranchID]struct{}, len(f.Scope))
		for _, b := range f.Scope {
			scope[b] = struct{}{}
		}
	}

	var out []*models.LedgerTransaction
	for _, t := range s.d.ledger {
		if scope != nil && !s.ledgerVisible(t, scope) {
			continue
		}
		if f.Branch != nil && t.Branch != *f.Branch {
			continue
		}
		if f.BookingID != nil && t.BookingID != *f.BookingID {
			continue
		}
		if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
			continue
		}
		if f.CreatedTo != nil && !t.CreatedAt.Before(*f.CreatedTo) {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	return page(out, f.Limit, f.Offset), nil
}

// ledgerVisible matches a posting by its own branch or by either end of the
// booking it belongs to. Callers hold s.mu.
func (s *Store) ledgerVisible(t *models.LedgerTransaction, scope map[models.BranchID]struct{}) bool {
	if _, ok := scope[t.Branch]; ok {
		return true
	}
	b, ok := s.d.bookings[t.BookingID]
	return ok && b.Touches(scope)
}

func (s *Store) ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuditLogEntry
	for i := len(s.d.audit) - 1; i >= 0; i-- {
		e := s.d.audit[i]
		if f.EntityType != nil && e.EntityType != *f.EntityType {
			continue
		}
		if f.EntityID != nil && e.EntityID != *f.EntityID {
			continue
		}
		if f.Actor != nil && e.Actor != *f.Actor {
			continue
		}
		c := *e
		out = append(out, &c)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Outbox returns a snapshot of pending and published events in insertion order.
func (s *Store) Outbox() []models.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OutboxEvent, 0, len(s.d.outbox))
	for _, e := range s.d.outbox {
		out = append(out, *e)
	}
	return out
}

func page[T any](in []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(in) {
			return nil
		}
		in = in[offset:]
	}
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}
