package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/pkg/errors"
)

// ClaimDueEvents leases up to limit pending events, oldest first.
func (s *Store) ClaimDueEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := make([]int, 0)
	for i, e := range s.d.outbox {
		if e.PublishedAt == nil && !e.NextAttemptAt.After(now) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.d.outbox[idx[a]].CreatedAt.Before(s.d.outbox[idx[b]].CreatedAt)
	})
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
	}

	out := make([]*models.OutboxEvent, 0, len(idx))
	for _, i := range idx {
		e := *s.d.outbox[i]
		e.NextAttemptAt = now.Add(lease)
		s.d.outbox[i] = &e
		c := e
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id string, at time.Time) error {
	return s.updateOutbox(id, func(e *models.OutboxEvent) {
		e.PublishedAt = &at
		e.Attempts++
		e.LastError = nil
	})
}

func (s *Store) MarkFailed(ctx context.Context, id string, reason string, next time.Time) error {
	return s.updateOutbox(id, func(e *models.OutboxEvent) {
		e.Attempts++
		e.LastError = &reason
		e.NextAttemptAt = next
	})
}

func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.d.outbox {
		if e.PublishedAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) updateOutbox(id string, fn func(e *models.OutboxEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.d.outbox {
		if e.ID == id {
			c := *e
			fn(&c)
			s.d.outbox[i] = &c
			return nil
		}
	}
	return errors.Wrapf(models.ErrNotFound, "outbox event %s", id)
}
