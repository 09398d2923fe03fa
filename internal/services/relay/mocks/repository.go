package mocks

import (
	"context"
	"time"

	"github.com/BearBump/CargoLedger/internal/models"
	"github.com/stretchr/testify/mock"
)

type Repository struct {
	mock.Mock
}

func (m *Repository) ClaimDueEvents(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.OutboxEvent, error) {
	args := m.Called(ctx, now, limit, lease)
	var out []*models.OutboxEvent
	if v := args.Get(0); v != nil {
		out = v.([]*models.OutboxEvent)
	}
	return out, args.Error(1)
}

func (m *Repository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *Repository) MarkFailed(ctx context.Context, id string, reason string, next time.Time) error {
	args := m.Called(ctx, id, reason, next)
	return args.Error(0)
}
