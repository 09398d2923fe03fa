package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type Producer struct {
	mock.Mock
}

func (m *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}
