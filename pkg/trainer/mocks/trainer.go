package mocks

import (
	"context"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/stretchr/testify/mock"
)

// MockTrainer is a mock implementation of the Trainer interface for testing
type MockTrainer struct {
	mock.Mock
}

func (m *MockTrainer) Train(ctx context.Context, participantID string, global fl.Params) (fl.LocalResult, error) {
	args := m.Called(ctx, participantID, global)
	return args.Get(0).(fl.LocalResult), args.Error(1)
}
