package mocks

import (
	"context"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Run(ctx context.Context) (fl.RunSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.RunSummary), args.Error(1)
}

func (m *MockService) Step(ctx context.Context) (fl.RoundReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.RoundReport), args.Error(1)
}

func (m *MockService) Status(ctx context.Context) (coordinator.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.Status), args.Error(1)
}

func (m *MockService) GetRound(ctx context.Context, round int) (fl.RoundReport, error) {
	args := m.Called(ctx, round)
	return args.Get(0).(fl.RoundReport), args.Error(1)
}

func (m *MockService) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(coordinator.RoundPage), args.Error(1)
}

func (m *MockService) ListParticipants(ctx context.Context, offset, limit uint64) (coordinator.ParticipantPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(coordinator.ParticipantPage), args.Error(1)
}

func (m *MockService) GetParticipant(ctx context.Context, id string) (participant.Participant, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(participant.Participant), args.Error(1)
}

func (m *MockService) GlobalModel(ctx context.Context) (fl.Model, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.Model), args.Error(1)
}
