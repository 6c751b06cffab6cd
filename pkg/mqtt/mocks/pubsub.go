package mocks

import (
	"context"

	"github.com/absmach/fedasync/pkg/mqtt"
	"github.com/stretchr/testify/mock"
)

// MockPubSub records scheduler notifications and control subscriptions.
type MockPubSub struct {
	mock.Mock
}

var _ mqtt.PubSub = (*MockPubSub)(nil)

// Publish records a publish on a topic relative to the base topic.
func (m *MockPubSub) Publish(ctx context.Context, topic string, msg any) error {
	args := m.Called(ctx, topic, msg)
	return args.Error(0)
}

// Subscribe records a subscription; tests invoke the handler directly.
func (m *MockPubSub) Subscribe(ctx context.Context, topic string, handler mqtt.Handler) error {
	args := m.Called(ctx, topic, handler)
	return args.Error(0)
}

func (m *MockPubSub) Unsubscribe(ctx context.Context, topic string) error {
	args := m.Called(ctx, topic)
	return args.Error(0)
}

// Disconnect closes the MQTT connection
func (m *MockPubSub) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
