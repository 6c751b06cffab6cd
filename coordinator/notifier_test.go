package coordinator_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/fedasync/coordinator"
	coordmocks "github.com/absmach/fedasync/coordinator/mocks"
	"github.com/absmach/fedasync/pkg/fl"
	mqttpkg "github.com/absmach/fedasync/pkg/mqtt"
	mqttmocks "github.com/absmach/fedasync/pkg/mqtt/mocks"
	"github.com/absmach/fedasync/pkg/quorum"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/absmach/fedasync/pkg/trainer/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMQTTNotifierPublishesRoundsAndRun(t *testing.T) {
	pubsub := new(mqttmocks.MockPubSub)
	pubsub.On("Publish", mock.Anything, mqttpkg.RoundsCompletedTopic, mock.MatchedBy(func(msg map[string]any) bool {
		return msg["round"] == 1 && msg["model_version"] == 1
	})).Return(nil).Once()
	pubsub.On("Publish", mock.Anything, mqttpkg.RunCompletedTopic, mock.MatchedBy(func(msg map[string]any) bool {
		return msg["rounds"] == 1
	})).Return(nil).Once()

	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, mock.Anything, mock.Anything).Return(scalarResult(1, time.Second), nil)

	repos, err := storage.NewRepositories(storage.Config{})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := baseConfig(2, 2, 1)
	cfg.Quorum = quorum.KindCluster
	notifier := coordinator.NewMQTTNotifier(pubsub)
	svc, err := coordinator.NewService(cfg, fl.Params{"w": fl.Scalar(0)}, tr, repos.Rounds, repos.Participants, nil, notifier, logger)
	require.NoError(t, err)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BestRound)
	pubsub.AssertExpectations(t)

	stored, total, err := repos.Participants.List(context.Background(), summary.RunID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	for _, p := range stored {
		assert.Equal(t, 1, p.AdmissionCount)
	}
}

func TestHandleControl(t *testing.T) {
	cases := []struct {
		desc    string
		msg     map[string]any
		method  string
		invoked bool
	}{
		{
			desc:    "step command",
			msg:     map[string]any{"command": "step"},
			method:  "Step",
			invoked: true,
		},
		{
			desc:    "run command",
			msg:     map[string]any{"command": "run"},
			method:  "Run",
			invoked: true,
		},
		{
			desc:   "unknown command",
			msg:    map[string]any{"command": "pause"},
			method: "Step",
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			svc := new(coordmocks.MockService)
			called := make(chan struct{}, 1)
			svc.On("Step", mock.Anything).Return(fl.RoundReport{}, nil).Run(func(mock.Arguments) { called <- struct{}{} })
			svc.On("Run", mock.Anything).Return(fl.RunSummary{}, nil).Run(func(mock.Arguments) { called <- struct{}{} })

			handler := coordinator.HandleControl(context.Background(), svc, logger)
			require.NoError(t, handler(mqttpkg.Message{Topic: mqttpkg.ControlTopic, Payload: tc.msg}))

			if !tc.invoked {
				assert.Never(t, func() bool { return len(called) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

				return
			}
			select {
			case <-called:
			case <-time.After(time.Second):
				t.Fatal("control command was not executed")
			}
			svc.AssertCalled(t, tc.method, mock.Anything)
		})
	}
}
