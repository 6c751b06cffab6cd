package coordinator_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/fedasync/coordinator"
	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/quorum"
	"github.com/absmach/fedasync/pkg/selection"
	"github.com/absmach/fedasync/pkg/staleness"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/absmach/fedasync/pkg/trainer"
	"github.com/absmach/fedasync/pkg/trainer/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errTrain = errors.New("device went offline")

func newService(t *testing.T, cfg coordinator.Config, initial fl.Params, tr trainer.Trainer) coordinator.Service {
	t.Helper()

	repos, err := storage.NewRepositories(storage.Config{Type: "memory"})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := coordinator.NewService(cfg, initial, tr, repos.Rounds, repos.Participants, nil, nil, logger)
	require.NoError(t, err)

	return svc
}

func scalarResult(w float64, d time.Duration) fl.LocalResult {
	return fl.LocalResult{
		Params:         fl.Params{"w": fl.Scalar(w)},
		Metrics:        fl.Metrics{"accuracy": w / 10},
		CompletionTime: d,
	}
}

func baseConfig(clients, perRound, rounds int) coordinator.Config {
	return coordinator.Config{
		NumClients:      clients,
		ClientsPerRound: perRound,
		MaxRound:        rounds,
		Selection:       selection.KindUniform,
		Quorum:          quorum.KindAll,
		Staleness:       staleness.Config{Mode: staleness.ModeThreshold},
		SampleCount:     1,
	}
}

func TestRunThresholdEndToEnd(t *testing.T) {
	sim := trainer.NewSimulated(trainer.SimulatedConfig{
		Seed:         7,
		MeanTime:     10 * time.Second,
		Layers:       []int{8, 2},
		LearningRate: 0.3,
		Noise:        0.01,
	})
	cfg := baseConfig(10, 3, 5)
	cfg.Quorum = quorum.KindCluster
	svc := newService(t, cfg, sim.InitialParams(), sim)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Rounds)
	require.Len(t, summary.Reports, 5)

	seen := 0
	for _, report := range summary.Reports {
		assert.Len(t, report.Selected, len(unique(report.Selected)))
		if len(report.Admitted) == 0 {
			continue
		}
		assert.GreaterOrEqual(t, report.Quorum, 1)
		for _, a := range report.Admitted {
			assert.Equal(t, 1.0, a.Weight, "participant %s in round %d", a.ParticipantID, report.Round)
		}
		seen += len(report.Admitted)
	}
	assert.Positive(t, seen)

	model, err := svc.GlobalModel(context.Background())
	require.NoError(t, err)
	assert.True(t, model.Params.Finite())
	assert.Equal(t, summary.ModelVersion, model.Version)

	page, err := svc.ListRounds(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), page.Total)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.Done, status.Phase)

	_, err = svc.Step(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrRunComplete)
}

func TestStepAggregatesEqualWeights(t *testing.T) {
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(scalarResult(1, time.Second), nil)
	tr.On("Train", mock.Anything, "client-2", mock.Anything).Return(scalarResult(3, time.Second), nil)

	svc := newService(t, baseConfig(2, 2, 3), fl.Params{"w": fl.Scalar(0)}, tr)

	report, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Round)
	assert.Equal(t, 2, report.Quorum)
	assert.ElementsMatch(t, []string{"client-1", "client-2"}, report.AdmittedIDs())
	assert.Equal(t, 0, report.Outstanding)
	assert.Equal(t, 1, report.ModelVersion)
	assert.Equal(t, 2, report.Communication)

	model, err := svc.GlobalModel(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2.0, model.Params["w"].Data[0], 1e-12)
	assert.Equal(t, 1, model.Round)

	stored, err := svc.GetRound(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, report.ModelVersion, stored.ModelVersion)

	for _, id := range []string{"client-1", "client-2"} {
		p, err := svc.GetParticipant(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, p.Busy)
		assert.Equal(t, 1, p.SelectionCount)
		assert.Equal(t, 1, p.AdmissionCount)
	}
	tr.AssertNumberOfCalls(t, "Train", 2)
}

func TestStepKeepsFailedTrainingOutstanding(t *testing.T) {
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(scalarResult(1, time.Second), nil)
	tr.On("Train", mock.Anything, "client-2", mock.Anything).Return(fl.LocalResult{}, errTrain)

	svc := newService(t, baseConfig(2, 2, 3), fl.Params{"w": fl.Scalar(0)}, tr)

	report, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1"}, report.AdmittedIDs())
	assert.Equal(t, 1, report.Outstanding)

	failed, err := svc.GetParticipant(context.Background(), "client-2")
	require.NoError(t, err)
	assert.True(t, failed.Busy)
	assert.Equal(t, 0, failed.AdmissionCount)

	report, err = svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1"}, report.Selected)
	assert.Equal(t, []string{"client-1"}, report.AdmittedIDs())

	model, err := svc.GlobalModel(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, model.Params["w"].Data[0], 1e-12)
}

func TestStepForcesAdmissionAtCutoff(t *testing.T) {
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(scalarResult(1, time.Second), nil)
	tr.On("Train", mock.Anything, "client-2", mock.Anything).Return(scalarResult(2, time.Second), nil)
	tr.On("Train", mock.Anything, "client-3", mock.Anything).Return(scalarResult(3, 5*time.Second), nil)

	cfg := baseConfig(3, 3, 2)
	cfg.Quorum = quorum.KindFixed
	cfg.AggClientsPerRound = 1
	svc := newService(t, cfg, fl.Params{"w": fl.Scalar(0)}, tr)

	report, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Quorum)
	assert.Equal(t, 1, report.Forced)
	assert.ElementsMatch(t, []string{"client-1", "client-2"}, report.AdmittedIDs())
	assert.Equal(t, 1, report.Outstanding)
	assert.GreaterOrEqual(t, report.TimeOfRound, time.Second)

	slow, err := svc.GetParticipant(context.Background(), "client-3")
	require.NoError(t, err)
	assert.True(t, slow.Busy)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.Dispatching, status.Phase)
	assert.Equal(t, 1, status.Outstanding)
	assert.Equal(t, 2, status.Idle)
}

func TestStepWeighsStaleResults(t *testing.T) {
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(scalarResult(1, time.Second), nil)
	tr.On("Train", mock.Anything, "client-2", mock.Anything).Return(scalarResult(5, 10*time.Second), nil)

	cfg := baseConfig(2, 2, 12)
	cfg.Quorum = quorum.KindFixed
	cfg.AggClientsPerRound = 1
	svc := newService(t, cfg, fl.Params{"w": fl.Scalar(0)}, tr)

	model := staleness.Threshold{A: staleness.DefaultThresholdA, B: staleness.DefaultThresholdB}
	var admitted *fl.Admission
	for admitted == nil {
		report, err := svc.Step(context.Background())
		require.NoError(t, err)
		for _, a := range report.Admitted {
			if a.ParticipantID == "client-2" {
				admitted = &a
				assert.Equal(t, model.Weight(1, report.Round), a.Weight)
				assert.Greater(t, float64(report.Round), 1+staleness.DefaultThresholdB)
			}
		}
	}
	assert.Equal(t, 1, admitted.DispatchRound)
	assert.Less(t, admitted.Weight, 1.0)
}

func TestRunAbortsOnSchemaMismatch(t *testing.T) {
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(scalarResult(1, time.Second), nil)
	tr.On("Train", mock.Anything, "client-2", mock.Anything).Return(fl.LocalResult{
		Params:         fl.Params{"v": fl.Scalar(1)},
		CompletionTime: time.Second,
	}, nil)

	svc := newService(t, baseConfig(2, 2, 3), fl.Params{"w": fl.Scalar(0)}, tr)

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, fl.ErrSchemaMismatch)

	_, err = svc.Step(context.Background())
	assert.ErrorIs(t, err, fl.ErrSchemaMismatch)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coordinator.Done, status.Phase)
	assert.NotEmpty(t, status.Error)
}

func TestStepCancelledContext(t *testing.T) {
	tr := new(mocks.MockTrainer)
	svc := newService(t, baseConfig(2, 2, 3), fl.Params{"w": fl.Scalar(0)}, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	tr.AssertNotCalled(t, "Train", mock.Anything, mock.Anything, mock.Anything)
}

func TestStepCompletesAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cancelled atomic.Bool
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, mock.Anything, mock.Anything).Return(scalarResult(2, time.Second), nil).Run(func(args mock.Arguments) {
		cancel()
		if args.Get(0).(context.Context).Err() != nil {
			cancelled.Store(true)
		}
	})

	svc := newService(t, baseConfig(2, 2, 3), fl.Params{"w": fl.Scalar(0)}, tr)

	report, err := svc.Step(ctx)
	require.NoError(t, err)
	assert.False(t, cancelled.Load())
	assert.ElementsMatch(t, []string{"client-1", "client-2"}, report.AdmittedIDs())

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status.Error)
	assert.Equal(t, coordinator.Dispatching, status.Phase)

	_, err = svc.Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	tr.AssertNumberOfCalls(t, "Train", 2)
}

func TestStepChargesCarriedResults(t *testing.T) {
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(scalarResult(1, time.Second), nil).Once()
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(scalarResult(1, 20*time.Second), nil)
	tr.On("Train", mock.Anything, "client-2", mock.Anything).Return(scalarResult(2, 10*time.Second), nil)

	cfg := baseConfig(2, 2, 3)
	cfg.Quorum = quorum.KindFixed
	cfg.AggClientsPerRound = 1
	svc := newService(t, cfg, fl.Params{"w": fl.Scalar(0)}, tr)

	first, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1"}, first.AdmittedIDs())
	assert.Equal(t, time.Second, first.Admitted[0].Remaining)
	assert.Equal(t, time.Second+first.AggregationDuration, first.TimeOfRound)

	second, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1"}, second.Selected)
	require.Equal(t, []string{"client-2"}, second.AdmittedIDs())
	carried := second.Admitted[0]
	assert.Equal(t, 1, carried.DispatchRound)
	assert.Equal(t, 10*time.Second-first.TimeOfRound, carried.Remaining)
	assert.False(t, carried.Forced)
	assert.Equal(t, carried.Remaining+second.AggregationDuration, second.TimeOfRound)
}

func TestRunInfoGainFiltersLaterRounds(t *testing.T) {
	ramp := func() fl.Params {
		return fl.Params{"w": {Shape: []int{8}, Data: []float64{0, 1, 2, 3, 4, 5, 6, 7}}}
	}
	flat := fl.Params{"w": {Shape: []int{8}, Data: []float64{2, 2, 2, 2, 2, 2, 2, 2}}}

	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, "client-1", mock.Anything).Return(fl.LocalResult{Params: flat, CompletionTime: time.Second}, nil)
	for _, id := range []string{"client-2", "client-3", "client-4"} {
		tr.On("Train", mock.Anything, id, mock.Anything).Return(fl.LocalResult{Params: ramp(), CompletionTime: time.Second}, nil)
	}

	cfg := baseConfig(4, 4, 2)
	cfg.Selection = selection.KindInfoGain
	cfg.Bins = 4
	svc := newService(t, cfg, fl.Params{"w": {Shape: []int{8}, Data: make([]float64, 8)}}, tr)

	first, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Selected, 4)
	assert.Len(t, first.Admitted, 4)

	second, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"client-1"}, second.Selected)
	assert.Equal(t, []string{"client-1"}, second.AdmittedIDs())
	tr.AssertNumberOfCalls(t, "Train", 5)
}

func TestGlobalModelReturnsCopy(t *testing.T) {
	tr := new(mocks.MockTrainer)
	tr.On("Train", mock.Anything, mock.Anything, mock.Anything).Return(scalarResult(4, time.Second), nil)
	svc := newService(t, baseConfig(2, 2, 3), fl.Params{"w": fl.Scalar(0)}, tr)

	_, err := svc.Step(context.Background())
	require.NoError(t, err)

	model, err := svc.GlobalModel(context.Background())
	require.NoError(t, err)
	model.Params["w"].Data[0] = 100
	model.Metadata["admitted"] = 0

	again, err := svc.GlobalModel(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, again.Params["w"].Data[0], 1e-12)
	assert.Equal(t, 2, again.Metadata["admitted"])
}

func TestListParticipantsPaging(t *testing.T) {
	cases := []struct {
		desc   string
		offset uint64
		limit  uint64
		ids    []string
	}{
		{
			desc:   "first page",
			offset: 0,
			limit:  2,
			ids:    []string{"client-1", "client-2"},
		},
		{
			desc:   "last page",
			offset: 3,
			limit:  10,
			ids:    []string{"client-4"},
		},
		{
			desc:   "offset past the end",
			offset: 10,
			limit:  10,
			ids:    []string{},
		},
		{
			desc:   "offset near overflow",
			offset: math.MaxUint64 - 1,
			limit:  10,
			ids:    []string{},
		},
		{
			desc:   "limit near overflow",
			offset: 3,
			limit:  math.MaxUint64,
			ids:    []string{"client-4"},
		},
	}

	svc := newService(t, baseConfig(4, 2, 3), fl.Params{"w": fl.Scalar(0)}, new(mocks.MockTrainer))

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			page, err := svc.ListParticipants(context.Background(), tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(4), page.Total)
			assert.Equal(t, tc.offset, page.Offset)
			ids := make([]string, len(page.Participants))
			for i, p := range page.Participants {
				ids[i] = p.ID
			}
			assert.Equal(t, tc.ids, ids)
		})
	}
}

func TestNewServiceValidation(t *testing.T) {
	cases := []struct {
		desc   string
		cfg    coordinator.Config
		params fl.Params
		err    error
	}{
		{
			desc:   "valid config",
			cfg:    baseConfig(4, 2, 3),
			params: fl.Params{"w": fl.Scalar(0)},
		},
		{
			desc:   "per round exceeds population",
			cfg:    baseConfig(2, 3, 3),
			params: fl.Params{"w": fl.Scalar(0)},
			err:    pkgerrors.ErrInvalidConfig,
		},
		{
			desc:   "no rounds",
			cfg:    baseConfig(2, 2, 0),
			params: fl.Params{"w": fl.Scalar(0)},
			err:    pkgerrors.ErrInvalidConfig,
		},
		{
			desc: "unknown staleness mode",
			cfg: func() coordinator.Config {
				c := baseConfig(2, 2, 3)
				c.Staleness.Mode = "linear"

				return c
			}(),
			params: fl.Params{"w": fl.Scalar(0)},
			err:    staleness.ErrUnknownMode,
		},
		{
			desc: "unknown selection policy",
			cfg: func() coordinator.Config {
				c := baseConfig(2, 2, 3)
				c.Selection = "greedy"

				return c
			}(),
			params: fl.Params{"w": fl.Scalar(0)},
			err:    selection.ErrUnknownKind,
		},
		{
			desc: "fixed quorum without size",
			cfg: func() coordinator.Config {
				c := baseConfig(2, 2, 3)
				c.Quorum = quorum.KindFixed

				return c
			}(),
			params: fl.Params{"w": fl.Scalar(0)},
			err:    pkgerrors.ErrInvalidConfig,
		},
		{
			desc: "empty initial model",
			cfg:  baseConfig(2, 2, 3),
			err:  pkgerrors.ErrInvalidConfig,
		},
	}

	repos, err := storage.NewRepositories(storage.Config{})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := coordinator.NewService(tc.cfg, tc.params, new(mocks.MockTrainer), repos.Rounds, repos.Participants, nil, nil, logger)
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func unique(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	return set
}
