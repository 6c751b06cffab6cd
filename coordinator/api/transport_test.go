package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/coordinator/api"
	"github.com/absmach/fedasync/coordinator/mocks"
	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/absmach/fedasync/pkg/quorum"
	"github.com/absmach/fedasync/pkg/selection"
	"github.com/absmach/fedasync/pkg/staleness"
	"github.com/absmach/fedasync/pkg/storage"
	trainermocks "github.com/absmach/fedasync/pkg/trainer/mocks"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newServer(svc coordinator.Service) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return httptest.NewServer(api.MakeHandler(svc, logger, "test-instance"))
}

func TestAPI(t *testing.T) {
	report := fl.RoundReport{
		RunID:        "run-1",
		Round:        1,
		Selected:     []string{"client-1"},
		Quorum:       1,
		Admitted:     []fl.Admission{{ParticipantID: "client-1", DispatchRound: 1, Weight: 1}},
		ModelVersion: 1,
	}
	client := participant.Participant{ID: "client-1", Name: "calm-otter", SelectionCount: 1}

	cases := []struct {
		desc     string
		method   string
		path     string
		setup    func(svc *mocks.MockService)
		status   int
		contains string
		header   map[string]string
	}{
		{
			desc:   "status",
			method: http.MethodGet,
			path:   "/status",
			setup: func(svc *mocks.MockService) {
				svc.On("Status", mock.Anything).Return(coordinator.Status{RunID: "run-1", Phase: coordinator.Collecting, Round: 2}, nil)
			},
			status:   http.StatusOK,
			contains: `"phase":"Collecting"`,
		},
		{
			desc:   "step",
			method: http.MethodPost,
			path:   "/rounds",
			setup: func(svc *mocks.MockService) {
				svc.On("Step", mock.Anything).Return(report, nil)
			},
			status: http.StatusCreated,
			header: map[string]string{"Location": "/rounds/1"},
		},
		{
			desc:   "step after the last round",
			method: http.MethodPost,
			path:   "/rounds",
			setup: func(svc *mocks.MockService) {
				svc.On("Step", mock.Anything).Return(fl.RoundReport{}, pkgerrors.ErrRunComplete)
			},
			status:   http.StatusConflict,
			contains: pkgerrors.ErrRunComplete.Error(),
		},
		{
			desc:   "get round",
			method: http.MethodGet,
			path:   "/rounds/1",
			setup: func(svc *mocks.MockService) {
				svc.On("GetRound", mock.Anything, 1).Return(report, nil)
			},
			status:   http.StatusOK,
			contains: `"participant_id":"client-1"`,
		},
		{
			desc:   "get missing round",
			method: http.MethodGet,
			path:   "/rounds/9",
			setup: func(svc *mocks.MockService) {
				svc.On("GetRound", mock.Anything, 9).Return(fl.RoundReport{}, pkgerrors.ErrNotFound)
			},
			status: http.StatusNotFound,
		},
		{
			desc:   "get round with invalid index",
			method: http.MethodGet,
			path:   "/rounds/first",
			status: http.StatusBadRequest,
		},
		{
			desc:   "get round zero",
			method: http.MethodGet,
			path:   "/rounds/0",
			status: http.StatusBadRequest,
		},
		{
			desc:   "list rounds",
			method: http.MethodGet,
			path:   "/rounds?offset=0&limit=5",
			setup: func(svc *mocks.MockService) {
				svc.On("ListRounds", mock.Anything, uint64(0), uint64(5)).Return(coordinator.RoundPage{Limit: 5, Total: 1, Rounds: []fl.RoundReport{report}}, nil)
			},
			status:   http.StatusOK,
			contains: `"total":1`,
		},
		{
			desc:     "list rounds over the limit",
			method:   http.MethodGet,
			path:     fmt.Sprintf("/rounds?limit=%d", 1000),
			status:   http.StatusBadRequest,
			contains: apiutil.ErrLimitSize.Error(),
		},
		{
			desc:   "list rounds with invalid offset",
			method: http.MethodGet,
			path:   "/rounds?offset=-1",
			status: http.StatusBadRequest,
		},
		{
			desc:   "list participants",
			method: http.MethodGet,
			path:   "/participants",
			setup: func(svc *mocks.MockService) {
				svc.On("ListParticipants", mock.Anything, uint64(0), uint64(10)).Return(coordinator.ParticipantPage{Limit: 10, Total: 1, Participants: []participant.Participant{client}}, nil)
			},
			status:   http.StatusOK,
			contains: `"name":"calm-otter"`,
		},
		{
			desc:   "get participant",
			method: http.MethodGet,
			path:   "/participants/client-1",
			setup: func(svc *mocks.MockService) {
				svc.On("GetParticipant", mock.Anything, "client-1").Return(client, nil)
			},
			status:   http.StatusOK,
			contains: `"selection_count":1`,
		},
		{
			desc:   "get unknown participant",
			method: http.MethodGet,
			path:   "/participants/client-9",
			setup: func(svc *mocks.MockService) {
				svc.On("GetParticipant", mock.Anything, "client-9").Return(participant.Participant{}, pkgerrors.ErrNotFound)
			},
			status: http.StatusNotFound,
		},
		{
			desc:   "global model",
			method: http.MethodGet,
			path:   "/model",
			setup: func(svc *mocks.MockService) {
				svc.On("GlobalModel", mock.Anything).Return(fl.Model{Version: 3, Round: 3, Params: fl.Params{"w": fl.Scalar(2)}}, nil)
			},
			status:   http.StatusOK,
			contains: `"num_params":1`,
			header:   map[string]string{"X-Model-Version": "3"},
		},
		{
			desc:     "health",
			method:   http.MethodGet,
			path:     "/health",
			status:   http.StatusOK,
			contains: `"instance_id":"test-instance"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			svc := new(mocks.MockService)
			if tc.setup != nil {
				tc.setup(svc)
			}
			ts := newServer(svc)
			defer ts.Close()

			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			require.NoError(t, err)
			res, err := ts.Client().Do(req)
			require.NoError(t, err)
			defer res.Body.Close()

			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)

			assert.Equal(t, tc.status, res.StatusCode, string(body))
			if tc.contains != "" {
				assert.True(t, strings.Contains(string(body), tc.contains), string(body))
			}
			for k, v := range tc.header {
				assert.Equal(t, v, res.Header.Get(k))
			}
			if res.StatusCode >= http.StatusBadRequest {
				var e map[string]string
				require.NoError(t, json.Unmarshal(body, &e))
				assert.NotEmpty(t, e["error"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestStepOutlivesClientDisconnect(t *testing.T) {
	release := make(chan struct{})
	var cancelled atomic.Bool
	tr := new(trainermocks.MockTrainer)
	tr.On("Train", mock.Anything, mock.Anything, mock.Anything).Return(fl.LocalResult{
		Params:         fl.Params{"w": fl.Scalar(1)},
		CompletionTime: time.Second,
	}, nil).Run(func(args mock.Arguments) {
		<-release
		if args.Get(0).(context.Context).Err() != nil {
			cancelled.Store(true)
		}
	})

	repos, err := storage.NewRepositories(storage.Config{})
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := coordinator.Config{
		NumClients:      2,
		ClientsPerRound: 2,
		MaxRound:        3,
		Selection:       selection.KindUniform,
		Quorum:          quorum.KindAll,
		Staleness:       staleness.Config{Mode: staleness.ModeThreshold},
		SampleCount:     1,
	}
	svc, err := coordinator.NewService(cfg, fl.Params{"w": fl.Scalar(0)}, tr, repos.Rounds, repos.Participants, nil, nil, logger)
	require.NoError(t, err)

	requests := make(chan context.Context, 1)
	handler := api.MakeHandler(svc, logger, "test-instance")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- r.Context()
		handler.ServeHTTP(w, r)
	}))
	defer ts.Close()

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err = client.Post(ts.URL+"/rounds", "application/json", nil)
	require.Error(t, err)

	select {
	case reqCtx := <-requests:
		select {
		case <-reqCtx.Done():
		case <-time.After(time.Second):
			t.Fatal("request context was not cancelled")
		}
	case <-time.After(time.Second):
		t.Fatal("request never reached the server")
	}
	close(release)

	report, err := svc.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Round)
	assert.False(t, cancelled.Load())

	first, err := svc.GetRound(context.Background(), 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"client-1", "client-2"}, first.AdmittedIDs())

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, status.Error)
	assert.NotEqual(t, coordinator.Done, status.Phase)
}
