package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(runID string, round int) fl.RoundReport {
	return fl.RoundReport{
		RunID:    runID,
		Round:    round,
		Selected: []string{"client-3", "client-1"},
		Quorum:   2,
		Admitted: []fl.Admission{
			{ParticipantID: "client-3", DispatchRound: round, Weight: 1, Remaining: 2 * time.Second},
			{ParticipantID: "client-7", DispatchRound: max(round-6, 1), Weight: 0.25, Forced: true},
		},
		Forced:              1,
		Outstanding:         4,
		Metrics:             fl.Metrics{"accuracy": 0.75, "loss": 0.4},
		Metric:              0.75,
		AggregationDuration: 3 * time.Millisecond,
		TimeOfRound:         2*time.Second + 3*time.Millisecond,
		Communication:       2 * 68,
		ModelVersion:        round,
		CompletedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestParticipants(n int) []participant.Participant {
	ps := make([]participant.Participant, n)
	for i := range ps {
		ps[i] = participant.Participant{
			ID:             fmt.Sprintf("client-%d", i+1),
			Name:           fmt.Sprintf("participant-%d", i+1),
			Busy:           i%2 == 0,
			DispatchRound:  i,
			SelectionCount: i + 1,
			AdmissionCount: i,
		}
	}

	return ps
}

// AssertReport compares two reports, tolerating the time zone a store returns.
func AssertReport(t *testing.T, want, got fl.RoundReport) {
	t.Helper()

	assert.WithinDuration(t, want.CompletedAt, got.CompletedAt, time.Millisecond)
	want.CompletedAt, got.CompletedAt = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}

// RoundRepositoryCases exercises a round repository backed by a fresh store.
func RoundRepositoryCases(t *testing.T, repo storage.RoundRepository) {
	t.Helper()
	ctx := context.Background()
	runID := uuid.NewString()

	for round := 1; round <= 6; round++ {
		require.NoError(t, repo.Save(ctx, TestReport(runID, round)))
	}
	require.NoError(t, repo.Save(ctx, TestReport(uuid.NewString(), 1)))

	t.Run("save duplicate round", func(t *testing.T) {
		assert.Error(t, repo.Save(ctx, TestReport(runID, 2)))
	})

	cases := []struct {
		desc  string
		runID string
		round int
		err   error
	}{
		{desc: "get existing round", runID: runID, round: 4},
		{desc: "get missing round", runID: runID, round: 7, err: pkgerrors.ErrNotFound},
		{desc: "get round of unknown run", runID: "invalid-run", round: 1, err: pkgerrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := repo.Get(ctx, tc.runID, tc.round)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			AssertReport(t, TestReport(tc.runID, tc.round), got)
		})
	}

	pages := []struct {
		desc   string
		offset uint64
		limit  uint64
		rounds []int
	}{
		{desc: "first page", offset: 0, limit: 4, rounds: []int{1, 2, 3, 4}},
		{desc: "last page", offset: 4, limit: 4, rounds: []int{5, 6}},
		{desc: "past the end", offset: 10, limit: 4, rounds: []int{}},
	}
	for _, tc := range pages {
		t.Run(tc.desc, func(t *testing.T) {
			reports, total, err := repo.List(ctx, runID, tc.offset, tc.limit)
			require.NoError(t, err)
			assert.Equal(t, uint64(6), total)
			rounds := make([]int, len(reports))
			for i, r := range reports {
				rounds[i] = r.Round
				AssertReport(t, TestReport(runID, r.Round), r)
			}
			assert.Equal(t, tc.rounds, rounds)
		})
	}
}

// ParticipantRepositoryCases exercises a participant repository.
func ParticipantRepositoryCases(t *testing.T, repo storage.ParticipantRepository) {
	t.Helper()
	ctx := context.Background()
	runID := uuid.NewString()

	ps := TestParticipants(4)
	require.NoError(t, repo.Save(ctx, runID, ps))

	ps[2].AdmissionCount = 11
	ps[2].Busy = false
	require.NoError(t, repo.Save(ctx, runID, ps), "saving again updates the counters")

	listed, total, err := repo.List(ctx, runID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), total)
	assert.Equal(t, ps[1:3], listed)
}
