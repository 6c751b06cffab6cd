package selection_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/absmach/fedasync/pkg/selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(n int, params func(i int) fl.Params) []selection.Candidate {
	cs := make([]selection.Candidate, n)
	for i := range cs {
		cs[i] = selection.Candidate{Participant: participant.Participant{ID: fmt.Sprintf("client-%d", i+1)}}
		if params != nil {
			cs[i].Params = params(i)
		}
	}

	return cs
}

func ramp() fl.Params {
	return fl.Params{"w": {Shape: []int{8}, Data: []float64{1, 2, 3, 4, 5, 6, 7, 8}}}
}

func TestUniformSelect(t *testing.T) {
	cases := []struct {
		desc string
		idle int
		k    int
		want int
	}{
		{desc: "fewer than idle", idle: 10, k: 3, want: 3},
		{desc: "exactly idle", idle: 4, k: 4, want: 4},
		{desc: "more than idle", idle: 2, k: 5, want: 2},
		{desc: "no idle participants", idle: 0, k: 3, want: 0},
		{desc: "nothing requested", idle: 5, k: 0, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			p, err := selection.New(selection.KindUniform, 42, 0)
			require.NoError(t, err)

			for round := 1; round <= 20; round++ {
				selected, err := p.Select(round, candidates(tc.idle, nil), tc.k, nil)
				require.NoError(t, err)
				assert.Len(t, selected, tc.want)

				seen := make(map[string]bool)
				for _, s := range selected {
					assert.False(t, seen[s.ID], "duplicate %s", s.ID)
					seen[s.ID] = true
				}
			}
		})
	}
}

func TestUniformDeterministic(t *testing.T) {
	a, err := selection.New(selection.KindUniform, 7, 0)
	require.NoError(t, err)
	b, err := selection.New(selection.KindUniform, 7, 0)
	require.NoError(t, err)

	for round := 1; round <= 5; round++ {
		sa, err := a.Select(round, candidates(10, nil), 3, nil)
		require.NoError(t, err)
		sb, err := b.Select(round, candidates(10, nil), 3, nil)
		require.NoError(t, err)
		assert.Equal(t, sa, sb)
	}
}

func TestInfoGainSelect(t *testing.T) {
	global := ramp()
	flat := fl.Params{"w": {Shape: []int{8}, Data: []float64{2, 2, 2, 2, 2, 2, 2, 2}}}

	cases := []struct {
		desc       string
		round      int
		global     fl.Params
		candidates []selection.Candidate
		want       []string
		count      int
		err        error
	}{
		{
			desc:       "first round behaves as uniform",
			round:      1,
			global:     global,
			candidates: candidates(4, func(int) fl.Params { return ramp() }),
			count:      4,
		},
		{
			desc:       "empty global model behaves as uniform",
			round:      3,
			candidates: candidates(4, func(int) fl.Params { return ramp() }),
			count:      4,
		},
		{
			desc:       "equal deltas admit none",
			round:      2,
			global:     global,
			candidates: candidates(4, func(int) fl.Params { return ramp() }),
			count:      0,
		},
		{
			desc:   "low information candidate is admitted",
			round:  2,
			global: global,
			candidates: candidates(4, func(i int) fl.Params {
				if i == 2 {
					return flat
				}
				return ramp()
			}),
			want: []string{"client-3"},
		},
		{
			desc:       "candidates without local parameters are admitted",
			round:      2,
			global:     global,
			candidates: candidates(3, nil),
			count:      3,
		},
		{
			desc:   "schema mismatch",
			round:  2,
			global: global,
			candidates: candidates(2, func(int) fl.Params {
				return fl.Params{"w": fl.NewTensor(3)}
			}),
			err: fl.ErrSchemaMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			p, err := selection.New(selection.KindInfoGain, 1, 100)
			require.NoError(t, err)

			selected, err := p.Select(tc.round, tc.candidates, len(tc.candidates), tc.global)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			if tc.want != nil {
				ids := make([]string, len(selected))
				for i, s := range selected {
					ids[i] = s.ID
				}
				assert.Equal(t, tc.want, ids)
				return
			}
			assert.Len(t, selected, tc.count)
		})
	}
}

func TestDelta(t *testing.T) {
	global := ramp()

	d, err := selection.Delta(ramp(), global, 100)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, d, 1e-9, "identical tensors share all information")

	constant := fl.Params{"w": {Shape: []int{8}, Data: []float64{0, 0, 0, 0, 0, 0, 0, 0}}}
	d, err = selection.Delta(constant, global, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-9)

	diverged := fl.Params{"w": {Shape: []int{8}, Data: []float64{1, 2, 3, math.NaN(), 5, 6, 7, 8}}}
	_, err = selection.Delta(diverged, global, 100)
	assert.ErrorIs(t, err, selection.ErrNotFinite)
}

func TestNewUnknownKind(t *testing.T) {
	_, err := selection.New("greedy", 1, 0)
	assert.ErrorIs(t, err, selection.ErrUnknownKind)
}
