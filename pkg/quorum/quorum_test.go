package quorum_test

import (
	"math/rand/v2"
	"testing"

	"github.com/absmach/fedasync/pkg/quorum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterEstimate(t *testing.T) {
	cases := []struct {
		desc  string
		times []float64
		want  int
		err   error
	}{
		{desc: "no observations", err: quorum.ErrNoObservations},
		{desc: "single result", times: []float64{4}, want: 1},
		{desc: "two results fall back to all", times: []float64{1, 100}, want: 2},
		{desc: "identical times wait for all", times: []float64{5, 5, 5, 5}, want: 4},
		{desc: "fast and slow groups", times: []float64{1, 1.1, 1.2, 10, 10.1, 10.2}, want: 3},
		{desc: "unsorted input", times: []float64{10.2, 1.1, 10, 1, 10.1, 1.2}, want: 3},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			q, err := quorum.Cluster{}.Estimate(tc.times)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, q)
		})
	}
}

func TestClusterEstimateRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for n := 1; n <= 40; n++ {
		times := make([]float64, n)
		for i := range times {
			times[i] = rng.ExpFloat64() * 30
		}
		q, err := quorum.Cluster{}.Estimate(times)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q, 1, "n=%d", n)
		assert.LessOrEqual(t, q, n, "n=%d", n)
	}
}

func TestNew(t *testing.T) {
	times := []float64{3, 1, 2, 8, 5}

	cases := []struct {
		desc  string
		kind  quorum.Kind
		fixed int
		want  int
		fails bool
	}{
		{desc: "fixed below outstanding", kind: quorum.KindFixed, fixed: 2, want: 2},
		{desc: "fixed above outstanding", kind: quorum.KindFixed, fixed: 9, want: 5},
		{desc: "fixed must be positive", kind: quorum.KindFixed, fixed: 0, fails: true},
		{desc: "all", kind: quorum.KindAll, want: 5},
		{desc: "cluster", kind: quorum.KindCluster, want: 0},
		{desc: "unknown kind", kind: "median", fails: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			e, err := quorum.New(tc.kind, tc.fixed)
			if tc.fails {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			q, err := e.Estimate(times)
			require.NoError(t, err)
			if tc.want == 0 {
				assert.True(t, q >= 1 && q <= len(times))
				return
			}
			assert.Equal(t, tc.want, q)
		})
	}
}

func TestEmptyInput(t *testing.T) {
	for _, e := range []quorum.Estimator{quorum.Cluster{}, quorum.Fixed{Size: 2}, quorum.All{}} {
		_, err := e.Estimate(nil)
		assert.ErrorIs(t, err, quorum.ErrNoObservations)
	}
}
