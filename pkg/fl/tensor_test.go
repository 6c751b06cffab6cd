package fl_test

import (
	"math"
	"testing"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/stretchr/testify/assert"
)

func TestCheckSchema(t *testing.T) {
	base := fl.Params{"w": fl.NewTensor(2, 2), "b": fl.NewTensor(2)}

	cases := []struct {
		desc  string
		other fl.Params
		err   error
	}{
		{desc: "same schema", other: fl.Params{"w": fl.NewTensor(2, 2), "b": fl.NewTensor(2)}},
		{desc: "extra parameter", other: fl.Params{"w": fl.NewTensor(2, 2), "b": fl.NewTensor(2), "c": fl.NewTensor(1)}, err: fl.ErrSchemaMismatch},
		{desc: "renamed parameter", other: fl.Params{"w": fl.NewTensor(2, 2), "bias": fl.NewTensor(2)}, err: fl.ErrSchemaMismatch},
		{desc: "transposed shape", other: fl.Params{"w": fl.NewTensor(4, 1), "b": fl.NewTensor(2)}, err: fl.ErrSchemaMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := base.CheckSchema(tc.other)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestParamsClone(t *testing.T) {
	p := fl.Params{"w": {Shape: []int{2}, Data: []float64{1, 2}}}
	c := p.Clone()
	c["w"].Data[0] = 42

	assert.Equal(t, 1.0, p["w"].Data[0])
	assert.Equal(t, 2, p.NumParams())
	assert.Equal(t, []string{"w"}, p.Names())
	assert.True(t, p.Finite())

	p["w"].Data[1] = math.NaN()
	assert.False(t, p.Finite())
}
