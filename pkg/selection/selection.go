// Package selection decides which idle participants are dispatched in a round.
package selection

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"gonum.org/v1/gonum/stat"
)

const DefaultBins = 100

var (
	ErrUnknownKind = errors.New("unknown selection policy")
	ErrNotFinite   = errors.New("parameters are not finite")
)

type Kind string

const (
	KindUniform  Kind = "uniform"
	KindInfoGain Kind = "infogain"
)

// Candidate is an idle participant together with the last local parameters
// it produced, nil if it has not trained yet.
type Candidate struct {
	Participant participant.Participant
	Params      fl.Params
}

// Policy is not safe for concurrent use; the scheduler calls it from its
// single decision loop.
type Policy interface {
	Select(round int, candidates []Candidate, k int, global fl.Params) ([]participant.Participant, error)
}

func New(kind Kind, seed uint64, bins int) (Policy, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	switch kind {
	case KindUniform:
		return &uniform{rng: rng}, nil
	case KindInfoGain:
		if bins <= 0 {
			bins = DefaultBins
		}

		return &infoGain{uniform: uniform{rng: rng}, bins: bins}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

type uniform struct {
	rng *rand.Rand
}

func (u *uniform) Select(_ int, candidates []Candidate, k int, _ fl.Params) ([]participant.Participant, error) {
	sampled := u.sample(candidates, k)
	selected := make([]participant.Participant, len(sampled))
	for i, c := range sampled {
		selected[i] = c.Participant
	}

	return selected, nil
}

// sample draws min(k, len(candidates)) candidates without replacement.
func (u *uniform) sample(candidates []Candidate, k int) []Candidate {
	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	k = max(0, min(k, len(pool)))
	for i := range k {
		j := i + u.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return pool[:k]
}

// infoGain drops sampled candidates whose local parameters carry too much
// mutual information with the global model.
type infoGain struct {
	uniform
	bins int
}

func (ig *infoGain) Select(round int, candidates []Candidate, k int, global fl.Params) ([]participant.Participant, error) {
	if round < 2 || len(global) == 0 {
		return ig.uniform.Select(round, candidates, k, global)
	}

	sampled := ig.sample(candidates, k)
	measured := make([]bool, len(sampled))
	deltas := make([]float64, 0, len(sampled))
	for i, c := range sampled {
		if len(c.Params) == 0 {
			continue
		}
		d, err := Delta(c.Params, global, ig.bins)
		if err != nil {
			return nil, fmt.Errorf("information gain of %s: %w", c.Participant.ID, err)
		}
		measured[i] = true
		deltas = append(deltas, d)
	}

	threshold := admissionThreshold(deltas)
	selected := make([]participant.Participant, 0, len(sampled))
	next := 0
	for i, c := range sampled {
		if measured[i] {
			d := deltas[next]
			next++
			if d >= threshold {
				continue
			}
		}
		selected = append(selected, c.Participant)
	}

	return selected, nil
}

// admissionThreshold is mean - std of the deltas, population std. Equal
// deltas yield their common value so that none of them passes.
func admissionThreshold(deltas []float64) float64 {
	if len(deltas) == 0 {
		return math.Inf(1)
	}
	if slices.Min(deltas) == slices.Max(deltas) {
		return deltas[0]
	}

	mean, std := stat.PopMeanStdDev(deltas, nil)

	return mean - std
}
