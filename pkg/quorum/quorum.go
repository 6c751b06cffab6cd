// Package quorum estimates how many outstanding results must be admitted
// before a round aggregates.
package quorum

import (
	"errors"
	"fmt"
)

var (
	ErrNoObservations = errors.New("no completion times to estimate a quorum from")
	ErrUnknownKind    = errors.New("unknown quorum estimator")
)

type Kind string

const (
	KindCluster Kind = "cluster"
	KindFixed   Kind = "fixed"
	KindAll     Kind = "all"
)

type Estimator interface {
	// Estimate returns a quorum in [1, len(times)] for the remaining
	// completion times, in seconds, of the outstanding results.
	Estimate(times []float64) (int, error)
}

// New returns the estimator of the given kind. fixed is only used by KindFixed.
func New(kind Kind, fixed int) (Estimator, error) {
	switch kind {
	case KindCluster:
		return Cluster{}, nil
	case KindFixed:
		if fixed < 1 {
			return nil, fmt.Errorf("fixed quorum must be positive, got %d", fixed)
		}

		return Fixed{Size: fixed}, nil
	case KindAll:
		return All{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Cluster groups completion times with k-means, picks k by silhouette score
// and waits for the cluster of fastest participants.
type Cluster struct{}

func (Cluster) Estimate(times []float64) (int, error) {
	n := len(times)
	if n == 0 {
		return 0, ErrNoObservations
	}
	if n < 3 {
		return n, nil
	}

	data := sortedCopy(times)
	bestK, bestScore := 0, 0.0
	for k := 2; k < n; k++ {
		if score := silhouette(data, fitKMeans(data, k)); score > bestScore {
			bestK, bestScore = k, score
		}
	}

	k := min(bestK+1, n)
	q := fitKMeans(data, k).fastestClusterSize()

	return clamp(q, n), nil
}

// Fixed admits a configured number of results per round.
type Fixed struct {
	Size int
}

func (f Fixed) Estimate(times []float64) (int, error) {
	if len(times) == 0 {
		return 0, ErrNoObservations
	}

	return clamp(f.Size, len(times)), nil
}

// All waits for every outstanding result.
type All struct{}

func (All) Estimate(times []float64) (int, error) {
	if len(times) == 0 {
		return 0, ErrNoObservations
	}

	return len(times), nil
}

func clamp(q, n int) int {
	return max(1, min(q, n))
}
