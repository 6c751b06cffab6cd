package fl

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrZeroWeight is returned when weight normalisation meets a zero weight sum.
var ErrZeroWeight = errors.New("sum of aggregation weights is zero")

// Normalization selects the divisor of the weighted parameter sum.
type Normalization uint8

const (
	// ByCount divides by the number of admitted results, so staleness weights
	// scale a contribution without being required to sum to one.
	ByCount Normalization = iota
	// ByWeight divides by the sum of weights and yields a convex combination.
	ByWeight
)

func (n Normalization) String() string {
	switch n {
	case ByCount:
		return "count"
	case ByWeight:
		return "weight"
	default:
		return fmt.Sprintf("Normalization(%d)", uint8(n))
	}
}

func ParseNormalization(s string) (Normalization, error) {
	switch s {
	case "", "count":
		return ByCount, nil
	case "weight":
		return ByWeight, nil
	default:
		return 0, fmt.Errorf("unknown aggregation normalization %q", s)
	}
}

type Aggregator interface {
	Aggregate(results []WeightedResult) (Params, Metrics, error)
}

type weightedAggregator struct {
	sampleCount   int
	normalization Normalization
}

// NewWeightedAggregator returns the staleness-weighted federated averaging
// engine. sampleCount is the fixed per-participant sample size used to combine
// metric logs.
func NewWeightedAggregator(sampleCount int, normalization Normalization) Aggregator {
	if sampleCount <= 0 {
		sampleCount = 1
	}

	return &weightedAggregator{
		sampleCount:   sampleCount,
		normalization: normalization,
	}
}

func (a *weightedAggregator) Aggregate(results []WeightedResult) (Params, Metrics, error) {
	params, err := a.aggregateParams(results)
	if err != nil {
		return nil, nil, err
	}

	logs := make([]Metrics, len(results))
	for i := range results {
		logs[i] = results[i].Result.Metrics
	}

	return params, AggregateMetrics(logs, a.sampleCount), nil
}

func (a *weightedAggregator) aggregateParams(results []WeightedResult) (Params, error) {
	if len(results) == 0 {
		return nil, ErrNoUpdates
	}

	schema := results[0].Result.Params
	for i := range schema {
		if err := schema[i].Validate(); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", i, err)
		}
	}
	for i := 1; i < len(results); i++ {
		if err := schema.CheckSchema(results[i].Result.Params); err != nil {
			return nil, fmt.Errorf("result of %s: %w", results[i].ParticipantID, err)
		}
	}

	divisor := float64(len(results))
	if a.normalization == ByWeight {
		weights := make([]float64, len(results))
		for i, r := range results {
			weights[i] = r.Weight
		}
		divisor = floats.Sum(weights)
		if divisor == 0 {
			return nil, ErrZeroWeight
		}
	}

	agg := make(Params, len(schema))
	for name, t := range schema {
		sum := NewTensor(t.Shape...)
		for _, r := range results {
			floats.AddScaled(sum.Data, r.Weight, r.Result.Params[name].Data)
		}
		floats.Scale(1/divisor, sum.Data)
		agg[name] = sum
	}

	return agg, nil
}

// AggregateMetrics combines metric logs as a sample-size weighted mean. The
// keys of the first log decide which metrics are reported; a key missing from
// another log counts as zero.
func AggregateMetrics(logs []Metrics, sampleCount int) Metrics {
	if len(logs) == 0 {
		return Metrics{}
	}

	samples := float64(sampleCount)
	agg := make(Metrics, len(logs[0]))
	for k := range logs[0] {
		sum := 0.0
		for _, l := range logs {
			sum += l[k] * samples
		}
		agg[k] = sum / (samples * float64(len(logs)))
	}

	return agg
}
