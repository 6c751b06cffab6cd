package fl

import "time"

// Tensor is a dense, row-major numeric array with a fixed shape.
type Tensor struct {
	Shape []int     `json:"shape" cbor:"shape"`
	Data  []float64 `json:"data"  cbor:"data"`
}

// Params maps a parameter name to its tensor.
type Params map[string]Tensor

// Metrics is an evaluation log, metric name to scalar value.
type Metrics map[string]float64

// LocalResult is what one participant returns after local training.
type LocalResult struct {
	Params         Params        `json:"params"`
	Metrics        Metrics       `json:"metrics"`
	CompletionTime time.Duration `json:"completion_time"`
}

// WeightedResult is a local result admitted into an aggregation together with
// its staleness weight.
type WeightedResult struct {
	ParticipantID string      `json:"participant_id"`
	Result        LocalResult `json:"result"`
	Weight        float64     `json:"weight"`
}

// Model is a published version of the global parameters.
type Model struct {
	Version  int            `json:"version"  cbor:"version"`
	Round    int            `json:"round"    cbor:"round"`
	Params   Params         `json:"params"   cbor:"params"`
	Metadata map[string]any `json:"metadata,omitempty" cbor:"metadata,omitempty"`
}

type Admission struct {
	ParticipantID string        `json:"participant_id"`
	DispatchRound int           `json:"dispatch_round"`
	Weight        float64       `json:"weight"`
	Remaining     time.Duration `json:"remaining"`
	Forced        bool          `json:"forced"`
}

// RoundReport records what happened in one scheduler round.
type RoundReport struct {
	RunID               string        `json:"run_id"`
	Round               int           `json:"round"`
	Selected            []string      `json:"selected"`
	Quorum              int           `json:"quorum"`
	Admitted            []Admission   `json:"admitted"`
	Forced              int           `json:"forced"`
	Outstanding         int           `json:"outstanding"`
	Metrics             Metrics       `json:"metrics,omitempty"`
	Metric              float64       `json:"metric"`
	AggregationDuration time.Duration `json:"aggregation_duration"`
	TimeOfRound         time.Duration `json:"time_of_round"`
	Communication       int           `json:"communication"`
	ModelVersion        int           `json:"model_version"`
	CompletedAt         time.Time     `json:"completed_at"`
}

// AdmittedIDs returns the ids of the participants admitted in the round.
func (r RoundReport) AdmittedIDs() []string {
	ids := make([]string, len(r.Admitted))
	for i, a := range r.Admitted {
		ids[i] = a.ParticipantID
	}

	return ids
}

// RunSummary is returned once every configured round has been executed.
type RunSummary struct {
	RunID         string        `json:"run_id"`
	Rounds        int           `json:"rounds"`
	BestRound     int           `json:"best_round"`
	BestMetric    float64       `json:"best_metric"`
	BestVersion   int           `json:"best_version"`
	Communication int           `json:"communication"`
	ModelVersion  int           `json:"model_version"`
	Reports       []RoundReport `json:"reports,omitempty"`
}
