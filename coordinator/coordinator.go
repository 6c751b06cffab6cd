// Package coordinator drives the asynchronous federated rounds: it dispatches
// local training, decides when outstanding results are admitted and publishes
// every new global model.
package coordinator

import (
	"context"
	"fmt"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/absmach/fedasync/pkg/quorum"
	"github.com/absmach/fedasync/pkg/selection"
	"github.com/absmach/fedasync/pkg/staleness"
)

type Service interface {
	// Run executes the remaining rounds and returns the run summary.
	Run(ctx context.Context) (fl.RunSummary, error)
	// Step executes exactly one round.
	Step(ctx context.Context) (fl.RoundReport, error)

	Status(ctx context.Context) (Status, error)
	GetRound(ctx context.Context, round int) (fl.RoundReport, error)
	ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error)
	ListParticipants(ctx context.Context, offset, limit uint64) (ParticipantPage, error)
	GetParticipant(ctx context.Context, id string) (participant.Participant, error)
	GlobalModel(ctx context.Context) (fl.Model, error)
}

type MetricGoal string

const (
	Maximize MetricGoal = "max"
	Minimize MetricGoal = "min"
)

type Config struct {
	NumClients         int
	ClientsPerRound    int
	AggClientsPerRound int
	MaxRound           int

	Selection selection.Kind
	Bins      int
	Seed      uint64

	Quorum    quorum.Kind
	Staleness staleness.Config

	Normalization fl.Normalization
	SampleCount   int

	// MetricKey names the aggregated metric tracked for the best round.
	MetricKey  string
	MetricGoal MetricGoal
}

func (c Config) Validate() error {
	switch {
	case c.NumClients < 1:
		return fmt.Errorf("%w: num_clients must be positive", pkgerrors.ErrInvalidConfig)
	case c.ClientsPerRound < 1:
		return fmt.Errorf("%w: num_client_per_round must be positive", pkgerrors.ErrInvalidConfig)
	case c.ClientsPerRound > c.NumClients:
		return fmt.Errorf("%w: num_client_per_round %d exceeds num_clients %d", pkgerrors.ErrInvalidConfig, c.ClientsPerRound, c.NumClients)
	case c.Quorum == quorum.KindFixed && c.AggClientsPerRound < 1:
		return fmt.Errorf("%w: agg_client_per_round must be positive", pkgerrors.ErrInvalidConfig)
	case c.MaxRound < 1:
		return fmt.Errorf("%w: max_round must be positive", pkgerrors.ErrInvalidConfig)
	case c.MetricGoal != "" && c.MetricGoal != Maximize && c.MetricGoal != Minimize:
		return fmt.Errorf("%w: unknown metric goal %q", pkgerrors.ErrInvalidConfig, c.MetricGoal)
	}

	return nil
}

type Status struct {
	RunID         string  `json:"run_id"`
	Phase         Phase   `json:"phase"`
	Round         int     `json:"round"`
	MaxRound      int     `json:"max_round"`
	ModelVersion  int     `json:"model_version"`
	Outstanding   int     `json:"outstanding"`
	Idle          int     `json:"idle"`
	BestRound     int     `json:"best_round"`
	BestMetric    float64 `json:"best_metric"`
	BestVersion   int     `json:"best_version"`
	Communication int     `json:"communication"`
	Error         string  `json:"error,omitempty"`
}

type RoundPage struct {
	Offset uint64           `json:"offset"`
	Limit  uint64           `json:"limit"`
	Total  uint64           `json:"total"`
	Rounds []fl.RoundReport `json:"rounds"`
}

type ParticipantPage struct {
	Offset       uint64                    `json:"offset"`
	Limit        uint64                    `json:"limit"`
	Total        uint64                    `json:"total"`
	Participants []participant.Participant `json:"participants"`
}
