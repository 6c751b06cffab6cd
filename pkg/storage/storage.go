package storage

import (
	"context"

	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
)

// Storage is a keyed value store ordered by key.
type Storage interface {
	Create(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, error)
	Update(ctx context.Context, key string, value any) error
	List(ctx context.Context, offset, limit uint64) ([]any, uint64, error)
	Delete(ctx context.Context, key string) error
}

// RoundRepository keeps the reports of every aggregated round.
type RoundRepository interface {
	Save(ctx context.Context, report fl.RoundReport) error
	Get(ctx context.Context, runID string, round int) (fl.RoundReport, error)
	List(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundReport, uint64, error)
}

// ParticipantRepository keeps the end of run participant counters.
type ParticipantRepository interface {
	Save(ctx context.Context, runID string, participants []participant.Participant) error
	List(ctx context.Context, runID string, offset, limit uint64) ([]participant.Participant, uint64, error)
}
