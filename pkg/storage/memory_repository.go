package storage

import (
	"context"
	"fmt"
	"math"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
)

type memoryRoundRepo struct {
	storage Storage
}

func newMemoryRoundRepository(s Storage) RoundRepository {
	return &memoryRoundRepo{storage: s}
}

func roundKey(runID string, round int) string {
	return fmt.Sprintf("%s:%08d", runID, round)
}

func (r *memoryRoundRepo) Save(ctx context.Context, report fl.RoundReport) error {
	return r.storage.Create(ctx, roundKey(report.RunID, report.Round), report)
}

func (r *memoryRoundRepo) Get(ctx context.Context, runID string, round int) (fl.RoundReport, error) {
	data, err := r.storage.Get(ctx, roundKey(runID, round))
	if err != nil {
		return fl.RoundReport{}, fmt.Errorf("round %d of run %s: %w", round, runID, err)
	}
	report, ok := data.(fl.RoundReport)
	if !ok {
		return fl.RoundReport{}, pkgerrors.ErrInvalidData
	}

	return report, nil
}

func (r *memoryRoundRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundReport, uint64, error) {
	data, _, err := r.storage.List(ctx, 0, math.MaxUint64)
	if err != nil {
		return nil, 0, err
	}

	var (
		total   uint64
		reports = make([]fl.RoundReport, 0)
	)
	for _, d := range data {
		report, ok := d.(fl.RoundReport)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		if report.RunID != runID {
			continue
		}
		if total >= offset && uint64(len(reports)) < limit {
			reports = append(reports, report)
		}
		total++
	}

	return reports, total, nil
}

type memoryParticipantRepo struct {
	storage Storage
}

func newMemoryParticipantRepository(s Storage) ParticipantRepository {
	return &memoryParticipantRepo{storage: s}
}

func (r *memoryParticipantRepo) Save(ctx context.Context, runID string, participants []participant.Participant) error {
	snapshot := append([]participant.Participant(nil), participants...)
	if err := r.storage.Update(ctx, runID, snapshot); err == nil {
		return nil
	}

	return r.storage.Create(ctx, runID, snapshot)
}

func (r *memoryParticipantRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]participant.Participant, uint64, error) {
	data, err := r.storage.Get(ctx, runID)
	if err != nil {
		return nil, 0, fmt.Errorf("participants of run %s: %w", runID, err)
	}
	all, ok := data.([]participant.Participant)
	if !ok {
		return nil, 0, pkgerrors.ErrInvalidData
	}

	total := uint64(len(all))
	if offset >= total {
		return []participant.Participant{}, total, nil
	}
	end := min(offset+limit, total)

	return append([]participant.Participant(nil), all[offset:end]...), total, nil
}
