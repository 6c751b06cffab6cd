package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
)

type RoundRepository interface {
	Save(ctx context.Context, report fl.RoundReport) error
	Get(ctx context.Context, runID string, round int) (fl.RoundReport, error)
	List(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundReport, uint64, error)
}

type roundRepo struct {
	db *Database
}

func NewRoundRepository(db *Database) RoundRepository {
	return &roundRepo{db: db}
}

func roundPrefix(runID string) []byte {
	return []byte("round:" + runID + ":")
}

// roundKey zero pads the round so that keys iterate in round order.
func roundKey(runID string, round int) []byte {
	return fmt.Appendf(roundPrefix(runID), "%010d", round)
}

func (r *roundRepo) Save(ctx context.Context, report fl.RoundReport) error {
	val, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.create(roundKey(report.RunID, report.Round), val)
}

func (r *roundRepo) Get(ctx context.Context, runID string, round int) (fl.RoundReport, error) {
	val, err := r.db.get(roundKey(runID, round))
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return fl.RoundReport{}, fmt.Errorf("round %d of run %s: %w", round, runID, pkgerrors.ErrNotFound)
		}

		return fl.RoundReport{}, err
	}

	var report fl.RoundReport
	if err := json.Unmarshal(val, &report); err != nil {
		return fl.RoundReport{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return report, nil
}

func (r *roundRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundReport, uint64, error) {
	values, total, err := r.db.listWithPrefix(roundPrefix(runID), offset, limit)
	if err != nil {
		return nil, 0, err
	}

	reports := make([]fl.RoundReport, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &reports[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return reports, total, nil
}
