package sqldb

import (
	"context"
	"fmt"

	"github.com/absmach/fedasync/pkg/participant"
	"github.com/jmoiron/sqlx"
)

type ParticipantRepository interface {
	Save(ctx context.Context, runID string, participants []participant.Participant) error
	List(ctx context.Context, runID string, offset, limit uint64) ([]participant.Participant, uint64, error)
}

type participantRepo struct {
	db *sqlx.DB
}

func NewParticipantRepository(db *sqlx.DB) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) Save(ctx context.Context, runID string, participants []participant.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	defer tx.Rollback()

	query := `INSERT INTO participants (run_id, position, id, name, busy, dispatch_round, selection_count, admission_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, id) DO UPDATE SET
			position = excluded.position,
			name = excluded.name,
			busy = excluded.busy,
			dispatch_round = excluded.dispatch_round,
			selection_count = excluded.selection_count,
			admission_count = excluded.admission_count`
	for i, p := range participants {
		if _, err := tx.ExecContext(ctx, tx.Rebind(query),
			runID, i, p.ID, p.Name, p.Busy, p.DispatchRound, p.SelectionCount, p.AdmissionCount,
		); err != nil {
			return fmt.Errorf("%w: %w", ErrUpdate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	return nil
}

func (r *participantRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]participant.Participant, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM participants WHERE run_id = ?`), runID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT id, name, busy, dispatch_round, selection_count, admission_count FROM participants
		WHERE run_id = ? ORDER BY position LIMIT ? OFFSET ?`

	participants := make([]participant.Participant, 0)
	if err := r.db.SelectContext(ctx, &participants, r.db.Rebind(query), runID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBScan, err)
	}

	return participants, total, nil
}
