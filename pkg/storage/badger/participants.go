package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/participant"
)

type ParticipantRepository interface {
	Save(ctx context.Context, runID string, participants []participant.Participant) error
	List(ctx context.Context, runID string, offset, limit uint64) ([]participant.Participant, uint64, error)
}

type participantRepo struct {
	db *Database
}

func NewParticipantRepository(db *Database) ParticipantRepository {
	return &participantRepo{db: db}
}

func participantsKey(runID string) []byte {
	return []byte("participants:" + runID)
}

func (r *participantRepo) Save(ctx context.Context, runID string, participants []participant.Participant) error {
	val, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(participantsKey(runID), val)
}

func (r *participantRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]participant.Participant, uint64, error) {
	val, err := r.db.get(participantsKey(runID))
	if err != nil {
		if errors.Is(err, errKeyNotFound) {
			return nil, 0, fmt.Errorf("participants of run %s: %w", runID, pkgerrors.ErrNotFound)
		}

		return nil, 0, err
	}

	var all []participant.Participant
	if err := json.Unmarshal(val, &all); err != nil {
		return nil, 0, fmt.Errorf("unmarshal error: %w", err)
	}

	total := uint64(len(all))
	if offset >= total {
		return []participant.Participant{}, total, nil
	}

	return all[offset:min(offset+limit, total)], total, nil
}
