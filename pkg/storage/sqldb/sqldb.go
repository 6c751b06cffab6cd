// Package sqldb implements the run record repositories on top of any sqlx
// database. Queries are written with ? placeholders and rebound to the
// driver's bind style.
package sqldb

import (
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrDBQuery = errors.New("database query error")
	ErrDBScan  = errors.New("database scan error")
	ErrCreate  = errors.New("create error")
	ErrUpdate  = errors.New("update error")
)

type Repositories struct {
	Rounds       RoundRepository
	Participants ParticipantRepository
}

func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Rounds:       NewRoundRepository(db),
		Participants: NewParticipantRepository(db),
	}
}
