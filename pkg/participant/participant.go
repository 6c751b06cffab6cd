package participant

import (
	"errors"

	"github.com/absmach/fedasync/pkg/fl"
)

var (
	ErrBusy = errors.New("participant is busy")
	ErrIdle = errors.New("participant is idle")
)

type Participant struct {
	ID             string `json:"id"               db:"id"`
	Name           string `json:"name"             db:"name"`
	Busy           bool   `json:"busy"             db:"busy"`
	DispatchRound  int    `json:"dispatch_round"   db:"dispatch_round"`
	SelectionCount int    `json:"selection_count"  db:"selection_count"`
	AdmissionCount int    `json:"admission_count"  db:"admission_count"`
	HasLocalParams bool   `json:"has_local_params" db:"-"`
}

type entry struct {
	Participant
	params fl.Params
}
