package api

import (
	"errors"

	"github.com/absmach/fedasync/pkg/api"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var errInvalidRound = errors.New("round must be positive")

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type roundReq struct {
	round int
}

func (r *roundReq) validate() error {
	if r.round < 1 {
		return errInvalidRound
	}

	return nil
}

type listEntityReq struct {
	offset, limit uint64
}

func (e *listEntityReq) validate() error {
	if e.limit < 1 || e.limit > api.MaxLimitSize {
		return apiutil.ErrLimitSize
	}

	return nil
}
