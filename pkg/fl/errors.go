package fl

import "errors"

var (
	ErrNoUpdates      = errors.New("no updates provided for aggregation")
	ErrSchemaMismatch = errors.New("parameter schema mismatch between results")
	ErrInvalidShape   = errors.New("tensor data does not match its shape")
)
