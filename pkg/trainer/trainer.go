// Package trainer defines the local training call made for every dispatched
// participant and ships a deterministic simulation of it.
package trainer

import (
	"context"

	"github.com/absmach/fedasync/pkg/fl"
)

// Trainer runs one local training pass of a participant starting from the
// given global parameters. Implementations must not retain global.
type Trainer interface {
	Train(ctx context.Context, participantID string, global fl.Params) (fl.LocalResult, error)
}
