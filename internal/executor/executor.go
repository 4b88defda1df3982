package executor

import (
	"context"

	"github.com/quantfx/decision-engine/pkg/types"
)

// Executor is the execution collaborator contract. Execute answers
// synchronously with acceptance or rejection; realized closures arrive
// later on the Closures channel, each carrying a broker ticket id used
// for idempotent application.
type Executor interface {
	Execute(ctx context.Context, order types.Order) (types.ExecutionReport, error)
	Closures() <-chan types.TradeResult
	Close() error
}
