// Package writequeue provides the durable, ordered queue of pending
// local mutations. Mutations are persisted first and replayed against
// the remote backend when connectivity allows; replay is strictly FIFO
// by enqueue time. A mutation is never silently dropped: it succeeds,
// stays queued, or parks as a conflict awaiting explicit resolution.
package writequeue

import (
	"context"
	"fmt"

	"github.com/ohartl/knowbase/internal/models"
)

// Executor performs the actual remote mutation for one record. It is
// injected by the composition root; the queue never builds transport
// itself. Classifying a failure as a conflict is the executor's job,
// signalled by returning a *ConflictError.
type Executor interface {
	Execute(ctx context.Context, write *models.PendingWrite) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, write *models.PendingWrite) error

func (f ExecutorFunc) Execute(ctx context.Context, write *models.PendingWrite) error {
	return f(ctx, write)
}

// ConflictError reports that the server rejected a mutation because
// its state diverged since the mutation was queued. ServerSnapshot
// carries the server's current state so callers can present a merge
// choice.
type ConflictError struct {
	Reason         string
	ServerSnapshot []byte
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write conflict: %s", e.Reason)
}
