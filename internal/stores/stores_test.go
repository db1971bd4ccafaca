package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/offline"
	"github.com/ohartl/knowbase/internal/storage"
	"github.com/ohartl/knowbase/internal/writequeue"
)

// noopExecutor accepts every write so queue drains succeed in tests
// that do not care about replay.
type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, write *models.PendingWrite) error { return nil }

func newTestDeps(t *testing.T) Deps {
	return newQueueLimitedDeps(t, 0)
}

func newQueueLimitedDeps(t *testing.T, maxPending int) Deps {
	t.Helper()

	db, err := storage.OpenAndMigrate(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return Deps{
		Cache:   cache.NewMemory(),
		Offline: offline.NewStore(db.DB),
		Queue:   writequeue.New(db.DB, noopExecutor{}, nil, writequeue.Options{MaxPendingWrites: maxPending}, nil),
	}
}
