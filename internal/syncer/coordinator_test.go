package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohartl/knowbase/internal/connectivity"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/storage"
	"github.com/ohartl/knowbase/internal/writequeue"
)

type countingStore struct {
	name      string
	refreshes atomic.Int32
}

func (s *countingStore) Name() string { return s.name }

func (s *countingStore) Refresh(ctx context.Context) error {
	s.refreshes.Add(1)
	return nil
}

type acceptAllExecutor struct{}

func (acceptAllExecutor) Execute(ctx context.Context, write *models.PendingWrite) error { return nil }

func newTestQueue(t *testing.T, gate writequeue.Gate) *writequeue.Queue {
	t.Helper()
	db, err := storage.OpenAndMigrate(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return writequeue.New(db.DB, acceptAllExecutor{}, gate, writequeue.Options{}, nil)
}

func TestRefreshAllDrainsThenRefreshes(t *testing.T) {
	q := newTestQueue(t, nil)
	_, err := q.Enqueue(models.OperationUpdate, models.EntityNote, "n1", []byte(`{}`))
	require.NoError(t, err)

	c := New(q, nil, nil, nil)
	store := &countingStore{name: "notes"}
	c.Register(store)

	require.NoError(t, c.RefreshAll(context.Background()))

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Zero(t, count, "queue drained")
	assert.Equal(t, int32(1), store.refreshes.Load())
}

func TestSyncGateBlocksEverything(t *testing.T) {
	q := newTestQueue(t, nil)
	_, err := q.Enqueue(models.OperationUpdate, models.EntityNote, "n1", []byte(`{}`))
	require.NoError(t, err)

	c := New(q, nil, func() bool { return false }, nil)
	store := &countingStore{name: "notes"}
	c.Register(store)

	require.NoError(t, c.RefreshAll(context.Background()))

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "pending count unchanged while gated")
	assert.Zero(t, store.refreshes.Load(), "no store refresh while gated")
}

func TestRefreshAllRunsAllStoresDespiteFailure(t *testing.T) {
	q := newTestQueue(t, nil)
	c := New(q, nil, nil, nil)

	failing := &failingStore{}
	ok := &countingStore{name: "websites"}
	c.Register(failing)
	c.Register(ok)

	require.NoError(t, c.RefreshAll(context.Background()))
	assert.Equal(t, int32(1), ok.refreshes.Load())
}

type failingStore struct{}

func (failingStore) Name() string                      { return "broken" }
func (failingStore) Refresh(ctx context.Context) error { return assert.AnError }

func TestConnectivityRegainTriggersSync(t *testing.T) {
	q := newTestQueue(t, nil)
	monitor := connectivity.NewMonitor(2, nil)

	c := New(q, monitor, nil, nil)
	store := &countingStore{name: "notes"}
	c.Register(store)

	c.Start(context.Background())
	defer c.Stop()

	// Two failures flip offline, two successes flip back online.
	monitor.ReportFailure(connectivity.FailureNetworkDown)
	monitor.ReportFailure(connectivity.FailureNetworkDown)
	require.True(t, monitor.IsOffline())

	monitor.ReportSuccess()
	monitor.ReportSuccess()
	require.False(t, monitor.IsOffline())

	require.Eventually(t, func() bool {
		return store.refreshes.Load() == 1
	}, 2*time.Second, 10*time.Millisecond, "regaining connectivity must trigger one sync")
}

func TestSchedulerTicks(t *testing.T) {
	q := newTestQueue(t, nil)
	c := New(q, nil, nil, nil)
	store := &countingStore{name: "tasks"}
	c.Register(store)

	s := NewScheduler(c, 10*time.Millisecond, nil)
	s.Start(context.Background())

	require.Eventually(t, func() bool {
		return store.refreshes.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	after := store.refreshes.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, store.refreshes.Load(), "no ticks after Stop")
}
