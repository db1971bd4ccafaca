package stores

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/offline"
)

func newNotesStore(t *testing.T) *NotesStore {
	t.Helper()
	return NewNotesStore(newTestDeps(t), NotesConfig{}, nil)
}

func nowMilli() int64 { return time.Now().UnixMilli() }

func TestNotesCreatePersistsAndEnqueues(t *testing.T) {
	s := newNotesStore(t)

	note := models.Note{ID: "n1", Title: "groceries", UpdatedAt: nowMilli()}
	require.NoError(t, s.Create(note))

	got, ok := s.Get("n1")
	require.True(t, ok)
	assert.Equal(t, "groceries", got.Title)

	// Detail and list snapshots are written to both tiers.
	cached, ok := cache.Get[models.Note](s.deps.Cache, "note:detail:n1")
	require.True(t, ok)
	assert.Equal(t, "groceries", cached.Title)

	list, ok := offline.Get[[]models.Note](s.deps.Offline, "note:list")
	require.True(t, ok)
	require.Len(t, list, 1)

	// The mutation is queued for replay.
	pending, err := s.deps.Queue.FetchPendingWrites()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OperationCreate, pending[0].Operation)
	assert.Equal(t, "n1", pending[0].EntityID)
}

func TestNotesUpdateReplacesInPlace(t *testing.T) {
	s := newNotesStore(t)

	require.NoError(t, s.Create(models.Note{ID: "n1", Title: "draft"}))
	require.NoError(t, s.Update(models.Note{ID: "n1", Title: "final"}))

	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "final", notes[0].Title)
}

func TestNotesDeleteEvictsCaches(t *testing.T) {
	s := newNotesStore(t)

	require.NoError(t, s.Create(models.Note{ID: "n1", Title: "doomed"}))
	require.NoError(t, s.Delete("n1"))

	_, ok := s.Get("n1")
	assert.False(t, ok)

	_, ok = cache.Get[models.Note](s.deps.Cache, "note:detail:n1")
	assert.False(t, ok)
	_, ok = s.deps.Offline.Get("note:detail:n1")
	assert.False(t, ok)
}

func TestNotesArchivedStaleNotPersisted(t *testing.T) {
	s := newNotesStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	// Archived and last touched beyond the retention window: the note
	// stays in memory but its snapshots are evicted, not refreshed.
	stale := models.Note{
		ID:        "old",
		Title:     "ancient",
		Archived:  true,
		UpdatedAt: base.Add(-8 * 24 * time.Hour).UnixMilli(),
	}
	require.NoError(t, s.Update(stale))

	_, ok := s.Get("old")
	assert.True(t, ok, "note still visible in memory")

	_, ok = cache.Get[models.Note](s.deps.Cache, "note:detail:old")
	assert.False(t, ok, "stale archived note must not be cached")
	_, ok = s.deps.Offline.Get("note:detail:old")
	assert.False(t, ok, "stale archived note must not be persisted")
}

func TestNotesArchivedRecentStillPersisted(t *testing.T) {
	s := newNotesStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	recent := models.Note{
		ID:        "fresh",
		Archived:  true,
		UpdatedAt: base.Add(-time.Hour).UnixMilli(),
	}
	require.NoError(t, s.Update(recent))

	_, ok := cache.Get[models.Note](s.deps.Cache, "note:detail:fresh")
	assert.True(t, ok, "recently archived note is still cached")
}

func TestNotesArchivedCrossingWindowEvictedOnNextWrite(t *testing.T) {
	s := newNotesStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	note := models.Note{ID: "n1", Archived: true, UpdatedAt: base.UnixMilli()}
	require.NoError(t, s.Create(note))
	_, ok := cache.Get[models.Note](s.deps.Cache, "note:detail:n1")
	require.True(t, ok)

	// Time passes beyond the window; the next write evicts the old
	// snapshots instead of refreshing them.
	s.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	require.NoError(t, s.Update(note))

	_, ok = cache.Get[models.Note](s.deps.Cache, "note:detail:n1")
	assert.False(t, ok)
	_, ok = s.deps.Offline.Get("note:detail:n1")
	assert.False(t, ok)
}

func TestNotesRealtimeUpsertIsIdempotent(t *testing.T) {
	s := newNotesStore(t)

	record, _ := json.Marshal(models.NoteRecord{
		ID: "n1", Title: "pushed",
		Metadata: map[string]interface{}{"pinned": true},
	})
	event := models.RealtimePayload{
		EventType: models.RealtimeInsert,
		Table:     "notes",
		Record:    record,
	}

	s.handleRealtime(event)
	s.handleRealtime(event) // replayed event

	notes := s.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, "pushed", notes[0].Title)
	assert.True(t, notes[0].Pinned)
}

func TestNotesRealtimeDelete(t *testing.T) {
	s := newNotesStore(t)
	require.NoError(t, s.Create(models.Note{ID: "n1"}))

	old, _ := json.Marshal(models.NoteRecord{ID: "n1"})
	s.handleRealtime(models.RealtimePayload{
		EventType: models.RealtimeDelete,
		Table:     "notes",
		OldRecord: old,
	})

	assert.Empty(t, s.Notes())
	_, ok := cache.Get[models.Note](s.deps.Cache, "note:detail:n1")
	assert.False(t, ok)
}

func TestNotesQueueFullRejectsMutation(t *testing.T) {
	s := NewNotesStore(newQueueLimitedDeps(t, 1), NotesConfig{}, nil)
	require.NoError(t, s.Create(models.Note{ID: "a"}))

	err := s.Create(models.Note{ID: "b"})
	require.Error(t, err)

	_, ok := s.Get("b")
	assert.False(t, ok, "rejected mutation must not change local state")
}
