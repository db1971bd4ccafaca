package stores

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/loader"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/realtime"
)

const (
	noteListKey      = "note:list"
	noteDetailPrefix = "note:detail:"
)

// NotesStore manages the note collection.
//
// Archived notes have a bounded afterlife: one modified longer ago than
// the archived retention window is no longer cached or persisted, and
// any existing snapshots for it are evicted on the next write.
type NotesStore struct {
	mu    sync.Mutex
	notes []models.Note

	deps   Deps
	policy *loader.Policy[[]models.Note]
	fetch  func(ctx context.Context) ([]models.Note, error)

	archivedWindow time.Duration
	listTTL        time.Duration
	detailTTL      time.Duration

	now func() time.Time
}

// NotesConfig tunes the notes store.
type NotesConfig struct {
	ListTTL        time.Duration
	DetailTTL      time.Duration
	ArchivedWindow time.Duration
}

// NewNotesStore creates a NotesStore. fetch retrieves the full note
// collection from the backend.
func NewNotesStore(deps Deps, cfg NotesConfig, fetch func(ctx context.Context) ([]models.Note, error)) *NotesStore {
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = 5 * time.Minute
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = 15 * time.Minute
	}
	if cfg.ArchivedWindow <= 0 {
		cfg.ArchivedWindow = 7 * 24 * time.Hour
	}

	return &NotesStore{
		deps: deps,
		policy: &loader.Policy[[]models.Note]{
			Key:        noteListKey,
			EntityType: models.EntityNote,
			TTL:        cfg.ListTTL,
			Cache:      deps.Cache,
			Offline:    deps.Offline,
			Monitor:    deps.Monitor,
			Log:        deps.Log,
		},
		fetch:          fetch,
		archivedWindow: cfg.ArchivedWindow,
		listTTL:        cfg.ListTTL,
		detailTTL:      cfg.DetailTTL,
		now:            time.Now,
	}
}

// Name identifies the store to the sync coordinator.
func (s *NotesStore) Name() string { return "notes" }

// FetchRemote implements loader.Source.
func (s *NotesStore) FetchRemote(ctx context.Context) ([]models.Note, error) {
	return s.fetch(ctx)
}

// Apply implements loader.Source.
func (s *NotesStore) Apply(data []models.Note, persist bool) {
	s.mu.Lock()
	s.notes = data
	s.mu.Unlock()
}

// Load populates the store cache-first.
func (s *NotesStore) Load(ctx context.Context) error {
	return s.policy.Load(ctx, s)
}

// Refresh force-fetches, used by the sync coordinator.
func (s *NotesStore) Refresh(ctx context.Context) error {
	return s.policy.Refresh(ctx, s)
}

// Notes returns a snapshot of the collection.
func (s *NotesStore) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Note(nil), s.notes...)
}

// Get returns one note by id.
func (s *NotesStore) Get(id string) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notes {
		if n.ID == id {
			return n, true
		}
	}
	return models.Note{}, false
}

// Create adds a note locally and queues the remote create.
func (s *NotesStore) Create(note models.Note) error {
	return s.mutate(note, models.OperationCreate)
}

// Update replaces a note locally and queues the remote update.
func (s *NotesStore) Update(note models.Note) error {
	return s.mutate(note, models.OperationUpdate)
}

func (s *NotesStore) mutate(note models.Note, op models.OperationType) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return err
	}

	// Queue first: if the queue is full the mutation is rejected
	// outright rather than leaving local state the remote will never
	// see.
	if _, err := s.deps.Queue.Enqueue(op, models.EntityNote, note.ID, payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.notes = upsert(s.notes, note)
	s.mu.Unlock()

	s.persistNote(note)
	s.persistList()
	return nil
}

// Delete removes a note locally and queues the remote delete.
func (s *NotesStore) Delete(id string) error {
	payload, _ := json.Marshal(map[string]string{"id": id})
	if _, err := s.deps.Queue.Enqueue(models.OperationDelete, models.EntityNote, id, payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.notes, _ = removeByID(s.notes, id)
	s.mu.Unlock()

	s.evictNote(id)
	s.persistList()
	return nil
}

// persistNote writes a note's detail snapshot to cache and offline
// storage. An archived note stale beyond the retention window gets its
// existing snapshots evicted instead.
func (s *NotesStore) persistNote(note models.Note) {
	key := noteDetailPrefix + note.ID

	if note.Archived && s.now().Sub(note.UpdatedAtTime()) > s.archivedWindow {
		s.evictNote(note.ID)
		return
	}

	if err := cache.Set(s.deps.Cache, key, note, s.detailTTL); err != nil && s.deps.Log != nil {
		s.deps.Log.WithField("key", key).WithError(err).Warn("failed to cache note")
	}
	if err := s.deps.Offline.Set(key, models.EntityNote, mustJSON(note), nil); err != nil && s.deps.Log != nil {
		s.deps.Log.WithField("key", key).WithError(err).Warn("failed to persist note snapshot")
	}
}

func (s *NotesStore) evictNote(id string) {
	key := noteDetailPrefix + id
	_ = s.deps.Cache.Remove(key)
	_ = s.deps.Offline.Remove(key)
}

// persistList mirrors the in-memory collection into the list caches so
// the next cold load sees local mutations.
func (s *NotesStore) persistList() {
	snapshot := s.Notes()

	if err := cache.Set(s.deps.Cache, noteListKey, snapshot, s.listTTL); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to cache note list")
	}
	if err := s.deps.Offline.Set(noteListKey, models.EntityNote, mustJSON(snapshot), nil); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to persist note list snapshot")
	}
}

// RegisterRealtime subscribes the store to note change events.
func (s *NotesStore) RegisterRealtime(d *realtime.Dispatcher) {
	d.Register("notes", s.handleRealtime)
}

// handleRealtime folds one change event into the collection and its
// caches. Upsert and delete are both idempotent, so a replayed event
// is harmless.
func (s *NotesStore) handleRealtime(p models.RealtimePayload) {
	switch p.EventType {
	case models.RealtimeInsert, models.RealtimeUpdate:
		record, err := realtime.Decode[models.NoteRecord](p.Record)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable note event")
			}
			return
		}
		note := record.ToNote()

		s.mu.Lock()
		s.notes = upsert(s.notes, note)
		s.mu.Unlock()

		s.persistNote(note)
		s.persistList()

	case models.RealtimeDelete:
		record, err := realtime.Decode[models.NoteRecord](p.OldRecord)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable note delete")
			}
			return
		}

		s.mu.Lock()
		s.notes, _ = removeByID(s.notes, record.ID)
		s.mu.Unlock()

		s.evictNote(record.ID)
		s.persistList()
	}
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}
