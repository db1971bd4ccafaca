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
	websiteListKey      = "website:list"
	websiteDetailPrefix = "website:detail:"
)

// WebsitesStore manages the saved-website collection plus the
// currently selected website. A realtime delete for the selected
// website clears the selection so no consumer is left pointing at an
// entity that no longer exists.
type WebsitesStore struct {
	mu       sync.Mutex
	websites []models.Website
	activeID string

	deps   Deps
	policy *loader.Policy[[]models.Website]
	fetch  func(ctx context.Context) ([]models.Website, error)

	listTTL   time.Duration
	detailTTL time.Duration
}

// NewWebsitesStore creates a WebsitesStore.
func NewWebsitesStore(deps Deps, listTTL, detailTTL time.Duration, fetch func(ctx context.Context) ([]models.Website, error)) *WebsitesStore {
	if listTTL <= 0 {
		listTTL = 5 * time.Minute
	}
	if detailTTL <= 0 {
		detailTTL = 15 * time.Minute
	}
	return &WebsitesStore{
		deps: deps,
		policy: &loader.Policy[[]models.Website]{
			Key:        websiteListKey,
			EntityType: models.EntityWebsite,
			TTL:        listTTL,
			Cache:      deps.Cache,
			Offline:    deps.Offline,
			Monitor:    deps.Monitor,
			Log:        deps.Log,
		},
		fetch:     fetch,
		listTTL:   listTTL,
		detailTTL: detailTTL,
	}
}

// Name identifies the store to the sync coordinator.
func (s *WebsitesStore) Name() string { return "websites" }

// FetchRemote implements loader.Source.
func (s *WebsitesStore) FetchRemote(ctx context.Context) ([]models.Website, error) {
	return s.fetch(ctx)
}

// Apply implements loader.Source. A selection pointing at a website
// that no longer exists after the refresh is cleared.
func (s *WebsitesStore) Apply(data []models.Website, persist bool) {
	s.mu.Lock()
	s.websites = data
	if s.activeID != "" && !containsID(data, s.activeID) {
		s.activeID = ""
	}
	s.mu.Unlock()
}

// Load populates the store cache-first.
func (s *WebsitesStore) Load(ctx context.Context) error {
	return s.policy.Load(ctx, s)
}

// Refresh force-fetches, used by the sync coordinator.
func (s *WebsitesStore) Refresh(ctx context.Context) error {
	return s.policy.Refresh(ctx, s)
}

// Websites returns a snapshot of the collection.
func (s *WebsitesStore) Websites() []models.Website {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Website(nil), s.websites...)
}

// Select marks a website as the active one.
func (s *WebsitesStore) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if containsID(s.websites, id) {
		s.activeID = id
	}
}

// Active returns the currently selected website, if any.
func (s *WebsitesStore) Active() (models.Website, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return models.Website{}, false
	}
	for _, w := range s.websites {
		if w.ID == s.activeID {
			return w, true
		}
	}
	return models.Website{}, false
}

// Create adds a website locally and queues the remote create.
func (s *WebsitesStore) Create(site models.Website) error {
	return s.mutate(site, models.OperationCreate)
}

// Update replaces a website locally and queues the remote update.
func (s *WebsitesStore) Update(site models.Website) error {
	return s.mutate(site, models.OperationUpdate)
}

func (s *WebsitesStore) mutate(site models.Website, op models.OperationType) error {
	payload, err := json.Marshal(site)
	if err != nil {
		return err
	}
	if _, err := s.deps.Queue.Enqueue(op, models.EntityWebsite, site.ID, payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.websites = upsert(s.websites, site)
	s.mu.Unlock()

	s.persistSite(site)
	s.persistList()
	return nil
}

// Delete removes a website locally and queues the remote delete.
func (s *WebsitesStore) Delete(id string) error {
	payload, _ := json.Marshal(map[string]string{"id": id})
	if _, err := s.deps.Queue.Enqueue(models.OperationDelete, models.EntityWebsite, id, payload); err != nil {
		return err
	}
	s.removeLocal(id)
	return nil
}

func (s *WebsitesStore) removeLocal(id string) {
	s.mu.Lock()
	s.websites, _ = removeByID(s.websites, id)
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()

	_ = s.deps.Cache.Remove(websiteDetailPrefix + id)
	_ = s.deps.Offline.Remove(websiteDetailPrefix + id)
	s.persistList()
}

func (s *WebsitesStore) persistSite(site models.Website) {
	key := websiteDetailPrefix + site.ID
	if err := cache.Set(s.deps.Cache, key, site, s.detailTTL); err != nil && s.deps.Log != nil {
		s.deps.Log.WithField("key", key).WithError(err).Warn("failed to cache website")
	}
	if err := s.deps.Offline.Set(key, models.EntityWebsite, mustJSON(site), nil); err != nil && s.deps.Log != nil {
		s.deps.Log.WithField("key", key).WithError(err).Warn("failed to persist website snapshot")
	}
}

func (s *WebsitesStore) persistList() {
	snapshot := s.Websites()
	if err := cache.Set(s.deps.Cache, websiteListKey, snapshot, s.listTTL); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to cache website list")
	}
	if err := s.deps.Offline.Set(websiteListKey, models.EntityWebsite, mustJSON(snapshot), nil); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to persist website list snapshot")
	}
}

// RegisterRealtime subscribes the store to website change events.
func (s *WebsitesStore) RegisterRealtime(d *realtime.Dispatcher) {
	d.Register("websites", s.handleRealtime)
}

func (s *WebsitesStore) handleRealtime(p models.RealtimePayload) {
	switch p.EventType {
	case models.RealtimeInsert, models.RealtimeUpdate:
		record, err := realtime.Decode[models.WebsiteRecord](p.Record)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable website event")
			}
			return
		}
		site := record.ToWebsite()

		s.mu.Lock()
		s.websites = upsert(s.websites, site)
		s.mu.Unlock()

		s.persistSite(site)
		s.persistList()

	case models.RealtimeDelete:
		record, err := realtime.Decode[models.WebsiteRecord](p.OldRecord)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable website delete")
			}
			return
		}
		s.removeLocal(record.ID)
	}
}

func containsID(list []models.Website, id string) bool {
	for _, w := range list {
		if w.ID == id {
			return true
		}
	}
	return false
}
