package stores

import (
	"context"
	"sync"
	"time"

	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/loader"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/realtime"
)

const fileJobListKey = "filejob:list"

// FileJobsStore tracks server-side file ingestion jobs. Jobs are
// created by uploads elsewhere; this store watches them until they
// reach a terminal status.
type FileJobsStore struct {
	mu   sync.Mutex
	jobs []models.FileJob

	deps     Deps
	policy   *loader.Policy[[]models.FileJob]
	fetch    func(ctx context.Context) ([]models.FileJob, error)
	fetchJob func(ctx context.Context, id string) (models.FileJob, error)

	listTTL time.Duration
}

// NewFileJobsStore creates a FileJobsStore. fetch lists all jobs,
// fetchJob retrieves a single job's current status for polling.
func NewFileJobsStore(deps Deps, listTTL time.Duration,
	fetch func(ctx context.Context) ([]models.FileJob, error),
	fetchJob func(ctx context.Context, id string) (models.FileJob, error),
) *FileJobsStore {
	if listTTL <= 0 {
		listTTL = time.Minute
	}
	return &FileJobsStore{
		deps: deps,
		policy: &loader.Policy[[]models.FileJob]{
			Key:        fileJobListKey,
			EntityType: models.EntityFileJob,
			TTL:        listTTL,
			Cache:      deps.Cache,
			Offline:    deps.Offline,
			Monitor:    deps.Monitor,
			Log:        deps.Log,
		},
		fetch:    fetch,
		fetchJob: fetchJob,
		listTTL:  listTTL,
	}
}

// Name identifies the store to the sync coordinator.
func (s *FileJobsStore) Name() string { return "file_jobs" }

// FetchRemote implements loader.Source.
func (s *FileJobsStore) FetchRemote(ctx context.Context) ([]models.FileJob, error) {
	return s.fetch(ctx)
}

// Apply implements loader.Source.
func (s *FileJobsStore) Apply(data []models.FileJob, persist bool) {
	s.mu.Lock()
	s.jobs = data
	s.mu.Unlock()
}

// Load populates the store cache-first.
func (s *FileJobsStore) Load(ctx context.Context) error {
	return s.policy.Load(ctx, s)
}

// Refresh force-fetches, used by the sync coordinator.
func (s *FileJobsStore) Refresh(ctx context.Context) error {
	return s.policy.Refresh(ctx, s)
}

// Jobs returns a snapshot of the collection.
func (s *FileJobsStore) Jobs() []models.FileJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FileJob(nil), s.jobs...)
}

// Job returns one job by id.
func (s *FileJobsStore) Job(id string) (models.FileJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			return j, true
		}
	}
	return models.FileJob{}, false
}

// Poll watches a job until it reaches a terminal status or the context
// is cancelled, whichever comes first. Each observed status is folded
// into the collection. Returns the final job state on success.
func (s *FileJobsStore) Poll(ctx context.Context, id string, interval time.Duration) (models.FileJob, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.fetchJob(ctx, id)
		if err != nil {
			return models.FileJob{}, err
		}
		s.applyJob(job)

		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return models.FileJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *FileJobsStore) applyJob(job models.FileJob) {
	s.mu.Lock()
	s.jobs = upsert(s.jobs, job)
	s.mu.Unlock()
	s.persistList()
}

func (s *FileJobsStore) persistList() {
	snapshot := s.Jobs()
	if err := cache.Set(s.deps.Cache, fileJobListKey, snapshot, s.listTTL); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to cache file job list")
	}
	if err := s.deps.Offline.Set(fileJobListKey, models.EntityFileJob, mustJSON(snapshot), nil); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to persist file job list snapshot")
	}
}

// RegisterRealtime subscribes the store to file job change events.
func (s *FileJobsStore) RegisterRealtime(d *realtime.Dispatcher) {
	d.Register("file_jobs", s.handleRealtime)
}

func (s *FileJobsStore) handleRealtime(p models.RealtimePayload) {
	switch p.EventType {
	case models.RealtimeInsert, models.RealtimeUpdate:
		job, err := realtime.Decode[models.FileJob](p.Record)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable file job event")
			}
			return
		}
		s.applyJob(job)

	case models.RealtimeDelete:
		job, err := realtime.Decode[models.FileJob](p.OldRecord)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable file job delete")
			}
			return
		}
		s.mu.Lock()
		s.jobs, _ = removeByID(s.jobs, job.ID)
		s.mu.Unlock()
		s.persistList()
	}
}
