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

const taskListKey = "task:list"

// TasksStore manages the task collection.
type TasksStore struct {
	mu    sync.Mutex
	tasks []models.Task

	deps   Deps
	policy *loader.Policy[[]models.Task]
	fetch  func(ctx context.Context) ([]models.Task, error)

	listTTL time.Duration
}

// NewTasksStore creates a TasksStore.
func NewTasksStore(deps Deps, listTTL time.Duration, fetch func(ctx context.Context) ([]models.Task, error)) *TasksStore {
	if listTTL <= 0 {
		listTTL = 5 * time.Minute
	}
	return &TasksStore{
		deps: deps,
		policy: &loader.Policy[[]models.Task]{
			Key:        taskListKey,
			EntityType: models.EntityTask,
			TTL:        listTTL,
			Cache:      deps.Cache,
			Offline:    deps.Offline,
			Monitor:    deps.Monitor,
			Log:        deps.Log,
		},
		fetch:   fetch,
		listTTL: listTTL,
	}
}

// Name identifies the store to the sync coordinator.
func (s *TasksStore) Name() string { return "tasks" }

// FetchRemote implements loader.Source.
func (s *TasksStore) FetchRemote(ctx context.Context) ([]models.Task, error) {
	return s.fetch(ctx)
}

// Apply implements loader.Source.
func (s *TasksStore) Apply(data []models.Task, persist bool) {
	s.mu.Lock()
	s.tasks = data
	s.mu.Unlock()
}

// Load populates the store cache-first.
func (s *TasksStore) Load(ctx context.Context) error {
	return s.policy.Load(ctx, s)
}

// Refresh force-fetches, used by the sync coordinator.
func (s *TasksStore) Refresh(ctx context.Context) error {
	return s.policy.Refresh(ctx, s)
}

// Tasks returns a snapshot of the collection.
func (s *TasksStore) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Task(nil), s.tasks...)
}

// Create adds a task locally and queues the remote create.
func (s *TasksStore) Create(task models.Task) error {
	return s.mutate(task, models.OperationCreate)
}

// Update replaces a task locally and queues the remote update.
func (s *TasksStore) Update(task models.Task) error {
	return s.mutate(task, models.OperationUpdate)
}

// Toggle flips a task's done state and queues the update.
func (s *TasksStore) Toggle(id string) error {
	s.mu.Lock()
	var task models.Task
	found := false
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			task = s.tasks[i]
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return nil
	}
	task.Done = !task.Done
	return s.Update(task)
}

func (s *TasksStore) mutate(task models.Task, op models.OperationType) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if _, err := s.deps.Queue.Enqueue(op, models.EntityTask, task.ID, payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.tasks = upsert(s.tasks, task)
	s.mu.Unlock()

	s.persistList()
	return nil
}

// Delete removes a task locally and queues the remote delete.
func (s *TasksStore) Delete(id string) error {
	payload, _ := json.Marshal(map[string]string{"id": id})
	if _, err := s.deps.Queue.Enqueue(models.OperationDelete, models.EntityTask, id, payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.tasks, _ = removeByID(s.tasks, id)
	s.mu.Unlock()

	s.persistList()
	return nil
}

// Tasks have no detail view, so only the list snapshot is persisted.
func (s *TasksStore) persistList() {
	snapshot := s.Tasks()
	if err := cache.Set(s.deps.Cache, taskListKey, snapshot, s.listTTL); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to cache task list")
	}
	if err := s.deps.Offline.Set(taskListKey, models.EntityTask, mustJSON(snapshot), nil); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to persist task list snapshot")
	}
}

// RegisterRealtime subscribes the store to task change events.
func (s *TasksStore) RegisterRealtime(d *realtime.Dispatcher) {
	d.Register("tasks", s.handleRealtime)
}

func (s *TasksStore) handleRealtime(p models.RealtimePayload) {
	switch p.EventType {
	case models.RealtimeInsert, models.RealtimeUpdate:
		task, err := realtime.Decode[models.Task](p.Record)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable task event")
			}
			return
		}
		s.mu.Lock()
		s.tasks = upsert(s.tasks, task)
		s.mu.Unlock()
		s.persistList()

	case models.RealtimeDelete:
		task, err := realtime.Decode[models.Task](p.OldRecord)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable task delete")
			}
			return
		}
		s.mu.Lock()
		s.tasks, _ = removeByID(s.tasks, task.ID)
		s.mu.Unlock()
		s.persistList()
	}
}
