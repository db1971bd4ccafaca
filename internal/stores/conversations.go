package stores

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/loader"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/realtime"
)

const conversationListKey = "conversation:list"

// ConversationsStore manages the chat conversation headers. The
// collection is read-mostly on this side; mutations originate on the
// server and arrive through refreshes and realtime events, so there is
// no write-queue path here.
type ConversationsStore struct {
	mu            sync.Mutex
	conversations []models.Conversation

	deps   Deps
	policy *loader.Policy[[]models.Conversation]
	fetch  func(ctx context.Context) ([]models.Conversation, error)

	listTTL time.Duration
}

// NewConversationsStore creates a ConversationsStore.
func NewConversationsStore(deps Deps, listTTL time.Duration, fetch func(ctx context.Context) ([]models.Conversation, error)) *ConversationsStore {
	if listTTL <= 0 {
		listTTL = 5 * time.Minute
	}
	return &ConversationsStore{
		deps: deps,
		policy: &loader.Policy[[]models.Conversation]{
			Key:        conversationListKey,
			EntityType: models.EntityConversation,
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
func (s *ConversationsStore) Name() string { return "conversations" }

// FetchRemote implements loader.Source.
func (s *ConversationsStore) FetchRemote(ctx context.Context) ([]models.Conversation, error) {
	return s.fetch(ctx)
}

// Apply implements loader.Source. Conversations are kept newest-first
// by last message.
func (s *ConversationsStore) Apply(data []models.Conversation, persist bool) {
	sortConversations(data)
	s.mu.Lock()
	s.conversations = data
	s.mu.Unlock()
}

// Load populates the store cache-first.
func (s *ConversationsStore) Load(ctx context.Context) error {
	return s.policy.Load(ctx, s)
}

// Refresh force-fetches, used by the sync coordinator.
func (s *ConversationsStore) Refresh(ctx context.Context) error {
	return s.policy.Refresh(ctx, s)
}

// Conversations returns a snapshot of the collection.
func (s *ConversationsStore) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Conversation(nil), s.conversations...)
}

func (s *ConversationsStore) persistList() {
	snapshot := s.Conversations()
	if err := cache.Set(s.deps.Cache, conversationListKey, snapshot, s.listTTL); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to cache conversation list")
	}
	if err := s.deps.Offline.Set(conversationListKey, models.EntityConversation, mustJSON(snapshot), nil); err != nil && s.deps.Log != nil {
		s.deps.Log.WithError(err).Warn("failed to persist conversation list snapshot")
	}
}

// RegisterRealtime subscribes the store to conversation change events.
func (s *ConversationsStore) RegisterRealtime(d *realtime.Dispatcher) {
	d.Register("conversations", s.handleRealtime)
}

func (s *ConversationsStore) handleRealtime(p models.RealtimePayload) {
	switch p.EventType {
	case models.RealtimeInsert, models.RealtimeUpdate:
		conv, err := realtime.Decode[models.Conversation](p.Record)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable conversation event")
			}
			return
		}
		s.mu.Lock()
		s.conversations = upsert(s.conversations, conv)
		sortConversations(s.conversations)
		s.mu.Unlock()
		s.persistList()

	case models.RealtimeDelete:
		conv, err := realtime.Decode[models.Conversation](p.OldRecord)
		if err != nil {
			if s.deps.Log != nil {
				s.deps.Log.WithError(err).Warn("dropping undecodable conversation delete")
			}
			return
		}
		s.mu.Lock()
		s.conversations, _ = removeByID(s.conversations, conv.ID)
		s.mu.Unlock()
		s.persistList()
	}
}

func sortConversations(list []models.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastMessageAt > list[j].LastMessageAt
	})
}
