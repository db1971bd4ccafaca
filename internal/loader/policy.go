package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/connectivity"
	apperrors "github.com/ohartl/knowbase/internal/errors"
	"github.com/ohartl/knowbase/internal/models"
	"github.com/ohartl/knowbase/internal/offline"
)

// Source is the capability a feature store exposes to the policy.
// Apply mutates the store's in-memory state; persist reports whether
// the data was also written back to cache and offline storage (false
// for values that were already on disk).
type Source[T any] interface {
	FetchRemote(ctx context.Context) (T, error)
	Apply(data T, persist bool)
}

// Policy is the collection-level load policy composed into each
// feature store: cache tier first, then network, then the offline
// snapshot, with a background refresh after any cache hit.
type Policy[T any] struct {
	Key        string
	EntityType models.EntityType
	TTL        time.Duration

	Cache   cache.Client
	Offline *offline.Store
	Monitor *connectivity.Monitor
	Log     *logrus.Logger
}

// Load populates the store via src. Exactly one Apply happens before
// Load returns; a cache hit additionally triggers a background refresh
// whose Apply(data, true) follows later.
func (p *Policy[T]) Load(ctx context.Context, src Source[T]) error {
	if cached, ok := cache.Get[T](p.Cache, p.Key); ok {
		src.Apply(cached, false)
		go p.backgroundRefresh(context.WithoutCancel(ctx), src)
		return nil
	}

	// With no network there is no point issuing a doomed request; go
	// straight to the offline snapshot.
	if p.Monitor != nil && p.Monitor.IsOffline() {
		return p.loadOffline(src)
	}

	fresh, err := src.FetchRemote(ctx)
	if err != nil {
		if p.Log != nil {
			p.Log.WithField("key", p.Key).WithError(err).Warn("remote fetch failed, falling back to offline store")
		}
		return p.loadOffline(src)
	}

	p.persist(fresh)
	src.Apply(fresh, true)
	return nil
}

// Refresh is the force path: always fetch, then persist and apply.
// Used by the sync coordinator after connectivity returns.
func (p *Policy[T]) Refresh(ctx context.Context, src Source[T]) error {
	fresh, err := src.FetchRemote(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", p.Key, err)
	}

	p.persist(fresh)
	src.Apply(fresh, true)
	return nil
}

// backgroundRefresh runs after a cache hit has already satisfied the
// caller. Failure leaves visible state untouched but records the fetch
// error against the offline snapshot, so consumers can tell the data
// may lag the server.
func (p *Policy[T]) backgroundRefresh(ctx context.Context, src Source[T]) {
	fresh, err := src.FetchRemote(ctx)
	if err != nil {
		if p.Offline != nil {
			if markErr := p.Offline.MarkStale(p.Key, err.Error()); markErr != nil && p.Log != nil {
				p.Log.WithField("key", p.Key).WithError(markErr).Warn("failed to record staleness")
			}
		}
		if p.Log != nil {
			p.Log.WithField("key", p.Key).WithError(err).Debug("background refresh failed")
		}
		return
	}

	p.persist(fresh)
	src.Apply(fresh, true)
}

// loadOffline serves the durable snapshot, the last tier before
// giving up.
func (p *Policy[T]) loadOffline(src Source[T]) error {
	snapshot, ok := offline.Get[T](p.Offline, p.Key)
	if !ok {
		return apperrors.New(apperrors.ErrUnavailable,
			fmt.Sprintf("no cached, offline, or remote data for %s", p.Key))
	}

	src.Apply(snapshot, false)
	return nil
}

// persist writes a freshly fetched value to both durable tiers,
// stamping the offline snapshot as just-synced.
func (p *Policy[T]) persist(data T) {
	if err := cache.Set(p.Cache, p.Key, data, p.TTL); err != nil && p.Log != nil {
		p.Log.WithField("key", p.Key).WithError(err).Warn("failed to cache value")
	}

	now := time.Now()
	if err := offline.Set(p.Offline, p.Key, p.EntityType, data, &now); err != nil && p.Log != nil {
		p.Log.WithField("key", p.Key).WithError(err).Warn("failed to persist offline snapshot")
	}
}
