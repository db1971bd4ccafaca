// Package loader implements the cache-first load policies shared by
// every feature store: serve a cached value instantly and refresh it in
// the background, or fetch synchronously on a miss, falling back to the
// durable offline store when the network cannot help.
package loader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ohartl/knowbase/internal/cache"
)

// Loader loads a single keyed value with the cache-then-refresh
// policy. Exactly one value is returned per Load call; the background
// refresh is fire-and-forget, observable only through OnRefresh and
// the updated cache state.
type Loader[T any] struct {
	Key   string
	TTL   time.Duration
	Cache cache.Client

	// Fetch retrieves the value from the source of truth. Injected;
	// any transport works.
	Fetch func(ctx context.Context) (T, error)

	// OnRefresh, if set, is invoked with the fresh value after a
	// background refresh repopulates the cache.
	OnRefresh func(T)

	Log *logrus.Logger
}

// Load returns the value for Key. With a warm cache it returns the
// cached value immediately (fromCache true) and refreshes in the
// background. force, or a cold cache, fetches synchronously; a fetch
// failure propagates to the caller.
func (l *Loader[T]) Load(ctx context.Context, force bool) (value T, fromCache bool, err error) {
	if !force {
		if cached, ok := cache.Get[T](l.Cache, l.Key); ok {
			// The refresh outlives this call on purpose; detach it
			// from the caller's cancellation.
			go l.refresh(context.WithoutCancel(ctx))
			return cached, true, nil
		}
	}

	fresh, err := l.Fetch(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}

	if cacheErr := cache.Set(l.Cache, l.Key, fresh, l.TTL); cacheErr != nil && l.Log != nil {
		l.Log.WithField("key", l.Key).WithError(cacheErr).Warn("failed to cache fetched value")
	}
	return fresh, false, nil
}

// refresh refetches and repopulates the cache. Failure is silent: the
// caller already has a value.
func (l *Loader[T]) refresh(ctx context.Context) {
	fresh, err := l.Fetch(ctx)
	if err != nil {
		if l.Log != nil {
			l.Log.WithField("key", l.Key).WithError(err).Debug("background refresh failed")
		}
		return
	}

	if err := cache.Set(l.Cache, l.Key, fresh, l.TTL); err != nil {
		if l.Log != nil {
			l.Log.WithField("key", l.Key).WithError(err).Warn("failed to cache refreshed value")
		}
		return
	}

	if l.OnRefresh != nil {
		l.OnRefresh(fresh)
	}
}
