// Package stores implements the feature stores (notes, websites,
// tasks, conversations, file jobs). Each store owns an in-memory
// collection guarded by a single mutex, loads it through the shared
// cache policy, funnels every mutation through the write queue, and
// folds realtime events into the same state the loaders populate.
// Stores touch only their own key namespace, so they share the cache
// and offline store without cross-entity locking.
package stores

import (
	"github.com/sirupsen/logrus"

	"github.com/ohartl/knowbase/internal/cache"
	"github.com/ohartl/knowbase/internal/connectivity"
	"github.com/ohartl/knowbase/internal/offline"
	"github.com/ohartl/knowbase/internal/writequeue"
)

// Deps bundles the shared collaborators injected into every store.
// One instance of each exists per process, wired by the composition
// root; nothing reaches for a global.
type Deps struct {
	Cache   cache.Client
	Offline *offline.Store
	Queue   *writequeue.Queue
	Monitor *connectivity.Monitor
	Log     *logrus.Logger
}

// identifiable is any entity addressable by id.
type identifiable interface {
	EntityID() string
}

// upsert replaces the element with the same id or appends.
func upsert[T identifiable](list []T, item T) []T {
	for i := range list {
		if list[i].EntityID() == item.EntityID() {
			list[i] = item
			return list
		}
	}
	return append(list, item)
}

// removeByID drops the element with the given id, reporting whether it
// was present.
func removeByID[T identifiable](list []T, id string) ([]T, bool) {
	for i := range list {
		if list[i].EntityID() == id {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
