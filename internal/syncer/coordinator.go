// Package syncer couples connectivity regain to write replay and read
// refresh. The coordinator is the only place that ties those together;
// it triggers queue draining but never mutates queue records itself.
package syncer

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ohartl/knowbase/internal/connectivity"
	"github.com/ohartl/knowbase/internal/writequeue"
)

// Refresher is the slice of a feature store the coordinator needs.
type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// Coordinator drains the write queue and refreshes all registered
// stores when sync is allowed.
type Coordinator struct {
	queue   *writequeue.Queue
	monitor *connectivity.Monitor
	allowed func() bool
	log     *logrus.Logger

	mu     sync.Mutex
	stores []Refresher

	unsubscribe func()
}

// New creates a Coordinator. allowed gates syncing; when nil, sync is
// allowed whenever the monitor reports the network available.
func New(queue *writequeue.Queue, monitor *connectivity.Monitor, allowed func() bool, log *logrus.Logger) *Coordinator {
	c := &Coordinator{
		queue:   queue,
		monitor: monitor,
		allowed: allowed,
		log:     log,
	}
	if c.allowed == nil {
		c.allowed = func() bool {
			return monitor == nil || monitor.IsNetworkAvailable()
		}
	}
	return c
}

// Register adds a store to the refresh set.
func (c *Coordinator) Register(store Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores = append(c.stores, store)
}

// RefreshAll drains the write queue, then refreshes every registered
// store concurrently. Stores do not depend on each other's refresh, so
// order is irrelevant and one store's failure does not stop the rest.
// Does nothing when sync is not allowed.
func (c *Coordinator) RefreshAll(ctx context.Context) error {
	if !c.allowed() {
		if c.log != nil {
			c.log.Debug("sync not allowed, skipping refresh")
		}
		return nil
	}

	// Writes flush before reads so refreshed data includes our own
	// pending mutations.
	if err := c.queue.ProcessQueue(ctx); err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("queue drain failed, refreshing stores anyway")
		}
	}

	c.mu.Lock()
	stores := append([]Refresher(nil), c.stores...)
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, store := range stores {
		wg.Add(1)
		go func(s Refresher) {
			defer wg.Done()
			if err := s.Refresh(ctx); err != nil && c.log != nil {
				c.log.WithField("store", s.Name()).WithError(err).Warn("store refresh failed")
			}
		}(store)
	}
	wg.Wait()
	return nil
}

// Start subscribes to connectivity flips: an offline-to-online
// transition triggers a full refresh. Stop undoes the subscription.
func (c *Coordinator) Start(ctx context.Context) {
	if c.monitor == nil {
		return
	}

	wasOffline := c.monitor.IsOffline()
	var mu sync.Mutex

	c.unsubscribe = c.monitor.OnChange(func(state connectivity.State) {
		mu.Lock()
		regained := wasOffline && !state.Offline()
		wasOffline = state.Offline()
		mu.Unlock()

		if !regained {
			return
		}
		if c.log != nil {
			c.log.Info("connectivity regained, syncing")
		}
		go func() {
			_ = c.RefreshAll(ctx)
		}()
	})
}

// Stop unsubscribes from connectivity flips.
func (c *Coordinator) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}
