package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically kicks the coordinator so queued writes drain
// and stores refresh even without a connectivity flip.
type Scheduler struct {
	coordinator *Coordinator
	interval    time.Duration
	log         *logrus.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler driving coordinator every interval.
func NewScheduler(coordinator *Coordinator, interval time.Duration, log *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		coordinator: coordinator,
		interval:    interval,
		log:         log,
	}
}

// Start launches the periodic loop. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	if s.log != nil {
		s.log.WithField("interval", s.interval).Info("sync scheduler started")
	}
}

// Stop terminates the loop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	if s.log != nil {
		s.log.Info("sync scheduler stopped")
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.coordinator.RefreshAll(ctx); err != nil && s.log != nil {
				s.log.WithError(err).Warn("scheduled sync failed")
			}
		}
	}
}
