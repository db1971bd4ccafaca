package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ohartl/knowbase/internal/connectivity"
	"github.com/ohartl/knowbase/internal/models"
)

// FeedConfig tunes the websocket feed.
type FeedConfig struct {
	URL              string
	ReconnectBackoff time.Duration
	MaxBackoff       time.Duration
}

// Feed is a websocket client that reads realtime payloads and pushes
// each frame through the dispatcher. Connection outcomes feed the
// connectivity monitor like any other request outcome.
type Feed struct {
	cfg        FeedConfig
	dispatcher *Dispatcher
	monitor    *connectivity.Monitor
	log        *logrus.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewFeed creates a Feed. Start must be called to begin consuming.
func NewFeed(cfg FeedConfig, dispatcher *Dispatcher, monitor *connectivity.Monitor, log *logrus.Logger) *Feed {
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.ReconnectBackoff {
		cfg.MaxBackoff = time.Minute
	}
	return &Feed{
		cfg:        cfg,
		dispatcher: dispatcher,
		monitor:    monitor,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the consume loop. It reconnects with doubling backoff
// until Stop is called or the context is cancelled.
func (f *Feed) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop shuts the feed down and waits for the consume loop to exit.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.wg.Wait()
}

func (f *Feed) run(ctx context.Context) {
	defer f.wg.Done()

	backoff := f.cfg.ReconnectBackoff

	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, nil)
		if err != nil {
			if f.monitor != nil {
				f.monitor.ReportFailure(connectivity.FailureHostUnreachable)
			}
			if f.log != nil {
				f.log.WithField("url", f.cfg.URL).WithError(err).Warn("realtime connect failed")
			}

			select {
			case <-time.After(backoff):
			case <-f.stopCh:
				return
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > f.cfg.MaxBackoff {
				backoff = f.cfg.MaxBackoff
			}
			continue
		}

		if f.monitor != nil {
			f.monitor.ReportSuccess()
		}
		backoff = f.cfg.ReconnectBackoff

		f.consume(conn)
	}
}

// consume reads frames until the connection drops. Frames are applied
// in arrival order; a frame that fails to decode is skipped, not fatal.
func (f *Feed) consume(conn *websocket.Conn) {
	defer conn.Close()

	// Unblock ReadMessage on Stop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-f.stopCh:
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.stopCh:
			default:
				if f.log != nil {
					f.log.WithError(err).Debug("realtime connection dropped")
				}
			}
			return
		}

		var payload models.RealtimePayload
		if err := json.Unmarshal(frame, &payload); err != nil {
			if f.log != nil {
				f.log.WithError(err).Warn("undecodable realtime frame")
			}
			continue
		}

		f.dispatcher.Dispatch(payload)
	}
}
