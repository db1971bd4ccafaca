// Package realtime consumes server-pushed change events and folds them
// into local state. Events are applied strictly in arrival order, are
// never persisted, and unknown tables are ignored rather than failing
// the stream.
package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ohartl/knowbase/internal/models"
)

// Decode unmarshals a raw wire record into its typed shape.
func Decode[T any](raw json.RawMessage) (T, error) {
	var value T
	if raw == nil {
		return value, fmt.Errorf("empty record")
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, fmt.Errorf("failed to decode record: %w", err)
	}
	return value, nil
}

// Handler applies one event for a table it registered for.
type Handler func(payload models.RealtimePayload)

// Dispatcher routes payloads to per-table handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	log *logrus.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Register adds a handler for a table. Handlers run in registration
// order, on the dispatching goroutine.
func (d *Dispatcher) Register(table string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[table] = append(d.handlers[table], h)
}

// Dispatch delivers one payload. Payloads for unregistered tables are
// dropped with a debug log.
func (d *Dispatcher) Dispatch(payload models.RealtimePayload) {
	d.mu.RLock()
	handlers := d.handlers[payload.Table]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		if d.log != nil {
			d.log.WithField("table", payload.Table).Debug("no handler for realtime table")
		}
		return
	}

	for _, h := range handlers {
		h(payload)
	}
}
