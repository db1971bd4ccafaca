// Package connectivity derives network and server reachability from
// request outcomes. A single failed request never flips the state:
// a flip requires a run of consecutive matching signals (hysteresis),
// which absorbs transient drops without oscillating.
package connectivity

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// FailureKind classifies a failed request.
type FailureKind int

const (
	// FailureHostUnreachable means the network itself is fine but this
	// server did not answer. Affects only server reachability.
	FailureHostUnreachable FailureKind = iota

	// FailureNetworkDown means the transport reports no connectivity
	// at all.
	FailureNetworkDown
)

// State is a snapshot of the derived connectivity state.
type State struct {
	NetworkAvailable bool
	ServerReachable  bool
}

// Offline reports the stricter offline condition: no network. A
// reachable network with an unreachable server is degraded, not
// offline.
func (s State) Offline() bool {
	return !s.NetworkAvailable
}

// Monitor tracks connectivity signals and publishes state flips to
// registered listeners.
type Monitor struct {
	mu sync.Mutex

	flipThreshold int

	networkAvailable bool
	serverReachable  bool

	netFailStreak int
	netOKStreak   int
	srvFailStreak int
	srvOKStreak   int

	nextListener int
	listeners    map[int]func(State)

	log *logrus.Logger
}

// NewMonitor creates a Monitor that flips state after flipThreshold
// consecutive matching signals. The initial state is optimistic: both
// network and server are assumed up until signals say otherwise.
func NewMonitor(flipThreshold int, log *logrus.Logger) *Monitor {
	if flipThreshold < 1 {
		flipThreshold = 1
	}
	return &Monitor{
		flipThreshold:    flipThreshold,
		networkAvailable: true,
		serverReachable:  true,
		listeners:        make(map[int]func(State)),
		log:              log,
	}
}

// ReportSuccess feeds a successful request outcome. Successes count
// toward recovery of both network and server reachability.
func (m *Monitor) ReportSuccess() {
	m.mu.Lock()

	m.netFailStreak = 0
	m.srvFailStreak = 0

	changed := false

	if !m.networkAvailable {
		m.netOKStreak++
		if m.netOKStreak >= m.flipThreshold {
			m.networkAvailable = true
			m.netOKStreak = 0
			changed = true
		}
	}
	if !m.serverReachable {
		m.srvOKStreak++
		if m.srvOKStreak >= m.flipThreshold {
			m.serverReachable = true
			m.srvOKStreak = 0
			changed = true
		}
	}

	m.finish(changed)
}

// ReportFailure feeds a classified request failure.
func (m *Monitor) ReportFailure(kind FailureKind) {
	m.mu.Lock()

	m.netOKStreak = 0
	m.srvOKStreak = 0

	changed := false

	switch kind {
	case FailureNetworkDown:
		if m.networkAvailable {
			m.netFailStreak++
			if m.netFailStreak >= m.flipThreshold {
				m.networkAvailable = false
				m.netFailStreak = 0
				changed = true
			}
		}
	case FailureHostUnreachable:
		if m.serverReachable {
			m.srvFailStreak++
			if m.srvFailStreak >= m.flipThreshold {
				m.serverReachable = false
				m.srvFailStreak = 0
				changed = true
			}
		}
	}

	m.finish(changed)
}

// finish snapshots state, unlocks, and notifies listeners outside the
// lock so a listener can call back into the monitor.
func (m *Monitor) finish(changed bool) {
	state := State{
		NetworkAvailable: m.networkAvailable,
		ServerReachable:  m.serverReachable,
	}

	var fns []func(State)
	if changed {
		fns = make([]func(State), 0, len(m.listeners))
		for _, fn := range m.listeners {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	if m.log != nil {
		m.log.WithFields(logrus.Fields{
			"network_available": state.NetworkAvailable,
			"server_reachable":  state.ServerReachable,
		}).Info("connectivity state changed")
	}

	for _, fn := range fns {
		fn(state)
	}
}

// IsNetworkAvailable reports transport-level reachability.
func (m *Monitor) IsNetworkAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkAvailable
}

// IsServerReachable reports whether the backend has responded
// successfully recently.
func (m *Monitor) IsServerReachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverReachable
}

// IsOffline reports the sustained no-network condition.
func (m *Monitor) IsOffline() bool {
	return !m.IsNetworkAvailable()
}

// CurrentState returns a snapshot of the derived state.
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		NetworkAvailable: m.networkAvailable,
		ServerReachable:  m.serverReachable,
	}
}

// OnChange registers a listener invoked on every state flip. The
// returned function unregisters it.
func (m *Monitor) OnChange(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}
