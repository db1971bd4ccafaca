package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleFailureDoesNotFlip(t *testing.T) {
	m := NewMonitor(2, nil)

	m.ReportFailure(FailureHostUnreachable)

	assert.True(t, m.IsServerReachable(), "one failure must not flip server reachability")
	assert.True(t, m.IsNetworkAvailable())
	assert.False(t, m.IsOffline())
}

func TestServerHysteresis(t *testing.T) {
	m := NewMonitor(2, nil)

	m.ReportFailure(FailureHostUnreachable)
	m.ReportFailure(FailureHostUnreachable)

	assert.False(t, m.IsServerReachable(), "two consecutive failures flip server reachability")
	// Host-unreachable says nothing about the network itself.
	assert.True(t, m.IsNetworkAvailable())
	assert.False(t, m.IsOffline(), "unreachable server with a live network is degraded, not offline")

	// Recovery also needs two consecutive successes.
	m.ReportSuccess()
	assert.False(t, m.IsServerReachable())
	m.ReportSuccess()
	assert.True(t, m.IsServerReachable())
}

func TestNetworkHysteresisAndOffline(t *testing.T) {
	m := NewMonitor(2, nil)

	m.ReportFailure(FailureNetworkDown)
	assert.False(t, m.IsOffline())

	m.ReportFailure(FailureNetworkDown)
	assert.True(t, m.IsOffline())
	assert.False(t, m.IsNetworkAvailable())

	m.ReportSuccess()
	m.ReportSuccess()
	assert.False(t, m.IsOffline())
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	m := NewMonitor(2, nil)

	// Fail, succeed, fail: never two consecutive failures.
	m.ReportFailure(FailureNetworkDown)
	m.ReportSuccess()
	m.ReportFailure(FailureNetworkDown)

	assert.True(t, m.IsNetworkAvailable(), "interleaved success must reset the streak")
}

func TestFailureKindsTrackedIndependently(t *testing.T) {
	m := NewMonitor(2, nil)

	// One of each kind: neither dimension reaches its threshold.
	m.ReportFailure(FailureNetworkDown)
	m.ReportFailure(FailureHostUnreachable)

	assert.True(t, m.IsNetworkAvailable())
	assert.True(t, m.IsServerReachable())
}

func TestOnChangeNotifiesOnFlipOnly(t *testing.T) {
	m := NewMonitor(2, nil)

	var states []State
	unsubscribe := m.OnChange(func(s State) {
		states = append(states, s)
	})

	m.ReportFailure(FailureNetworkDown)
	require.Empty(t, states, "no notification before the flip")

	m.ReportFailure(FailureNetworkDown)
	require.Len(t, states, 1)
	assert.True(t, states[0].Offline())

	m.ReportSuccess()
	m.ReportSuccess()
	require.Len(t, states, 2)
	assert.False(t, states[1].Offline())

	unsubscribe()
	m.ReportFailure(FailureNetworkDown)
	m.ReportFailure(FailureNetworkDown)
	assert.Len(t, states, 2, "unsubscribed listener must not fire")
}

func TestListenerMayCallBackIntoMonitor(t *testing.T) {
	m := NewMonitor(1, nil)

	var observed bool
	m.OnChange(func(s State) {
		// Re-entrant read must not deadlock.
		observed = m.IsOffline()
	})

	m.ReportFailure(FailureNetworkDown)
	assert.True(t, observed)
}

func TestConfigurableThreshold(t *testing.T) {
	m := NewMonitor(3, nil)

	m.ReportFailure(FailureNetworkDown)
	m.ReportFailure(FailureNetworkDown)
	assert.True(t, m.IsNetworkAvailable())

	m.ReportFailure(FailureNetworkDown)
	assert.False(t, m.IsNetworkAvailable())
}
