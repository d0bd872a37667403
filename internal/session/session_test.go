package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQRRecordFreshBoundary(t *testing.T) {
	window := 45 * time.Second
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := QRRecord{Code: "abc", IssuedAt: issued}

	tests := []struct {
		name  string
		age   time.Duration
		fresh bool
	}{
		{"just issued", 0, true},
		{"ten seconds", 10 * time.Second, true},
		{"exactly the window", 45 * time.Second, true},
		{"one second past", 46 * time.Second, false},
		{"long stale", 10 * time.Minute, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.fresh, rec.Fresh(issued.Add(tc.age), window))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "awaiting_scan", StateAwaitingScan.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "destroyed", StateDestroyed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestDisconnectReasonString(t *testing.T) {
	assert.Equal(t, "network_error", ReasonNetworkError.String())
	assert.Equal(t, "stream_replaced", ReasonStreamReplaced.String())
	assert.Equal(t, "logged_out", ReasonLoggedOut.String())
	assert.Equal(t, "client_outdated", ReasonClientOutdated.String())
	assert.Equal(t, "storage_locked", ReasonStorageLocked.String())
	assert.Equal(t, "unknown", ReasonUnknown.String())
}

func TestSessionSnapshot(t *testing.T) {
	s := newSession("acme", &fakeTransport{})
	s.setState(StateReady)
	s.bumpAttempts()

	snap := s.Snapshot()
	assert.Equal(t, "acme", snap.TenantKey)
	assert.Equal(t, "ready", snap.State)
	assert.True(t, snap.Ready)
	assert.Equal(t, 1, snap.Attempts)
	assert.False(t, snap.ReadyAt.IsZero())
	assert.Empty(t, snap.LastError)

	s.setLastError(ErrReconnectExhausted)
	s.setState(StateDestroyed)
	snap = s.Snapshot()
	assert.False(t, snap.Ready)
	assert.Equal(t, ErrReconnectExhausted.Error(), snap.LastError)
}
