package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnectReasonPurgeClasses(t *testing.T) {
	assert.True(t, ReasonLoggedOut.RequiresPurge())
	assert.True(t, ReasonStorageLocked.RequiresPurge())
	assert.False(t, ReasonNetworkError.RequiresPurge())
	assert.False(t, ReasonStreamReplaced.RequiresPurge())
	assert.False(t, ReasonClientOutdated.RequiresPurge())
	assert.False(t, ReasonUnknown.RequiresPurge())
}

func TestLoggedOutPurgesBeforeRetry(t *testing.T) {
	ctrl, factory, _ := newTestController(testConfig())

	sess, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)

	old := factory.transport("acme")
	old.ev.emitReady()
	old.ev.emitDisconnected(ReasonLoggedOut)

	assert.Equal(t, []string{"acme"}, factory.purgedKeys())
	assert.True(t, old.closed)
	assert.Equal(t, 1, sess.Attempts(), "purge-class drops count against the retry budget")

	got, ok := ctrl.Registry().Get("acme")
	require.True(t, ok, "session must stay registered while retrying")
	assert.Same(t, sess, got)

	// the retry opens a fresh transport against the wiped partition
	require.Eventually(t, func() bool {
		factory.mu.Lock()
		defer factory.mu.Unlock()
		return factory.openCalls >= 2
	}, time.Second, 5*time.Millisecond)

	fresh := factory.transport("acme")
	require.NotSame(t, old, fresh)
	require.Eventually(t, func() bool { return fresh.initCount() >= 1 },
		time.Second, 5*time.Millisecond)

	fresh.ev.emitQR("pair-again")
	assert.Equal(t, StateAwaitingScan, sess.State())
}

func TestDisconnectClearsStaleQR(t *testing.T) {
	ctrl, factory, _ := newTestController(testConfig())

	sess, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)

	tr := factory.transport("acme")
	tr.ev.emitQR("pair-me")
	require.NotNil(t, sess.QR())

	tr.ev.emitDisconnected(ReasonNetworkError)
	assert.Nil(t, sess.QR(), "a disconnected session must not hold a pairing code")
	_, err = ctrl.CurrentQR("acme")
	assert.True(t, errors.Is(err, ErrNoQR))
}

func TestNetworkErrorDoesNotPurge(t *testing.T) {
	ctrl, factory, _ := newTestController(testConfig())

	_, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)

	tr := factory.transport("acme")
	tr.ev.emitReady()
	tr.ev.emitDisconnected(ReasonNetworkError)

	assert.Empty(t, factory.purgedKeys())
	_, ok := ctrl.Registry().Get("acme")
	assert.True(t, ok, "session must survive a transient disconnect")

	// the scheduled retry re-initializes the same transport
	require.Eventually(t, func() bool {
		return tr.initCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectSucceedsAndResetsAttempts(t *testing.T) {
	ctrl, factory, _ := newTestController(testConfig())

	sess, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)

	tr := factory.transport("acme")
	tr.ev.emitReady()
	tr.ev.emitDisconnected(ReasonNetworkError)
	assert.Equal(t, 1, sess.Attempts())

	require.Eventually(t, func() bool {
		return tr.initCount() >= 2
	}, time.Second, 5*time.Millisecond)

	tr.ev.emitReady()
	assert.Equal(t, StateReady, sess.State())
	assert.Equal(t, 0, sess.Attempts())
}

func TestReconnectBudgetExhaustionRemovesSession(t *testing.T) {
	ctrl, factory, _ := newTestController(testConfig())

	sess, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)

	// every retry fails from here on
	tr := factory.transport("acme")
	tr.mu.Lock()
	tr.initErr = errors.New("network unreachable")
	tr.mu.Unlock()

	tr.ev.emitReady()
	tr.ev.emitDisconnected(ReasonNetworkError)

	require.Eventually(t, func() bool {
		_, ok := ctrl.Registry().Get("acme")
		return !ok
	}, 2*time.Second, 5*time.Millisecond, "session must be dropped after the retry budget")

	assert.Equal(t, StateDestroyed, sess.State())
	assert.Equal(t, testConfig().ReconnectMax, sess.Attempts())
	assert.True(t, errors.Is(sess.LastError(), ErrReconnectExhausted))
	assert.Empty(t, factory.purgedKeys(), "budget exhaustion must not wipe credentials")
	assert.True(t, tr.closed)
}

func TestDisconnectAfterDestroyIsIgnored(t *testing.T) {
	ctrl, factory, _ := newTestController(testConfig())

	_, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)
	require.NoError(t, ctrl.Destroy(context.Background(), "acme"))

	tr := factory.transport("acme")
	tr.ev.emitDisconnected(ReasonNetworkError)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.initCount(), "no reconnect may be scheduled after destroy")
	assert.Equal(t, []string{"acme"}, factory.purgedKeys())
}

func TestStaleDisconnectFromReplacedSessionIgnored(t *testing.T) {
	ctrl, factory, _ := newTestController(testConfig())

	_, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)
	oldTr := factory.transport("acme")

	require.NoError(t, ctrl.Destroy(context.Background(), "acme"))
	fresh, err := ctrl.Acquire(context.Background(), "acme")
	require.NoError(t, err)

	// event from the torn-down transport must not touch the new session
	oldTr.ev.emitDisconnected(ReasonLoggedOut)

	got, ok := ctrl.Registry().Get("acme")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}
