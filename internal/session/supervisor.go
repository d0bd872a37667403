package session

import (
	"context"
	"time"

	"github.com/talkincode/wabothub/pkg/metrics"
	"go.uber.org/zap"
)

// supervisor reacts to transport disconnects. Credential-invalidating
// drops wipe the partition first so the retry starts a clean pairing;
// every drop retries with a linear backoff until the attempt budget
// runs out.
type supervisor struct {
	c *Controller
}

func (sv *supervisor) handleDisconnect(sess *Session, reason DisconnectReason) {
	if sess.State() == StateDestroyed {
		return
	}
	if cur, ok := sv.c.registry.Get(sess.TenantKey); !ok || cur != sess {
		// stale event from a replaced transport
		return
	}

	// a disconnected session can never present a pairing code
	sess.clearQR()
	sess.setState(StateDisconnected)

	fresh := reason.RequiresPurge()
	if fresh {
		// credentials are unusable, wipe them before the retry so the
		// next attempt starts over from pairing
		zap.L().Warn("session credentials invalidated",
			zap.String("tenant", sess.TenantKey),
			zap.String("reason", reason.String()))
		sess.Transport().Close()
		if err := sv.c.factory.Purge(sess.TenantKey); err != nil {
			zap.L().Warn("credential purge failed",
				zap.String("tenant", sess.TenantKey), zap.Error(err))
		}
		metrics.Counter(metrics.CredentialPurge, metrics.TenantLabel(sess.TenantKey))
	}

	attempt := sess.bumpAttempts()
	sv.c.publishState(sess, reason, attempt)

	if attempt >= sv.c.cfg.ReconnectMax {
		zap.L().Warn("reconnect budget exhausted, dropping session",
			zap.String("tenant", sess.TenantKey),
			zap.Int("attempts", attempt))
		sess.setLastError(ErrReconnectExhausted)
		sess.setState(StateDestroyed)
		sess.Transport().Close()
		sv.c.registry.Remove(sess.TenantKey)
		metrics.Counter(metrics.SessionDropped, metrics.TenantLabel(sess.TenantKey))
		sv.c.publishState(sess, reason, attempt)
		return
	}

	delay := time.Duration(attempt) * sv.c.cfg.ReconnectDelay
	zap.L().Info("scheduling reconnect",
		zap.String("tenant", sess.TenantKey),
		zap.String("reason", reason.String()),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	time.AfterFunc(delay, func() { sv.retry(sess, fresh) })
}

// retry re-establishes the session's transport. When the disconnect
// purged credentials the old transport is dead and a fresh one is
// opened against the wiped partition.
func (sv *supervisor) retry(sess *Session, fresh bool) {
	if cur, ok := sv.c.registry.Get(sess.TenantKey); !ok || cur != sess {
		return
	}
	if sess.State() == StateDestroyed {
		return
	}

	sess.setState(StateInitializing)
	metrics.Counter(metrics.ReconnectAttempt, metrics.TenantLabel(sess.TenantKey))
	sv.c.publishState(sess, ReasonUnknown, sess.Attempts())

	ctx := context.Background()
	if sv.c.cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sv.c.cfg.InitTimeout)
		defer cancel()
	}

	if fresh {
		t, err := sv.c.factory.Open(ctx, sess.TenantKey, sv.c.eventsFor(sess))
		if err != nil {
			zap.L().Warn("transport reopen failed",
				zap.String("tenant", sess.TenantKey), zap.Error(err))
			sv.handleDisconnect(sess, ReasonNetworkError)
			return
		}
		sess.setTransport(t)
	}

	if err := sess.Transport().Initialize(ctx); err != nil {
		zap.L().Warn("reconnect attempt failed",
			zap.String("tenant", sess.TenantKey),
			zap.Int("attempt", sess.Attempts()),
			zap.Error(err))
		sv.handleDisconnect(sess, ReasonNetworkError)
	}
	// on success the transport's connected event drives the session
	// back to ready, which resets the attempt counter
}
