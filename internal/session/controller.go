package session

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/talkincode/wabothub/pkg/metrics"
	"go.uber.org/zap"
)

// Config is the lifecycle policy for all tenant sessions.
type Config struct {
	// QRFreshWindow is how long a pairing code stays presentable.
	QRFreshWindow time.Duration
	// AcquireWait is the ceiling a caller waits on a concurrent
	// initialization before assuming it stalled.
	AcquireWait time.Duration
	// InitTimeout bounds one transport initialize attempt.
	InitTimeout time.Duration
	// ReconnectMax is the retry budget after unexpected disconnects.
	ReconnectMax int
	// ReconnectDelay is multiplied by the attempt count per retry.
	ReconnectDelay time.Duration
}

// DefaultConfig mirrors the production policy.
func DefaultConfig() Config {
	return Config{
		QRFreshWindow:  45 * time.Second,
		AcquireWait:    30 * time.Second,
		InitTimeout:    60 * time.Second,
		ReconnectMax:   5,
		ReconnectDelay: 5 * time.Second,
	}
}

// MessageHandler receives inbound messages from live sessions.
type MessageHandler func(tenantKey string, msg InboundMessage)

// Controller owns session creation and teardown. It is the only writer
// of the registry's session map besides its supervisor.
type Controller struct {
	registry   *Registry
	factory    Factory
	hub        Broadcaster
	cfg        Config
	supervisor *supervisor
	onMessage  MessageHandler
}

func NewController(reg *Registry, factory Factory, hub Broadcaster, cfg Config) *Controller {
	if cfg.QRFreshWindow <= 0 {
		cfg.QRFreshWindow = 45 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 5
	}
	c := &Controller{
		registry: reg,
		factory:  factory,
		hub:      hub,
		cfg:      cfg,
	}
	c.supervisor = &supervisor{c: c}
	return c
}

// OnMessage installs the inbound message handler. Must be called before
// the first Acquire.
func (c *Controller) OnMessage(h MessageHandler) {
	c.onMessage = h
}

func (c *Controller) Registry() *Registry {
	return c.registry
}

// Acquire returns the tenant's live session, creating one when none
// exists. When another caller is mid-initialization it waits for that
// attempt to settle, up to the configured ceiling, then re-checks. Two
// concurrent acquires therefore never produce two sessions for the
// same tenant.
func (c *Controller) Acquire(ctx context.Context, tenantKey string) (*Session, error) {
	deadline := time.Now().Add(c.cfg.AcquireWait)
	for {
		existing, wait, claimed := c.registry.begin(tenantKey)
		if existing != nil {
			return existing, nil
		}
		if claimed {
			return c.create(ctx, tenantKey)
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			if s, ok := c.registry.Get(tenantKey); ok {
				return s, nil
			}
			zap.L().Warn("session initialization stalled past wait ceiling, creating anyway",
				zap.String("tenant", tenantKey))
			return c.create(ctx, tenantKey)
		}

		timer := time.NewTimer(remain)
		select {
		case <-wait:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Controller) create(ctx context.Context, tenantKey string) (*Session, error) {
	defer c.registry.settle(tenantKey)

	// The callback table binds the session instance, not the tenant key,
	// so a torn-down transport's late events can never be attributed to
	// a replacement session. The pointer is assigned before Initialize,
	// which is the earliest point events can fire.
	var sess *Session
	ev := Events{
		OnQR:            func(code string) { c.handleQR(sess, code) },
		OnAuthenticated: func() { c.handleAuthenticated(sess) },
		OnReady:         func() { c.handleReady(sess) },
		OnAuthFailure:   func(cause error) { c.handleAuthFailure(sess, cause) },
		OnDisconnected:  func(reason DisconnectReason) { c.supervisor.handleDisconnect(sess, reason) },
		OnMessage:       func(msg InboundMessage) { c.handleMessage(tenantKey, msg) },
	}

	t, err := c.factory.Open(ctx, tenantKey, ev)
	if err != nil {
		return nil, errors.Wrapf(ErrInitFailed, "open transport for tenant %s: %v", tenantKey, err)
	}

	sess = newSession(tenantKey, t)
	// Registered before Initialize so events firing mid-handshake find
	// their session.
	c.registry.Put(tenantKey, sess)
	c.publishState(sess, ReasonUnknown, 0)

	ictx := ctx
	if c.cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, c.cfg.InitTimeout)
		defer cancel()
	}
	if err := t.Initialize(ictx); err != nil {
		c.registry.Remove(tenantKey)
		sess.setState(StateDestroyed)
		sess.setLastError(err)
		t.Close()
		c.publishState(sess, ReasonUnknown, 0)
		zap.L().Error("session initialization failed",
			zap.String("tenant", tenantKey), zap.Error(err))
		return nil, errors.Wrapf(ErrInitFailed, "initialize tenant %s: %v", tenantKey, err)
	}

	zap.L().Info("session initialized",
		zap.String("tenant", tenantKey),
		zap.Bool("loggedIn", t.LoggedIn()))
	return sess, nil
}

// Destroy logs the tenant out, wipes stored credentials and removes the
// session. The explicit destroyed state keeps the logout's own
// disconnect event from triggering the supervisor.
func (c *Controller) Destroy(ctx context.Context, tenantKey string) error {
	sess, ok := c.registry.Get(tenantKey)
	if !ok {
		return ErrNoSession
	}
	sess.setState(StateDestroyed)
	t := sess.Transport()
	if err := t.Logout(ctx); err != nil {
		zap.L().Warn("session logout failed",
			zap.String("tenant", tenantKey), zap.Error(err))
	}
	t.Close()
	c.registry.Remove(tenantKey)
	if err := c.factory.Purge(tenantKey); err != nil {
		zap.L().Warn("credential purge failed",
			zap.String("tenant", tenantKey), zap.Error(err))
	}
	c.publishState(sess, ReasonLoggedOut, sess.Attempts())
	zap.L().Info("session destroyed", zap.String("tenant", tenantKey))
	return nil
}

// GetStatus returns the tenant's session snapshot.
func (c *Controller) GetStatus(tenantKey string) (Status, error) {
	sess, ok := c.registry.Get(tenantKey)
	if !ok {
		return Status{}, ErrNoSession
	}
	return sess.Snapshot(), nil
}

// CurrentQR returns the tenant's pairing record while it is fresh.
func (c *Controller) CurrentQR(tenantKey string) (*QRRecord, error) {
	sess, ok := c.registry.Get(tenantKey)
	if !ok {
		return nil, ErrNoSession
	}
	rec := sess.QR()
	if rec == nil {
		return nil, ErrNoQR
	}
	if !rec.Fresh(time.Now(), c.cfg.QRFreshWindow) {
		return nil, ErrQRStale
	}
	return rec, nil
}

// SweepStaleQR drops pairing records past the freshness window so they
// are not held in memory between scans. Returns the number swept.
func (c *Controller) SweepStaleQR() int {
	now := time.Now()
	swept := 0
	c.registry.Range(func(tenantKey string, sess *Session) bool {
		rec := sess.QR()
		if rec != nil && !rec.Fresh(now, c.cfg.QRFreshWindow) {
			sess.clearQR()
			swept++
			zap.L().Debug("stale pairing code swept", zap.String("tenant", tenantKey))
		}
		return true
	})
	return swept
}

// SendText sends an outbound message through the tenant's session.
func (c *Controller) SendText(ctx context.Context, tenantKey, chatJID, text string) error {
	sess, ok := c.registry.Get(tenantKey)
	if !ok {
		return ErrNoSession
	}
	if sess.State() != StateReady {
		return ErrNotReady
	}
	return sess.Transport().SendText(ctx, chatJID, text)
}

// eventsFor rebinds the callback table to an existing session. Used by
// the supervisor when a credential purge forces a fresh transport;
// create builds its own table because the session does not exist yet
// at wiring time.
func (c *Controller) eventsFor(sess *Session) Events {
	return Events{
		OnQR:            func(code string) { c.handleQR(sess, code) },
		OnAuthenticated: func() { c.handleAuthenticated(sess) },
		OnReady:         func() { c.handleReady(sess) },
		OnAuthFailure:   func(cause error) { c.handleAuthFailure(sess, cause) },
		OnDisconnected:  func(reason DisconnectReason) { c.supervisor.handleDisconnect(sess, reason) },
		OnMessage:       func(msg InboundMessage) { c.handleMessage(sess.TenantKey, msg) },
	}
}

// current reports whether sess is still the registered session for its
// tenant. Events from replaced or removed sessions are dropped.
func (c *Controller) current(sess *Session) bool {
	cur, ok := c.registry.Get(sess.TenantKey)
	return ok && cur == sess
}

func (c *Controller) handleQR(sess *Session, code string) {
	if !c.current(sess) {
		return
	}
	rec := QRRecord{Code: code, IssuedAt: time.Now()}
	if png, err := qrcode.Encode(code, qrcode.Medium, 256); err == nil {
		rec.ImageURI = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	} else {
		zap.L().Warn("qr image encode failed",
			zap.String("tenant", sess.TenantKey), zap.Error(err))
	}
	sess.setQR(rec)
	sess.setState(StateAwaitingScan)
	c.hub.PublishQR(sess.TenantKey, rec)
	c.publishState(sess, ReasonUnknown, sess.Attempts())
	zap.L().Info("pairing code issued", zap.String("tenant", sess.TenantKey))
}

func (c *Controller) handleAuthenticated(sess *Session) {
	if !c.current(sess) {
		return
	}
	sess.clearQR()
	sess.setState(StateAuthenticated)
	c.publishState(sess, ReasonUnknown, sess.Attempts())
	zap.L().Info("session authenticated", zap.String("tenant", sess.TenantKey))
}

func (c *Controller) handleReady(sess *Session) {
	if !c.current(sess) {
		return
	}
	sess.setState(StateReady)
	sess.resetAttempts()
	sess.setLastError(nil)
	metrics.Counter(metrics.SessionReady, metrics.TenantLabel(sess.TenantKey))
	c.publishState(sess, ReasonUnknown, 0)
	zap.L().Info("session ready", zap.String("tenant", sess.TenantKey))
}

// handleAuthFailure tears the session down and wipes its credentials.
// A rejected pairing is terminal; the tenant must re-acquire and scan
// a fresh code.
func (c *Controller) handleAuthFailure(sess *Session, cause error) {
	if !c.current(sess) {
		return
	}
	zap.L().Error("session authentication rejected",
		zap.String("tenant", sess.TenantKey), zap.Error(cause))
	sess.clearQR()
	sess.setState(StateDestroyed)
	sess.setLastError(errors.Wrapf(ErrAuthFailure, "%v", cause))
	sess.Transport().Close()
	c.registry.Remove(sess.TenantKey)
	if err := c.factory.Purge(sess.TenantKey); err != nil {
		zap.L().Warn("credential purge failed",
			zap.String("tenant", sess.TenantKey), zap.Error(err))
	}
	c.publishState(sess, ReasonUnknown, sess.Attempts())
}

func (c *Controller) handleMessage(tenantKey string, msg InboundMessage) {
	if c.onMessage == nil {
		return
	}
	c.onMessage(tenantKey, msg)
}

func (c *Controller) publishState(sess *Session, reason DisconnectReason, attempt int) {
	c.hub.PublishStatus(StatusEvent{
		TenantKey: sess.TenantKey,
		State:     sess.State(),
		Reason:    reason,
		Attempt:   attempt,
		At:        time.Now(),
	})
}
