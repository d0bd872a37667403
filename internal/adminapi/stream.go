package adminapi

import (
	"context"
	"net/http"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	sse "github.com/tmaxmax/go-sse"
	"github.com/talkincode/wabothub/internal/broadcast"
	"github.com/talkincode/wabothub/internal/session"
	"github.com/talkincode/wabothub/internal/webserver"
	"go.uber.org/zap"
)

func registerStreamRoutes() {
	webserver.ApiGET("/session/events", getSessionEvents)
}

// sseBridge relays bus events onto SSE topics. One SSE topic per
// tenant; bus subscriptions are installed lazily on the first stream
// for a tenant and kept for the process lifetime.
type sseBridge struct {
	provider sse.Provider
	hub      *broadcast.Hub

	mu      sync.Mutex
	bridged map[string]bool
}

func newSSEBridge(hub *broadcast.Hub) *sseBridge {
	return &sseBridge{
		provider: &sse.Joe{},
		hub:      hub,
		bridged:  make(map[string]bool),
	}
}

func (b *sseBridge) ensure(tenantKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bridged[tenantKey] {
		return
	}

	if _, err := b.hub.SubscribeQR(tenantKey, func(rec session.QRRecord) {
		b.publish(tenantKey, "qr", rec)
	}); err != nil {
		zap.L().Warn("sse qr bridge failed",
			zap.String("tenant", tenantKey), zap.Error(err))
		return
	}
	if _, err := b.hub.SubscribeStatus(tenantKey, func(ev session.StatusEvent) {
		b.publish(tenantKey, "status", ev)
	}); err != nil {
		zap.L().Warn("sse status bridge failed",
			zap.String("tenant", tenantKey), zap.Error(err))
		return
	}
	b.bridged[tenantKey] = true
}

func (b *sseBridge) publish(tenantKey, kind string, payload interface{}) {
	data, err := jsoniter.MarshalToString(map[string]interface{}{
		"type": kind,
		"data": payload,
	})
	if err != nil {
		zap.L().Warn("sse payload encode failed", zap.Error(err))
		return
	}
	msg := &sse.Message{}
	msg.AppendData(data)
	if err := b.provider.Publish(msg, []string{tenantKey}); err != nil {
		zap.L().Debug("sse publish failed",
			zap.String("tenant", tenantKey), zap.Error(err))
	}
}

type channelMessageWriter struct {
	ch chan *sse.Message
}

func (w *channelMessageWriter) Send(message *sse.Message) error {
	select {
	case w.ch <- message.Clone():
		return nil
	default:
		return errors.New("sse subscriber is backpressured")
	}
}

func (w *channelMessageWriter) Flush() error {
	return nil
}

// getSessionEvents streams the tenant's QR and status events.
func getSessionEvents(c echo.Context) error {
	tenantKey, err := requireTenant(c)
	if err != nil {
		return err
	}
	handler.bridge.ensure(tenantKey)

	w, r := c.Response(), c.Request()
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SSE_FAILED", "Failed to open event stream", err.Error())
	}

	ready := &sse.Message{}
	ready.AppendComment("ready")
	if err := sess.Send(ready); err != nil {
		return nil
	}
	_ = sess.Flush()

	writer := &channelMessageWriter{ch: make(chan *sse.Message, 128)}
	sub := sse.Subscription{
		Client: writer,
		Topics: []string{tenantKey},
	}
	subscribeErr := make(chan error, 1)
	go func() {
		subscribeErr <- handler.bridge.provider.Subscribe(r.Context(), sub)
	}()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case err := <-subscribeErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				zap.L().Debug("sse subscription closed",
					zap.String("tenant", tenantKey), zap.Error(err))
			}
			return nil
		case message := <-writer.ch:
			if err := sess.Send(message); err != nil {
				return nil
			}
			_ = sess.Flush()
		}
	}
}
