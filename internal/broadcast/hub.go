package broadcast

import (
	"fmt"

	"github.com/asaskevich/EventBus"
	"github.com/talkincode/wabothub/internal/session"
	"go.uber.org/zap"
)

// Topic layout: one QR topic and one status topic per tenant. There is
// no global topic, so a subscriber can only ever see its own tenant's
// events.
func qrTopic(tenantKey string) string {
	return fmt.Sprintf("wa.qr.%s", tenantKey)
}

func statusTopic(tenantKey string) string {
	return fmt.Sprintf("wa.status.%s", tenantKey)
}

// Hub fans session lifecycle events out to tenant-scoped subscribers.
type Hub struct {
	bus EventBus.Bus
}

var _ session.Broadcaster = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{bus: EventBus.New()}
}

func (h *Hub) PublishQR(tenantKey string, rec session.QRRecord) {
	h.bus.Publish(qrTopic(tenantKey), rec)
}

func (h *Hub) PublishStatus(ev session.StatusEvent) {
	h.bus.Publish(statusTopic(ev.TenantKey), ev)
}

// SubscribeQR registers fn for the tenant's pairing codes. The returned
// cancel func detaches it.
func (h *Hub) SubscribeQR(tenantKey string, fn func(rec session.QRRecord)) (func(), error) {
	topic := qrTopic(tenantKey)
	if err := h.bus.Subscribe(topic, fn); err != nil {
		return nil, err
	}
	return func() {
		if err := h.bus.Unsubscribe(topic, fn); err != nil {
			zap.L().Warn("qr unsubscribe failed",
				zap.String("tenant", tenantKey), zap.Error(err))
		}
	}, nil
}

// SubscribeStatus registers fn for the tenant's lifecycle events.
func (h *Hub) SubscribeStatus(tenantKey string, fn func(ev session.StatusEvent)) (func(), error) {
	topic := statusTopic(tenantKey)
	if err := h.bus.Subscribe(topic, fn); err != nil {
		return nil, err
	}
	return func() {
		if err := h.bus.Unsubscribe(topic, fn); err != nil {
			zap.L().Warn("status unsubscribe failed",
				zap.String("tenant", tenantKey), zap.Error(err))
		}
	}, nil
}
