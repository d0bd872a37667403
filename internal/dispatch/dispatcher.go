package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/talkincode/wabothub/internal/domain"
	"github.com/talkincode/wabothub/internal/session"
	"github.com/talkincode/wabothub/pkg/metrics"
	"go.uber.org/zap"
)

const replyTimeout = 60 * time.Second

// Responder produces a reply for an inbound message.
type Responder interface {
	Reply(ctx context.Context, tenantKey string, msg session.InboundMessage) (text string, model string, err error)
}

// Sender delivers the reply back through the tenant's session.
type Sender interface {
	SendText(ctx context.Context, tenantKey, chatJID, text string) error
}

// TurnStore persists chat turns and resolves the tenant's configured
// texts.
type TurnStore interface {
	RecordTurn(turn *domain.ChatTurn)
	FallbackText(tenantKey string) string
	// GreetingText is non-empty only for a chat's first contact.
	GreetingText(tenantKey, chatJID string) string
}

// Dispatcher consumes inbound messages from live sessions, generates a
// reply and sends it back. Work runs on a bounded pool; overload
// degrades to dropping, the bot is best-effort.
type Dispatcher struct {
	pool      *ants.Pool
	responder Responder
	sender    Sender
	store     TurnStore
}

func NewDispatcher(workers int, responder Responder, sender Sender, store TurnStore) (*Dispatcher, error) {
	if workers <= 0 {
		workers = 32
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, errors.Wrap(err, "dispatch pool")
	}
	return &Dispatcher{
		pool:      pool,
		responder: responder,
		sender:    sender,
		store:     store,
	}, nil
}

// Handle filters and enqueues one inbound message. Group traffic and
// the bot's own echoes are dropped before they reach the pool.
func (d *Dispatcher) Handle(tenantKey string, msg session.InboundMessage) {
	if msg.FromGroup || msg.FromSelf {
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	if err := d.pool.Submit(func() { d.process(tenantKey, msg) }); err != nil {
		zap.L().Warn("dispatch pool saturated, dropping message",
			zap.String("tenant", tenantKey),
			zap.String("chat", msg.Chat))
	}
}

func (d *Dispatcher) process(tenantKey string, msg session.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	if greet := d.store.GreetingText(tenantKey, msg.Chat); greet != "" {
		if err := d.sender.SendText(ctx, tenantKey, msg.Chat, greet); err != nil {
			zap.L().Warn("greeting send failed",
				zap.String("tenant", tenantKey),
				zap.String("chat", msg.Chat),
				zap.Error(err))
		}
	}

	start := time.Now()
	text, model, err := d.responder.Reply(ctx, tenantKey, msg)
	failed := err != nil || strings.TrimSpace(text) == ""
	if failed {
		zap.L().Warn("reply pipeline failed, sending fallback",
			zap.String("tenant", tenantKey),
			zap.String("chat", msg.Chat),
			zap.Error(err))
		text = d.store.FallbackText(tenantKey)
		metrics.Counter(metrics.ReplyFallback, metrics.TenantLabel(tenantKey))
	}

	if err := d.sender.SendText(ctx, tenantKey, msg.Chat, text); err != nil {
		zap.L().Error("reply send failed",
			zap.String("tenant", tenantKey),
			zap.String("chat", msg.Chat),
			zap.Error(err))
		return
	}
	metrics.Counter(metrics.MessageReply, metrics.TenantLabel(tenantKey))

	turn := &domain.ChatTurn{
		TenantKey: tenantKey,
		ChatJID:   msg.Chat,
		Inbound:   msg.Text,
		Reply:     text,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
		Failed:    failed,
	}
	// fire and forget, replies must not wait on the database
	go d.store.RecordTurn(turn)
}

func (d *Dispatcher) Release() {
	d.pool.Release()
}
