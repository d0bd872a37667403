package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// WhatsmeowFactory builds whatsmeow-backed transports. Each tenant gets
// its own sqlite store at <tenant dir>/session.db so credential
// partitions never collide and purging one tenant is a directory wipe.
type WhatsmeowFactory struct {
	dirFor func(tenantKey string) string
	debug  bool
}

// NewWhatsmeowFactory takes the per-tenant partition resolver, normally
// config.AppConfig.SessionDir.
func NewWhatsmeowFactory(dirFor func(tenantKey string) string, debug bool) *WhatsmeowFactory {
	return &WhatsmeowFactory{dirFor: dirFor, debug: debug}
}

var _ Factory = (*WhatsmeowFactory)(nil)

func (f *WhatsmeowFactory) tenantDir(tenantKey string) string {
	return f.dirFor(tenantKey)
}

func (f *WhatsmeowFactory) logLevel() string {
	if f.debug {
		return "DEBUG"
	}
	return "ERROR"
}

func (f *WhatsmeowFactory) Open(ctx context.Context, tenantKey string, ev Events) (Transport, error) {
	dir := f.tenantDir(tenantKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create session dir")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, "session.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Stdout("Database", f.logLevel(), true))
	if err != nil {
		return nil, errors.Wrap(err, "open session store")
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, errors.Wrap(err, "load device")
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", f.logLevel(), true))
	// the supervisor owns reconnection
	client.EnableAutoReconnect = false

	t := &waTransport{
		tenantKey: tenantKey,
		container: container,
		client:    client,
		ev:        ev,
	}
	client.AddEventHandler(t.handleEvent)
	return t, nil
}

func (f *WhatsmeowFactory) Purge(tenantKey string) error {
	return os.RemoveAll(f.tenantDir(tenantKey))
}

func (f *WhatsmeowFactory) HasCredentials(tenantKey string) bool {
	_, err := os.Stat(filepath.Join(f.tenantDir(tenantKey), "session.db"))
	return err == nil
}

type waTransport struct {
	tenantKey string
	container *sqlstore.Container
	client    *whatsmeow.Client
	ev        Events
}

var _ Transport = (*waTransport)(nil)

func (t *waTransport) Initialize(ctx context.Context) error {
	if t.client.IsConnected() {
		return nil
	}
	if err := t.client.Connect(); err != nil {
		return errors.Wrap(err, "connect")
	}
	return nil
}

func (t *waTransport) SendText(ctx context.Context, chatJID string, text string) error {
	jid, err := types.ParseJID(chatJID)
	if err != nil {
		return errors.Wrapf(err, "parse jid %s", chatJID)
	}
	_, err = t.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}

func (t *waTransport) Logout(ctx context.Context) error {
	if !t.client.IsLoggedIn() {
		return nil
	}
	return t.client.Logout(ctx)
}

func (t *waTransport) Connected() bool {
	return t.client.IsConnected()
}

func (t *waTransport) LoggedIn() bool {
	return t.client.IsLoggedIn()
}

func (t *waTransport) Close() {
	t.client.Disconnect()
	if err := t.container.Close(); err != nil {
		zap.L().Warn("session store close failed",
			zap.String("tenant", t.tenantKey), zap.Error(err))
	}
}

// handleEvent translates whatsmeow events into the session callback
// table. Events that carry no lifecycle meaning are dropped here.
func (t *waTransport) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.QR:
		if len(v.Codes) > 0 {
			t.ev.emitQR(v.Codes[0])
		}
	case *events.PairSuccess:
		zap.L().Info("device paired",
			zap.String("tenant", t.tenantKey),
			zap.String("jid", v.ID.String()))
		t.ev.emitAuthenticated()
	case *events.PairError:
		zap.L().Error("device pairing rejected",
			zap.String("tenant", t.tenantKey),
			zap.Error(v.Error))
		t.ev.emitAuthFailure(v.Error)
	case *events.Connected:
		t.ev.emitReady()
	case *events.Disconnected:
		t.ev.emitDisconnected(ReasonNetworkError)
	case *events.StreamReplaced:
		t.ev.emitDisconnected(ReasonStreamReplaced)
	case *events.LoggedOut:
		zap.L().Warn("device logged out remotely",
			zap.String("tenant", t.tenantKey),
			zap.Int("code", int(v.Reason)))
		t.ev.emitDisconnected(ReasonLoggedOut)
	case *events.ClientOutdated:
		t.ev.emitDisconnected(ReasonClientOutdated)
	case *events.Message:
		t.ev.emitMessage(InboundMessage{
			Chat:      v.Info.Chat.String(),
			Sender:    v.Info.Sender.String(),
			PushName:  v.Info.PushName,
			Text:      extractText(v.Message),
			FromGroup: v.Info.IsGroup,
			FromSelf:  v.Info.IsFromMe,
		})
	}
}

func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}
