package session

import "context"

// InboundMessage is one message received on a live session, already
// flattened out of the transport's native envelope.
type InboundMessage struct {
	Chat      string
	Sender    string
	PushName  string
	Text      string
	FromGroup bool
	FromSelf  bool
}

// Events is the callback table a session registers with its transport.
// It is built once per session and never mutated afterwards; hooks left
// nil are simply skipped.
type Events struct {
	OnQR            func(code string)
	OnAuthenticated func()
	OnReady         func()
	OnAuthFailure   func(cause error)
	OnDisconnected  func(reason DisconnectReason)
	OnMessage       func(msg InboundMessage)
}

func (e Events) emitQR(code string) {
	if e.OnQR != nil {
		e.OnQR(code)
	}
}

func (e Events) emitAuthenticated() {
	if e.OnAuthenticated != nil {
		e.OnAuthenticated()
	}
}

func (e Events) emitReady() {
	if e.OnReady != nil {
		e.OnReady()
	}
}

func (e Events) emitAuthFailure(cause error) {
	if e.OnAuthFailure != nil {
		e.OnAuthFailure(cause)
	}
}

func (e Events) emitDisconnected(reason DisconnectReason) {
	if e.OnDisconnected != nil {
		e.OnDisconnected(reason)
	}
}

func (e Events) emitMessage(msg InboundMessage) {
	if e.OnMessage != nil {
		e.OnMessage(msg)
	}
}

// Transport is one tenant's connection to the messaging network.
// Initialize may be called again after a disconnect to re-establish the
// same connection.
type Transport interface {
	Initialize(ctx context.Context) error
	SendText(ctx context.Context, chatJID string, text string) error
	Logout(ctx context.Context) error
	Connected() bool
	LoggedIn() bool
	Close()
}

// Factory builds transports and owns their credential storage.
type Factory interface {
	// Open prepares a transport for the tenant and wires the callback
	// table. It does not connect; Initialize does.
	Open(ctx context.Context, tenantKey string, ev Events) (Transport, error)
	// Purge removes the tenant's stored credentials. Safe to call when
	// nothing was ever stored.
	Purge(tenantKey string) error
	// HasCredentials reports whether a credential partition exists for
	// the tenant.
	HasCredentials(tenantKey string) bool
}
