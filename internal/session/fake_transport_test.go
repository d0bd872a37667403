package session

import (
	"context"
	"sync"
	"time"
)

type sentText struct {
	chat string
	text string
}

type fakeTransport struct {
	mu          sync.Mutex
	ev          Events
	initCalls   int
	initErr     error
	connected   bool
	loggedIn    bool
	sent        []sentText
	sendErr     error
	logoutCalls int
	closed      bool
}

func (t *fakeTransport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initCalls++
	if t.initErr != nil {
		return t.initErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) SendText(ctx context.Context, chatJID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, sentText{chat: chatJID, text: text})
	return nil
}

func (t *fakeTransport) Logout(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logoutCalls++
	t.loggedIn = false
	return nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) LoggedIn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loggedIn
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closed = true
}

func (t *fakeTransport) initCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initCalls
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	openCalls  int
	openErr    error
	firstDelay time.Duration
	initErr    error
	purged     []string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[string]*fakeTransport)}
}

func (f *fakeFactory) Open(ctx context.Context, tenantKey string, ev Events) (Transport, error) {
	f.mu.Lock()
	f.openCalls++
	first := f.openCalls == 1
	delay := f.firstDelay
	openErr := f.openErr
	initErr := f.initErr
	f.mu.Unlock()

	if first && delay > 0 {
		time.Sleep(delay)
	}
	if openErr != nil {
		return nil, openErr
	}

	t := &fakeTransport{ev: ev, initErr: initErr}
	f.mu.Lock()
	f.transports[tenantKey] = t
	f.mu.Unlock()
	return t, nil
}

func (f *fakeFactory) Purge(tenantKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = append(f.purged, tenantKey)
	return nil
}

func (f *fakeFactory) HasCredentials(tenantKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.transports[tenantKey]
	return ok
}

func (f *fakeFactory) transport(tenantKey string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[tenantKey]
}

func (f *fakeFactory) purgedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.purged))
	copy(out, f.purged)
	return out
}

// recordingHub captures published events for assertions.
type recordingHub struct {
	mu     sync.Mutex
	qrs    map[string][]QRRecord
	events map[string][]StatusEvent
}

func newRecordingHub() *recordingHub {
	return &recordingHub{
		qrs:    make(map[string][]QRRecord),
		events: make(map[string][]StatusEvent),
	}
}

func (h *recordingHub) PublishQR(tenantKey string, rec QRRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.qrs[tenantKey] = append(h.qrs[tenantKey], rec)
}

func (h *recordingHub) PublishStatus(ev StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[ev.TenantKey] = append(h.events[ev.TenantKey], ev)
}

func (h *recordingHub) qrCount(tenantKey string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.qrs[tenantKey])
}

func (h *recordingHub) states(tenantKey string) []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]State, 0, len(h.events[tenantKey]))
	for _, ev := range h.events[tenantKey] {
		out = append(out, ev.State)
	}
	return out
}

func testConfig() Config {
	return Config{
		QRFreshWindow:  45 * time.Second,
		AcquireWait:    200 * time.Millisecond,
		InitTimeout:    time.Second,
		ReconnectMax:   5,
		ReconnectDelay: time.Millisecond,
	}
}
