package session

import (
	"sync"
	"time"
)

// State is the lifecycle position of one tenant session.
type State int

const (
	StateInitializing State = iota
	StateAwaitingScan
	StateAuthenticated
	StateReady
	StateDisconnected
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// DisconnectReason classifies why a transport dropped. The transport
// adapter emits the enum so nothing downstream matches on message text.
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	ReasonNetworkError
	ReasonStreamReplaced
	ReasonLoggedOut
	ReasonClientOutdated
	ReasonStorageLocked
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNetworkError:
		return "network_error"
	case ReasonStreamReplaced:
		return "stream_replaced"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonClientOutdated:
		return "client_outdated"
	case ReasonStorageLocked:
		return "storage_locked"
	default:
		return "unknown"
	}
}

// RequiresPurge reports whether stored credentials are unusable after r.
// Reconnecting with purged-class credentials would loop forever, so the
// supervisor wipes the partition instead of retrying.
func (r DisconnectReason) RequiresPurge() bool {
	return r == ReasonLoggedOut || r == ReasonStorageLocked
}

// QRRecord is one pairing code emitted by the transport, with its
// pre-rendered PNG form and the time it was issued.
type QRRecord struct {
	Code     string    `json:"code"`
	ImageURI string    `json:"image_uri"`
	IssuedAt time.Time `json:"issued_at"`
}

// Fresh reports whether the record is still presentable. A record aged
// exactly the window is still fresh; one second past it is not.
func (q QRRecord) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(q.IssuedAt) <= window
}

// StatusEvent is a lifecycle change published on the tenant topic.
type StatusEvent struct {
	TenantKey string           `json:"tenant_key"`
	State     State            `json:"state"`
	Reason    DisconnectReason `json:"reason,omitempty"`
	Attempt   int              `json:"attempt,omitempty"`
	At        time.Time        `json:"at"`
}

// Broadcaster fans session events out to tenant-scoped subscribers.
type Broadcaster interface {
	PublishQR(tenantKey string, rec QRRecord)
	PublishStatus(ev StatusEvent)
}

// Session is one tenant's live connection plus its mutable lifecycle
// bookkeeping. All fields behind mu; the transport is replaced only by
// the supervisor when a credential purge forces a reopen.
type Session struct {
	TenantKey string

	mu        sync.Mutex
	state     State
	transport Transport
	qr        *QRRecord
	attempts  int
	lastErr   error
	startedAt time.Time
	readyAt   time.Time
}

func newSession(tenantKey string, t Transport) *Session {
	return &Session{
		TenantKey: tenantKey,
		state:     StateInitializing,
		transport: t,
		startedAt: time.Now(),
	}
}

func (s *Session) Transport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

func (s *Session) setTransport(t Transport) {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	if st == StateReady {
		s.readyAt = time.Now()
	}
	s.mu.Unlock()
}

// QR returns the latest pairing record, or nil when none was issued.
func (s *Session) QR() *QRRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.qr == nil {
		return nil
	}
	rec := *s.qr
	return &rec
}

func (s *Session) setQR(rec QRRecord) {
	s.mu.Lock()
	s.qr = &rec
	s.mu.Unlock()
}

func (s *Session) clearQR() {
	s.mu.Lock()
	s.qr = nil
	s.mu.Unlock()
}

func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *Session) bumpAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *Session) resetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Status is a point-in-time snapshot served over the API.
type Status struct {
	TenantKey string    `json:"tenant_key"`
	State     string    `json:"state"`
	Ready     bool      `json:"ready"`
	Attempts  int       `json:"attempts"`
	StartedAt time.Time `json:"started_at"`
	ReadyAt   time.Time `json:"ready_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		TenantKey: s.TenantKey,
		State:     s.state.String(),
		Ready:     s.state == StateReady,
		Attempts:  s.attempts,
		StartedAt: s.startedAt,
		ReadyAt:   s.readyAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
