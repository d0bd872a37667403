package session

import "sync"

// Registry tracks the live session per tenant plus an in-flight
// initialization marker. One mutex guards both maps, so every
// check-and-set on either is a single critical section and two
// concurrent acquires can never both see an empty slot.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		pending:  make(map[string]chan struct{}),
	}
}

func (r *Registry) Get(tenantKey string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tenantKey]
	return s, ok
}

func (r *Registry) Put(tenantKey string, s *Session) {
	r.mu.Lock()
	r.sessions[tenantKey] = s
	r.mu.Unlock()
}

func (r *Registry) Remove(tenantKey string) {
	r.mu.Lock()
	delete(r.sessions, tenantKey)
	r.mu.Unlock()
}

// Initializing reports whether an acquire is currently building the
// tenant's session.
func (r *Registry) Initializing(tenantKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[tenantKey]
	return ok
}

// begin claims the initialization slot for the tenant. When the slot is
// free it returns (existing session if any, nil wait channel, true).
// When another acquire holds the slot it returns its signal channel and
// false; the caller waits on it and re-checks.
func (r *Registry) begin(tenantKey string) (*Session, <-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[tenantKey]; ok {
		return s, nil, false
	}
	if ch, ok := r.pending[tenantKey]; ok {
		return nil, ch, false
	}
	r.pending[tenantKey] = make(chan struct{})
	return nil, nil, true
}

// settle releases the initialization slot and wakes every waiter.
func (r *Registry) settle(tenantKey string) {
	r.mu.Lock()
	if ch, ok := r.pending[tenantKey]; ok {
		close(ch)
		delete(r.pending, tenantKey)
	}
	r.mu.Unlock()
}

func (r *Registry) Range(fn func(tenantKey string, s *Session) bool) {
	r.mu.Lock()
	snapshot := make(map[string]*Session, len(r.sessions))
	for k, v := range r.sessions {
		snapshot[k] = v
	}
	r.mu.Unlock()
	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
