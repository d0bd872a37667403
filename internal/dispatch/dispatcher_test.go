package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/wabothub/internal/domain"
	"github.com/talkincode/wabothub/internal/session"
)

type fakeResponder struct {
	mu    sync.Mutex
	text  string
	model string
	err   error
	calls int
}

func (r *fakeResponder) Reply(ctx context.Context, tenantKey string, msg session.InboundMessage) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.text, r.model, r.err
}

func (r *fakeResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type outbound struct {
	tenant string
	chat   string
	text   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []outbound
	err  error
}

func (s *fakeSender) SendText(ctx context.Context, tenantKey, chatJID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, outbound{tenant: tenantKey, chat: chatJID, text: text})
	return nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) last() outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type fakeStore struct {
	mu       sync.Mutex
	turns    []*domain.ChatTurn
	fallback string
	greeting string
}

func (s *fakeStore) RecordTurn(turn *domain.ChatTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
}

func (s *fakeStore) FallbackText(tenantKey string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fallback != "" {
		return s.fallback
	}
	return "Sorry, I can't answer right now. Please try again in a moment."
}

func (s *fakeStore) GreetingText(tenantKey, chatJID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) > 0 {
		return ""
	}
	return s.greeting
}

func (s *fakeStore) turnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *fakeStore) lastTurn() *domain.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns[len(s.turns)-1]
}

func newTestDispatcher(t *testing.T, responder *fakeResponder, sender *fakeSender, store *fakeStore) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(4, responder, sender, store)
	require.NoError(t, err)
	t.Cleanup(d.Release)
	return d
}

func directMessage(text string) session.InboundMessage {
	return session.InboundMessage{
		Chat:   "628123@s.whatsapp.net",
		Sender: "628123@s.whatsapp.net",
		Text:   text,
	}
}

func TestHandleRepliesToDirectMessage(t *testing.T) {
	responder := &fakeResponder{text: "hello there", model: "gpt-test"}
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newTestDispatcher(t, responder, sender, store)

	d.Handle("acme", directMessage("hi bot"))

	require.Eventually(t, func() bool { return store.turnCount() == 1 },
		time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, sender.sentCount())
	out := sender.last()
	assert.Equal(t, "acme", out.tenant)
	assert.Equal(t, "628123@s.whatsapp.net", out.chat)
	assert.Equal(t, "hello there", out.text)

	turn := store.lastTurn()
	assert.Equal(t, "hi bot", turn.Inbound)
	assert.Equal(t, "hello there", turn.Reply)
	assert.Equal(t, "gpt-test", turn.Model)
	assert.False(t, turn.Failed)
}

func TestHandleDropsGroupAndSelfMessages(t *testing.T) {
	responder := &fakeResponder{text: "nope"}
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newTestDispatcher(t, responder, sender, store)

	group := directMessage("hello all")
	group.FromGroup = true
	d.Handle("acme", group)

	self := directMessage("echo")
	self.FromSelf = true
	d.Handle("acme", self)

	d.Handle("acme", directMessage("   "))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, responder.callCount())
	assert.Equal(t, 0, sender.sentCount())
	assert.Equal(t, 0, store.turnCount())
}

func TestHandleGreetsFirstContact(t *testing.T) {
	responder := &fakeResponder{text: "hello there"}
	sender := &fakeSender{}
	store := &fakeStore{greeting: "welcome aboard"}
	d := newTestDispatcher(t, responder, sender, store)

	d.Handle("acme", directMessage("hi"))

	require.Eventually(t, func() bool { return sender.sentCount() == 2 },
		time.Second, 5*time.Millisecond)
	sender.mu.Lock()
	first := sender.sent[0].text
	sender.mu.Unlock()
	assert.Equal(t, "welcome aboard", first)
	assert.Equal(t, "hello there", sender.last().text)

	require.Eventually(t, func() bool { return store.turnCount() == 1 },
		time.Second, 5*time.Millisecond)

	// a known chat is not greeted again
	d.Handle("acme", directMessage("hi again"))
	require.Eventually(t, func() bool { return sender.sentCount() == 3 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello there", sender.last().text)
}

func TestHandleSendsFallbackOnPipelineFailure(t *testing.T) {
	responder := &fakeResponder{err: errors.New("model unavailable")}
	sender := &fakeSender{}
	store := &fakeStore{fallback: "be right back"}
	d := newTestDispatcher(t, responder, sender, store)

	d.Handle("acme", directMessage("hi"))

	require.Eventually(t, func() bool { return store.turnCount() == 1 },
		time.Second, 5*time.Millisecond)

	assert.Equal(t, "be right back", sender.last().text)
	assert.True(t, store.lastTurn().Failed)
}

func TestHandleTreatsEmptyReplyAsFailure(t *testing.T) {
	responder := &fakeResponder{text: "   "}
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newTestDispatcher(t, responder, sender, store)

	d.Handle("acme", directMessage("hi"))

	require.Eventually(t, func() bool { return store.turnCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.True(t, store.lastTurn().Failed)
	assert.NotEmpty(t, sender.last().text)
}

func TestHandleSkipsTurnWhenSendFails(t *testing.T) {
	responder := &fakeResponder{text: "hello"}
	sender := &fakeSender{err: errors.New("not connected")}
	store := &fakeStore{}
	d := newTestDispatcher(t, responder, sender, store)

	d.Handle("acme", directMessage("hi"))

	require.Eventually(t, func() bool { return responder.callCount() == 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.turnCount(), "undelivered replies must not be recorded")
}
