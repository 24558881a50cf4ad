package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	chatapp "social_chat_service/internal/chat/app"
	chat "social_chat_service/internal/chat/domain"
	"social_chat_service/internal/chat/repository"
	"social_chat_service/internal/chatclient/domain"
	"social_chat_service/internal/chatclient/transport"
	"social_chat_service/pkg/logger"

	"github.com/stretchr/testify/require"
)

// backend shared in-memory chat service for several clients
type backend struct {
	store *repository.MemoryStore
	conv  chatapp.ConversationUseCase
	msgs  chatapp.MessageUseCase
}

func newBackend() *backend {
	logger.SetNewNop()
	store := repository.NewMemoryStore()
	return &backend{
		store: store,
		conv:  chatapp.NewConversationUseCase(store, repository.NewMemoryProfileRepository(), nil, nil),
		msgs:  chatapp.NewMessageUseCase(store, store, nil),
	}
}

func (b *backend) api(member string) *hookAPI {
	return &hookAPI{ChatAPI: transport.NewLocalAPI(member, b.conv, b.msgs), markReads: map[string]int{}}
}

func (b *backend) resolve(t *testing.T, x, y string) string {
	t.Helper()
	id, err := b.conv.Resolve(context.Background(), x, y)
	require.NoError(t, err)
	return id
}

func (b *backend) send(t *testing.T, from, convID, text string) *chat.Message {
	t.Helper()
	m, err := b.msgs.Send(context.Background(), from, convID, text, "")
	require.NoError(t, err)
	return m
}

func (b *backend) unread(t *testing.T, convID, member string) int {
	t.Helper()
	c, err := b.store.FindByID(context.Background(), convID)
	require.NoError(t, err)
	return c.UnreadFor(member)
}

// hookAPI ChatAPI decorator with failure injection and call hooks
type hookAPI struct {
	ChatAPI

	mu             sync.Mutex
	sendErr        error
	sendCalls      int
	markReads      map[string]int
	afterListInbox func()
	afterFetch     func(conversationID string)

	beforeCalls int
	beforeHold  *hold
	latestHold  *hold
}

// hold parks a call until released or its context ends
type hold struct {
	entered chan struct{}
	release chan struct{}
}

func newHold() *hold {
	return &hold{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (h *hold) wait(ctx context.Context) {
	h.entered <- struct{}{}
	select {
	case <-h.release:
	case <-ctx.Done():
	}
}

func (h *hookAPI) holdFetchBefore() *hold {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeHold = newHold()
	return h.beforeHold
}

func (h *hookAPI) holdFetchLatest() *hold {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latestHold = newHold()
	return h.latestHold
}

func (h *hookAPI) fetchBeforeCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beforeCalls
}

func (h *hookAPI) setSendErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendErr = err
}

func (h *hookAPI) markReadCount(convID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.markReads[convID]
}

func (h *hookAPI) sends() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendCalls
}

func (h *hookAPI) ListInbox(ctx context.Context) ([]chat.InboxRow, error) {
	rows, err := h.ChatAPI.ListInbox(ctx)
	h.mu.Lock()
	hook := h.afterListInbox
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return rows, err
}

func (h *hookAPI) MarkRead(ctx context.Context, conversationID string) error {
	h.mu.Lock()
	h.markReads[conversationID]++
	h.mu.Unlock()
	return h.ChatAPI.MarkRead(ctx, conversationID)
}

func (h *hookAPI) FetchSince(ctx context.Context, conversationID string, cursor time.Time) ([]chat.Message, error) {
	msgs, err := h.ChatAPI.FetchSince(ctx, conversationID, cursor)
	h.mu.Lock()
	hook := h.afterFetch
	h.mu.Unlock()
	if hook != nil {
		hook(conversationID)
	}
	return msgs, err
}

func (h *hookAPI) FetchBefore(ctx context.Context, conversationID string, before time.Time) ([]chat.Message, error) {
	h.mu.Lock()
	h.beforeCalls++
	hd := h.beforeHold
	h.mu.Unlock()
	if hd != nil {
		hd.wait(ctx)
	}
	// the response arrives regardless of cancellation
	return h.ChatAPI.FetchBefore(context.Background(), conversationID, before)
}

func (h *hookAPI) FetchLatest(ctx context.Context, conversationID string) ([]chat.Message, error) {
	h.mu.Lock()
	hd := h.latestHold
	h.mu.Unlock()
	if hd != nil {
		hd.wait(ctx)
	}
	return h.ChatAPI.FetchLatest(context.Background(), conversationID)
}

func (h *hookAPI) Send(ctx context.Context, conversationID, text, clientID string) (*chat.Message, error) {
	h.mu.Lock()
	h.sendCalls++
	err := h.sendErr
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.ChatAPI.Send(ctx, conversationID, text, clientID)
}

// fakeClock manual clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// recorder keeps every published state
type recorder struct {
	mu     sync.Mutex
	states []domain.State
}

func (r *recorder) record(s domain.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.State, len(r.states))
	copy(out, r.states)
	return out
}

func entryKinds(t domain.Thread) []domain.EntryKind {
	out := make([]domain.EntryKind, 0, len(t.Entries))
	for _, e := range t.Entries {
		out = append(out, e.Kind)
	}
	return out
}

func assertAscending(t *testing.T, th domain.Thread) {
	t.Helper()
	ms := th.Messages()
	for i := 1; i < len(ms); i++ {
		require.False(t, ms[i].CreatedAt.Before(ms[i-1].CreatedAt), "order broken at %d", i)
	}
}
