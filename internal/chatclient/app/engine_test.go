package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	chat "social_chat_service/internal/chat/domain"
	"social_chat_service/internal/chatclient/domain"
	"social_chat_service/internal/chatclient/repository"
	errprocess "social_chat_service/pkg/err"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openWith(t *testing.T, e *Engine, userID string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.RefreshInbox(ctx))
	row, ok := e.Snapshot().RowByUser(userID)
	if !ok {
		row = chat.InboxRow{User: chat.Profile{MemberID: userID}}
	}
	require.NoError(t, e.OpenConversation(ctx, row))
	return e.Snapshot().Selection.ConversationID
}

func TestEngine_SendOptimisticThenConfirmed(t *testing.T) {
	b := newBackend()
	api := b.api("alice")
	e := NewEngine(api, nil, nil, WithIDGenerator(sequentialIDs("local")))
	rec := &recorder{}
	e.Subscribe(rec.record)

	convID := openWith(t, e, "bob")

	localID, err := e.SendMessage(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "local-1", localID)

	sawPending := false
	for _, s := range rec.all() {
		kinds := entryKinds(s.Thread(convID))
		if len(kinds) == 1 && kinds[0] == domain.EntryPending {
			sawPending = true
			assert.Equal(t, domain.StatusSending, s.Thread(convID).Entries[0].Status())
		}
	}
	assert.True(t, sawPending)

	th := e.Snapshot().Thread(convID)
	require.Len(t, th.Entries, 1)
	assert.Equal(t, domain.EntryConfirmed, th.Entries[0].Kind)
	assert.Equal(t, "hi", th.Entries[0].Message.Text)

	// the poll returns the confirmed message again, never a duplicate
	require.NoError(t, e.PollActiveConversation(context.Background()))
	require.NoError(t, e.OpenConversation(context.Background(), chat.InboxRow{User: chat.Profile{MemberID: "bob"}, ConversationID: convID}))
	assert.Len(t, e.Snapshot().Thread(convID).Entries, 1)

	row, ok := e.Snapshot().RowByConversation(convID)
	require.True(t, ok)
	assert.Equal(t, "You: hi", row.LastMessageText)
	assert.Equal(t, 0, row.UnreadCount)
	assert.Equal(t, 1, b.unread(t, convID, "bob"))
}

func TestEngine_SendGuards(t *testing.T) {
	b := newBackend()
	api := b.api("alice")
	e := NewEngine(api, nil, nil)

	id, err := e.SendMessage(context.Background(), "   ")
	assert.NoError(t, err)
	assert.Empty(t, id)

	_, err = e.SendMessage(context.Background(), "hello")
	assert.True(t, errprocess.IsCode(err, errprocess.CodeValidation))
	assert.Zero(t, api.sends())
}

func TestEngine_FailedSendRetryDiscard(t *testing.T) {
	b := newBackend()
	api := b.api("alice")
	e := NewEngine(api, nil, nil, WithIDGenerator(sequentialIDs("local")))
	convID := openWith(t, e, "bob")
	ctx := context.Background()

	_, err := e.SendMessage(ctx, "kept")
	require.NoError(t, err)

	api.setSendErr(errprocess.Network("send", errors.New("connection reset")))
	first, err := e.SendMessage(ctx, "one")
	assert.True(t, errprocess.IsCode(err, errprocess.CodeNetwork))
	second, _ := e.SendMessage(ctx, "two")

	th := e.Snapshot().Thread(convID)
	assert.Equal(t, []domain.EntryKind{domain.EntryConfirmed, domain.EntryFailed, domain.EntryFailed}, entryKinds(th))

	// only failed entries can be retried or discarded
	assert.Error(t, e.Retry(ctx, "nope"))
	assert.Error(t, e.Discard(th.Entries[0].Key()))

	api.setSendErr(nil)
	require.NoError(t, e.Retry(ctx, first))
	require.NoError(t, e.Discard(second))

	th = e.Snapshot().Thread(convID)
	assert.Equal(t, []domain.EntryKind{domain.EntryConfirmed, domain.EntryConfirmed}, entryKinds(th))
	assert.Equal(t, "one", th.Entries[1].Message.Text)
	assert.Equal(t, first, th.Entries[1].Message.ClientID)
	assert.Error(t, e.Discard(second))

	msgs, err := b.msgs.FetchLatest(ctx, "bob", convID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestEngine_RetryAfterLostResponseDoesNotDuplicate(t *testing.T) {
	b := newBackend()
	api := b.api("alice")
	e := NewEngine(api, nil, nil, WithIDGenerator(sequentialIDs("local")))
	convID := openWith(t, e, "bob")
	ctx := context.Background()

	// the server stored it but the client never saw the response
	_, err := b.msgs.Send(ctx, "alice", convID, "once", "local-1")
	require.NoError(t, err)
	api.setSendErr(errprocess.Network("send", errors.New("timeout")))
	localID, _ := e.SendMessage(ctx, "once")
	require.Equal(t, "local-1", localID)

	api.setSendErr(nil)
	require.NoError(t, e.Retry(ctx, localID))

	assert.Len(t, e.Snapshot().Thread(convID).Entries, 1)
	msgs, _ := b.msgs.FetchLatest(ctx, "alice", convID)
	assert.Len(t, msgs, 1)
}

func TestEngine_LoadOlder(t *testing.T) {
	b := newBackend()
	convID := b.resolve(t, "alice", "bob")
	for i := 0; i < 120; i++ {
		b.send(t, "bob", convID, fmt.Sprintf("m%d", i))
	}
	api := b.api("alice")
	e := NewEngine(api, nil, nil)
	ctx := context.Background()
	openWith(t, e, "bob")

	th := e.Snapshot().Thread(convID)
	require.Len(t, th.Messages(), 50)
	assert.Equal(t, "m70", th.Messages()[0].Text)
	assert.True(t, th.HasMoreOlder)

	require.NoError(t, e.LoadOlder(ctx))
	th = e.Snapshot().Thread(convID)
	assert.Len(t, th.Messages(), 100)
	assert.Equal(t, "m20", th.Messages()[0].Text)
	assert.True(t, th.HasMoreOlder)

	require.NoError(t, e.LoadOlder(ctx))
	th = e.Snapshot().Thread(convID)
	assert.Len(t, th.Messages(), 120)
	assert.Equal(t, "m0", th.Messages()[0].Text)
	assert.False(t, th.HasMoreOlder)
	assertAscending(t, th)

	require.NoError(t, e.LoadOlder(ctx))
	assert.Len(t, e.Snapshot().Thread(convID).Messages(), 120)
	assert.False(t, e.Snapshot().LoadingOlder[convID])
}

func TestEngine_LoadOlderGuards(t *testing.T) {
	b := newBackend()
	e := NewEngine(b.api("alice"), nil, nil)
	ctx := context.Background()

	// nothing selected
	require.NoError(t, e.LoadOlder(ctx))

	// selected but empty cache has no anchor
	convID := openWith(t, e, "bob")
	require.NoError(t, e.LoadOlder(ctx))
	assert.Empty(t, e.Snapshot().Thread(convID).Entries)
}

func TestEngine_ReadMarkThrottle(t *testing.T) {
	b := newBackend()
	convID := b.resolve(t, "alice", "bob")
	b.send(t, "bob", convID, "a")

	clock := newFakeClock()
	api := b.api("alice")
	e := NewEngine(api, nil, nil, WithClock(clock.Now), WithReadMarkThrottle(3*time.Second))
	ctx := context.Background()

	require.NoError(t, e.RefreshInbox(ctx))
	row, _ := e.Snapshot().RowByConversation(convID)
	assert.Equal(t, 0, row.UnreadCount, "selected row is zeroed locally")
	assert.Equal(t, 1, api.markReadCount(convID))
	assert.Equal(t, 0, b.unread(t, convID, "alice"))
	assert.Equal(t, 0, b.unread(t, convID, "bob"))

	// inside the window the server call is dropped
	b.send(t, "bob", convID, "b")
	require.NoError(t, e.PollActiveConversation(ctx))
	assert.Equal(t, 1, api.markReadCount(convID))
	assert.Equal(t, 1, b.unread(t, convID, "alice"))

	clock.Advance(3 * time.Second)
	b.send(t, "bob", convID, "c")
	require.NoError(t, e.PollActiveConversation(ctx))
	assert.Equal(t, 2, api.markReadCount(convID))
	assert.Equal(t, 0, b.unread(t, convID, "alice"))

	// own messages never trigger a read-mark
	clock.Advance(3 * time.Second)
	b.send(t, "alice", convID, "mine")
	require.NoError(t, e.PollActiveConversation(ctx))
	assert.Equal(t, 2, api.markReadCount(convID))
}

func TestEngine_RefreshInboxSelection(t *testing.T) {
	b := newBackend()
	bobConv := b.resolve(t, "alice", "bob")
	b.send(t, "bob", bobConv, "older")
	carolConv := b.resolve(t, "alice", "carol")
	b.send(t, "carol", carolConv, "newer")
	ctx := context.Background()

	// no preference: first row
	e := NewEngine(b.api("alice"), nil, nil)
	require.NoError(t, e.RefreshInbox(ctx))
	assert.Equal(t, carolConv, e.Snapshot().Selection.ConversationID)

	// persisted last used wins over the first row
	prefs := repository.NewMemoryPreferenceRepository(domain.Selection{UserID: "bob", ConversationID: bobConv})
	e = NewEngine(b.api("alice"), prefs, nil)
	require.NoError(t, e.RefreshInbox(ctx))
	assert.Equal(t, bobConv, e.Snapshot().Selection.ConversationID)
	assert.Equal(t, "older", e.Snapshot().Thread(bobConv).Messages()[0].Text)

	// current selection survives a refresh even when it is not first
	b.send(t, "carol", carolConv, "newest")
	require.NoError(t, e.RefreshInbox(ctx))
	assert.Equal(t, bobConv, e.Snapshot().Selection.ConversationID)
	assert.Equal(t, carolConv, e.Snapshot().Inbox[0].ConversationID)

	// opening persists the choice
	row, _ := e.Snapshot().RowByConversation(carolConv)
	require.NoError(t, e.OpenConversation(ctx, row))
	sel, ok, _ := prefs.LastSelection(ctx)
	require.True(t, ok)
	assert.Equal(t, carolConv, sel.ConversationID)
}

func TestEngine_StaleInboxResponseDropped(t *testing.T) {
	b := newBackend()
	convID := b.resolve(t, "alice", "bob")
	b.send(t, "bob", convID, "one")

	api := b.api("alice")
	e := NewEngine(api, nil, nil)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	api.afterListInbox = func() {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- e.RefreshInbox(ctx) }()
	<-entered

	b.send(t, "bob", convID, "two")
	require.NoError(t, e.RefreshInbox(ctx))
	close(release)
	require.NoError(t, <-done)

	row, ok := e.Snapshot().RowByConversation(convID)
	require.True(t, ok)
	assert.Equal(t, "two", row.LastMessageText)
}

func TestEngine_StaleConversationFetchMergesIntoOrigin(t *testing.T) {
	b := newBackend()
	bobConv := b.resolve(t, "alice", "bob")
	b.send(t, "bob", bobConv, "first")
	carolConv := b.resolve(t, "alice", "carol")

	api := b.api("alice")
	e := NewEngine(api, nil, nil)
	ctx := context.Background()
	openWith(t, e, "bob")

	entered := make(chan struct{})
	release := make(chan struct{})
	api.afterFetch = func(id string) {
		if id == bobConv {
			close(entered)
			<-release
		}
	}

	b.send(t, "bob", bobConv, "late")
	done := make(chan error, 1)
	go func() { done <- e.PollActiveConversation(ctx) }()
	<-entered

	api.mu.Lock()
	api.afterFetch = nil
	api.mu.Unlock()
	row, _ := e.Snapshot().RowByUser("carol")
	require.NoError(t, e.OpenConversation(ctx, row))
	close(release)
	require.NoError(t, <-done)

	s := e.Snapshot()
	assert.Equal(t, carolConv, s.Selection.ConversationID)
	assert.Empty(t, s.Thread(carolConv).Entries)
	texts := []string{}
	for _, m := range s.Thread(bobConv).Messages() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"first", "late"}, texts)
}

func TestEngine_DeepLink(t *testing.T) {
	b := newBackend()
	ctx := context.Background()
	nav := repository.NewMemoryNavigator("dave")
	e := NewEngine(b.api("alice"), nil, nav)

	require.NoError(t, e.RefreshInbox(ctx))
	require.NoError(t, e.ResolveDeepLink(ctx))

	s := e.Snapshot()
	assert.True(t, s.DeepLinkHandled)
	assert.Equal(t, "dave", s.Selection.UserID)
	assert.NotEmpty(t, s.Selection.ConversationID)
	_, pending := nav.DeepLinkTarget()
	assert.False(t, pending)

	// at most once per session
	nav2 := repository.NewMemoryNavigator("erin")
	e.nav = nav2
	require.NoError(t, e.ResolveDeepLink(ctx))
	assert.Equal(t, "dave", e.Snapshot().Selection.UserID)
}

func TestEngine_DeepLinkReusesExistingRow(t *testing.T) {
	b := newBackend()
	ctx := context.Background()
	bobConv := b.resolve(t, "alice", "bob")
	b.send(t, "bob", bobConv, "yo")
	carolConv := b.resolve(t, "alice", "carol")
	b.send(t, "carol", carolConv, "hey")

	e := NewEngine(b.api("alice"), nil, repository.NewMemoryNavigator("bob"))
	require.NoError(t, e.RefreshInbox(ctx))
	require.NoError(t, e.ResolveDeepLink(ctx))

	assert.Equal(t, bobConv, e.Snapshot().Selection.ConversationID)
	assert.Len(t, e.Snapshot().Inbox, 2)
}

func TestEngine_DeepLinkNetworkFailureRearms(t *testing.T) {
	b := newBackend()
	ctx := context.Background()
	api := &failingResolveAPI{hookAPI: b.api("alice"), err: errprocess.Network("resolve", errors.New("offline"))}
	nav := repository.NewMemoryNavigator("dave")
	e := NewEngine(api, nil, nav)

	assert.Error(t, e.ResolveDeepLink(ctx))
	assert.False(t, e.Snapshot().DeepLinkHandled)

	api.err = nil
	require.NoError(t, e.ResolveDeepLink(ctx))
	assert.Equal(t, "dave", e.Snapshot().Selection.UserID)
}

type failingResolveAPI struct {
	*hookAPI
	err error
}

func (f *failingResolveAPI) Resolve(ctx context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.hookAPI.Resolve(ctx, userID)
}

func TestEngine_StartPolls(t *testing.T) {
	b := newBackend()
	convID := b.resolve(t, "alice", "bob")
	b.send(t, "bob", convID, "hello")

	e := NewEngine(b.api("alice"), nil, nil, WithPollInterval(20*time.Millisecond))
	e.Start(context.Background())
	defer e.Stop()

	assert.Eventually(t, func() bool {
		return e.Snapshot().Selection.ConversationID == convID
	}, 2*time.Second, 10*time.Millisecond)

	b.send(t, "bob", convID, "are you there")
	assert.Eventually(t, func() bool {
		return len(e.Snapshot().Thread(convID).Messages()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	e.Stop()
	assert.False(t, e.inboxPoller.Running())
	assert.False(t, e.convPoller.Running())
}

func waitEntered(t *testing.T, h *hold) {
	t.Helper()
	select {
	case <-h.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("call never started")
	}
}

func TestEngine_LoadOlderSingleFlight(t *testing.T) {
	b := newBackend()
	convID := b.resolve(t, "alice", "bob")
	for i := 0; i < 120; i++ {
		b.send(t, "bob", convID, fmt.Sprintf("m%d", i))
	}
	api := b.api("alice")
	e := NewEngine(api, nil, nil)
	ctx := context.Background()
	openWith(t, e, "bob")

	h := api.holdFetchBefore()
	done := make(chan error, 1)
	go func() { done <- e.LoadOlder(ctx) }()
	waitEntered(t, h)

	require.NoError(t, e.LoadOlder(ctx))
	assert.Equal(t, 1, api.fetchBeforeCalls())
	assert.True(t, e.Snapshot().LoadingOlder[convID])

	close(h.release)
	require.NoError(t, <-done)
	th := e.Snapshot().Thread(convID)
	assert.Len(t, th.Messages(), 100)
	assert.False(t, e.Snapshot().LoadingOlder[convID])
}

func TestEngine_LoadOlderDroppedAfterReopen(t *testing.T) {
	b := newBackend()
	convID := b.resolve(t, "alice", "bob")
	for i := 0; i < 120; i++ {
		b.send(t, "bob", convID, fmt.Sprintf("m%d", i))
	}
	api := b.api("alice")
	e := NewEngine(api, nil, nil)
	ctx := context.Background()
	openWith(t, e, "bob")
	require.NoError(t, e.LoadOlder(ctx))
	require.Len(t, e.Snapshot().Thread(convID).Messages(), 100)

	h := api.holdFetchBefore()
	done := make(chan error, 1)
	go func() { done <- e.LoadOlder(ctx) }()
	waitEntered(t, h)

	// re-open replaces the cache with the latest page while the older page is in flight
	row, ok := e.Snapshot().RowByConversation(convID)
	require.True(t, ok)
	require.NoError(t, e.OpenConversation(ctx, row))
	close(h.release)
	require.NoError(t, <-done)

	th := e.Snapshot().Thread(convID)
	require.Len(t, th.Messages(), 50)
	assert.Equal(t, "m70", th.Messages()[0].Text)
	assert.True(t, th.HasMoreOlder)
	assert.False(t, e.Snapshot().LoadingOlder[convID])

	api.mu.Lock()
	api.beforeHold = nil
	api.mu.Unlock()
	require.NoError(t, e.LoadOlder(ctx))
	th = e.Snapshot().Thread(convID)
	require.Len(t, th.Messages(), 100)
	assert.Equal(t, "m20", th.Messages()[0].Text)
	assertAscending(t, th)
}

func TestEngine_StopWaitsForInFlightTicks(t *testing.T) {
	b := newBackend()
	convID := b.resolve(t, "alice", "bob")
	b.send(t, "bob", convID, "hello")

	api := b.api("alice")
	h := api.holdFetchLatest()
	e := NewEngine(api, nil, nil, WithPollInterval(time.Hour))
	rec := &recorder{}
	e.Subscribe(rec.record)

	e.Start(context.Background())
	waitEntered(t, h)

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}

	seen := len(rec.all())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, seen, len(rec.all()))
	assert.Empty(t, e.Snapshot().Thread(convID).Entries)
}

func TestEngine_PendingCarriesSender(t *testing.T) {
	b := newBackend()
	api := b.api("alice")
	e := NewEngine(api, nil, nil, WithSelf("alice"), WithIDGenerator(sequentialIDs("local")))
	rec := &recorder{}
	e.Subscribe(rec.record)
	convID := openWith(t, e, "bob")

	_, err := e.SendMessage(context.Background(), "hi")
	require.NoError(t, err)

	sawPending := false
	for _, s := range rec.all() {
		th := s.Thread(convID)
		if len(th.Entries) == 1 && th.Entries[0].Kind == domain.EntryPending {
			sawPending = true
			assert.Equal(t, "alice", th.Entries[0].Message.SenderID)
			assert.Equal(t, "bob", th.Entries[0].Message.ReceiverID)
		}
	}
	assert.True(t, sawPending)
}

func TestEngine_FailedSendRollsBackPreview(t *testing.T) {
	b := newBackend()
	api := b.api("alice")
	e := NewEngine(api, nil, nil)
	convID := openWith(t, e, "bob")
	ctx := context.Background()

	_, err := e.SendMessage(ctx, "kept")
	require.NoError(t, err)

	api.setSendErr(errprocess.Network("send", errors.New("offline")))
	_, err = e.SendMessage(ctx, "lost")
	require.Error(t, err)

	row, ok := e.Snapshot().RowByConversation(convID)
	require.True(t, ok)
	assert.Equal(t, "You: kept", row.LastMessageText)
}
