package app

import (
	"context"
	"strings"
	"sync"
	"time"

	chat "social_chat_service/internal/chat/domain"
	"social_chat_service/internal/chatclient/domain"
	errprocess "social_chat_service/pkg/err"
	"social_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval inbox and active conversation polling
	DefaultPollInterval = 4 * time.Second
	// DefaultReadMarkThrottle min gap between read-mark calls per conversation
	DefaultReadMarkThrottle = 3 * time.Second
)

// Option configure an Engine
type Option func(*Engine)

// WithPollInterval override the polling interval
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithReadMarkThrottle override the read-mark throttle window
func WithReadMarkThrottle(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.readMarkThrottle = d
		}
	}
}

// WithClock inject the clock used for optimistic timestamps and throttling
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSelf member id of the local user, stamped on optimistic messages
func WithSelf(memberID string) Option {
	return func(e *Engine) {
		e.self = memberID
	}
}

// WithIDGenerator inject the local id generator
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// Engine client sync state machine. State is replaced, never mutated, under
// mu; server calls run outside the lock and merge back by the conversation id
// captured when the call was issued.
type Engine struct {
	api   ChatAPI
	prefs PreferenceRepository
	nav   Navigator
	self  string

	pollInterval     time.Duration
	readMarkThrottle time.Duration
	now              func() time.Time
	newID            func() string

	mu           sync.Mutex
	state        domain.State
	subscribers  []func(domain.State)
	readMarkAt   map[string]time.Time
	inboxSeq     uint64
	inboxApplied uint64
	lastUsed     *domain.Selection

	runCtx      context.Context
	cancel      context.CancelFunc
	inboxPoller *Poller
	convPoller  *Poller
}

// NewEngine 建立 Engine. prefs and nav may be nil
func NewEngine(api ChatAPI, prefs PreferenceRepository, nav Navigator, opts ...Option) *Engine {
	e := &Engine{
		api:              api,
		prefs:            prefs,
		nav:              nav,
		pollInterval:     DefaultPollInterval,
		readMarkThrottle: DefaultReadMarkThrottle,
		now:              time.Now,
		newID:            uuid.NewString,
		state:            domain.NewState(),
		readMarkAt:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.inboxPoller = NewPoller(e.pollInterval, e.inboxTick)
	e.convPoller = NewPoller(e.pollInterval, e.conversationTick)
	return e
}

// Start inbox polling (immediate, then every interval) and the active
// conversation poller when something is selected
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	e.runCtx, e.cancel = context.WithCancel(ctx)
	runCtx := e.runCtx
	selected := e.state.Selection.ConversationID != ""
	e.mu.Unlock()

	e.inboxPoller.Start(runCtx, true)
	if selected {
		e.convPoller.Start(runCtx, false)
	}
	logger.Log.Info("sync engine started", zap.Duration("poll_interval", e.pollInterval))
}

// Stop all pollers
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel, e.runCtx = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.inboxPoller.Stop()
	e.convPoller.Stop()
	logger.Log.Info("sync engine stopped")
}

// Snapshot current state
func (e *Engine) Snapshot() domain.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe fn is called after every state change, outside the engine lock
func (e *Engine) Subscribe(fn func(domain.State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// apply run fn under the lock; subscribers are notified when fn reports a change
func (e *Engine) apply(fn func(s domain.State) (domain.State, bool)) {
	e.mu.Lock()
	next, changed := fn(e.state)
	if !changed {
		e.mu.Unlock()
		return
	}
	e.state = next
	subs := make([]func(domain.State), len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
}

func (e *Engine) inboxTick(ctx context.Context) {
	if err := e.RefreshInbox(ctx); err != nil {
		logger.Log.Debug("inbox refresh failed", zap.Error(err))
		return
	}
	if err := e.ResolveDeepLink(ctx); err != nil {
		logger.Log.Warn("deep link failed", zap.Error(err))
	}
}

func (e *Engine) conversationTick(ctx context.Context) {
	if err := e.PollActiveConversation(ctx); err != nil {
		logger.Log.Debug("conversation poll failed", zap.Error(err))
	}
}

func (e *Engine) restartConversationPoller() {
	e.mu.Lock()
	runCtx := e.runCtx
	e.mu.Unlock()
	if runCtx == nil || runCtx.Err() != nil {
		return
	}
	e.convPoller.Start(runCtx, false)
}

// RefreshInbox replace the inbox. Keeps the selection when its row is still
// listed, otherwise falls back to the last used selection, then to the first
// row. Responses older than the last applied one are dropped.
func (e *Engine) RefreshInbox(ctx context.Context) error {
	e.loadLastUsed(ctx)

	e.mu.Lock()
	e.inboxSeq++
	seq := e.inboxSeq
	e.mu.Unlock()

	rows, err := e.api.ListInbox(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		open *chat.InboxRow
		heal string
	)
	e.apply(func(s domain.State) (domain.State, bool) {
		if seq < e.inboxApplied {
			return s, false
		}
		e.inboxApplied = seq
		s = s.WithInbox(rows)

		sel := s.Selection
		if r, ok := s.RowByConversation(sel.ConversationID); ok {
			if r.UnreadCount > 0 {
				heal = r.ConversationID
			}
			return s, true
		}
		if len(s.Inbox) == 0 {
			return s, true
		}

		pick := s.Inbox[0]
		if e.lastUsed != nil {
			if r, ok := s.RowByConversation(e.lastUsed.ConversationID); ok {
				pick = r
			} else if r, ok := s.RowByUser(e.lastUsed.UserID); ok && e.lastUsed.UserID != "" {
				pick = r
			}
		}
		open = &pick
		return s, true
	})

	if heal != "" {
		e.readMark(ctx, heal)
	}
	if open != nil {
		return e.OpenConversation(ctx, *open)
	}
	return nil
}

func (e *Engine) loadLastUsed(ctx context.Context) {
	e.mu.Lock()
	loaded := e.lastUsed != nil
	e.mu.Unlock()
	if loaded || e.prefs == nil {
		return
	}

	sel, ok, err := e.prefs.LastSelection(ctx)
	if err != nil {
		logger.Log.Warn("load last selection failed", zap.Error(err))
		return
	}
	if !ok {
		sel = domain.Selection{}
	}
	e.mu.Lock()
	if e.lastUsed == nil {
		e.lastUsed = &sel
	}
	e.mu.Unlock()
}

func (e *Engine) saveSelection(ctx context.Context, sel domain.Selection) {
	e.mu.Lock()
	e.lastUsed = &sel
	e.mu.Unlock()
	if e.prefs == nil {
		return
	}
	if err := e.prefs.SaveSelection(ctx, sel); err != nil {
		logger.Log.Warn("save last selection failed", zap.String("conversation_id", sel.ConversationID), zap.Error(err))
	}
}

// ResolveDeepLink open the deep-link target once per session. A network
// failure while resolving re-arms it for the next inbox tick.
func (e *Engine) ResolveDeepLink(ctx context.Context) error {
	if e.nav == nil {
		return nil
	}

	claimed := false
	e.apply(func(s domain.State) (domain.State, bool) {
		if s.DeepLinkHandled {
			return s, false
		}
		claimed = true
		s.DeepLinkHandled = true
		return s, true
	})
	if !claimed {
		return nil
	}

	target, ok := e.nav.DeepLinkTarget()
	if !ok || strings.TrimSpace(target) == "" {
		return nil
	}

	row, found := e.Snapshot().RowByUser(target)
	if !found {
		id, err := e.api.Resolve(ctx, target)
		if err != nil {
			if errprocess.IsCode(err, errprocess.CodeNetwork) {
				e.apply(func(s domain.State) (domain.State, bool) {
					s.DeepLinkHandled = false
					return s, true
				})
			}
			return err
		}
		row = chat.InboxRow{
			User:           chat.Profile{MemberID: target, Username: target},
			ConversationID: id,
		}
	}
	e.nav.ClearDeepLink()
	logger.Log.Info("deep link resolved", zap.String("user_id", target), zap.String("conversation_id", row.ConversationID))

	return e.OpenConversation(ctx, row)
}

// OpenConversation select row, resolving its conversation first when needed,
// then replace-fetch the latest page
func (e *Engine) OpenConversation(ctx context.Context, row chat.InboxRow) error {
	if row.ConversationID == "" {
		id, err := e.api.Resolve(ctx, row.User.MemberID)
		if err != nil {
			return err
		}
		row.ConversationID = id
	}
	convID := row.ConversationID
	sel := domain.Selection{UserID: row.User.MemberID, ConversationID: convID}

	unread := row.UnreadCount
	changed := false
	e.apply(func(s domain.State) (domain.State, bool) {
		if cur, ok := s.RowByConversation(convID); ok {
			if cur.UnreadCount > unread {
				unread = cur.UnreadCount
			}
		} else {
			s = s.WithRow(row, false)
		}
		changed = s.Selection != sel
		s = s.WithSelection(sel)
		if _, ok := s.Threads[convID]; !ok {
			s = s.WithThread(convID, domain.NewThread())
		}
		return s, true
	})

	e.saveSelection(ctx, sel)
	if changed {
		e.restartConversationPoller()
	}
	if unread > 0 {
		e.readMark(ctx, convID)
	}

	msgs, err := e.api.FetchLatest(ctx, convID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.apply(func(s domain.State) (domain.State, bool) {
		return s.WithThread(convID, s.Thread(convID).ReplaceConfirmed(msgs)), true
	})
	return nil
}

// readMark zero unread locally, then call the server at most once per
// conversation per throttle window. Triggers inside the window are dropped.
func (e *Engine) readMark(ctx context.Context, convID string) {
	now := e.now()
	send := false
	e.apply(func(s domain.State) (domain.State, bool) {
		next, changed := s.ZeroUnread(convID)
		if last, ok := e.readMarkAt[convID]; !ok || now.Sub(last) >= e.readMarkThrottle {
			e.readMarkAt[convID] = now
			send = true
		}
		return next, changed
	})
	if !send {
		logger.Log.Debug("read mark throttled", zap.String("conversation_id", convID))
		return
	}
	if ctx.Err() != nil {
		return
	}
	if err := e.api.MarkRead(ctx, convID); err != nil {
		logger.Log.Warn("mark read failed", zap.String("conversation_id", convID), zap.Error(err))
	}
}

// LoadOlder prepend the page before the oldest cached message of the
// selected conversation. Single-flight per conversation.
func (e *Engine) LoadOlder(ctx context.Context) error {
	var (
		convID string
		anchor time.Time
		ok     bool
	)
	e.apply(func(s domain.State) (domain.State, bool) {
		id := s.Selection.ConversationID
		if id == "" || s.LoadingOlder[id] {
			return s, false
		}
		t := s.Thread(id)
		if !t.HasMoreOlder {
			return s, false
		}
		oldest, has := t.Oldest()
		if !has {
			return s, false
		}
		convID, anchor, ok = id, oldest, true
		return s.WithLoadingOlder(id, true), true
	})
	if !ok {
		return nil
	}

	msgs, err := e.api.FetchBefore(ctx, convID, anchor)
	if err == nil {
		err = ctx.Err()
	}
	e.apply(func(s domain.State) (domain.State, bool) {
		s = s.WithLoadingOlder(convID, false)
		if err != nil {
			return s, true
		}
		t := s.Thread(convID)
		// the thread was replaced while the page was in flight
		if oldest, has := t.Oldest(); !has || !oldest.Equal(anchor) {
			return s, true
		}
		t = t.MergeHead(msgs)
		if len(msgs) < chat.PageSize {
			t.HasMoreOlder = false
		}
		return s.WithThread(convID, t), true
	})
	return err
}

// PollActiveConversation fetch messages newer than the newest cached one.
// A new message from the other participant triggers the read-mark flow.
func (e *Engine) PollActiveConversation(ctx context.Context) error {
	snap := e.Snapshot()
	convID := snap.Selection.ConversationID
	if convID == "" {
		return nil
	}
	otherID := snap.Selection.UserID

	var (
		msgs []chat.Message
		err  error
	)
	if newest, has := snap.Thread(convID).Newest(); has {
		msgs, err = e.api.FetchSince(ctx, convID, newest)
	} else {
		msgs, err = e.api.FetchLatest(ctx, convID)
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	fresh := false
	stillSelected := false
	e.apply(func(s domain.State) (domain.State, bool) {
		t := s.Thread(convID)
		for _, m := range msgs {
			if m.SenderID == otherID && !t.Has(m.ID) {
				fresh = true
			}
		}
		stillSelected = s.Selection.ConversationID == convID
		return s.WithThread(convID, t.MergeTail(msgs)), true
	})

	if fresh && stillSelected {
		e.readMark(ctx, convID)
	}
	return nil
}

// SendMessage optimistic send into the selected conversation. Blank text is
// ignored. On failure the entry stays in the thread as failed, the inbox
// preview goes back to the previous row and the error is returned with its
// local id.
func (e *Engine) SendMessage(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	localID := e.newID()
	now := e.now().UTC()

	var (
		convID     string
		prev       chat.InboxRow
		hadPrev    bool
		optimistic chat.InboxRow
	)
	e.apply(func(s domain.State) (domain.State, bool) {
		sel := s.Selection
		if sel.ConversationID == "" {
			return s, false
		}
		convID = sel.ConversationID
		entry := domain.Pending(localID, chat.Message{
			ConversationID: convID,
			SenderID:       e.self,
			ReceiverID:     sel.UserID,
			Text:           text,
			CreatedAt:      now,
		})
		prev, hadPrev = s.RowByConversation(convID)
		s = s.WithThread(convID, s.Thread(convID).AppendLocal(entry))
		s = s.WithPreview(convID, text, now)
		optimistic, _ = s.RowByConversation(convID)
		return s, true
	})
	if convID == "" {
		return "", errprocess.Validation("no conversation selected")
	}

	err := e.deliver(ctx, convID, localID, text)
	if err != nil && hadPrev {
		e.apply(func(s domain.State) (domain.State, bool) {
			return s.RestorePreview(optimistic, prev)
		})
	}
	return localID, err
}

func (e *Engine) deliver(ctx context.Context, convID, localID, text string) error {
	msg, err := e.api.Send(ctx, convID, text, localID)
	if err != nil {
		e.apply(func(s domain.State) (domain.State, bool) {
			t, ok := s.Thread(convID).SetLocalKind(localID, domain.EntryFailed)
			if !ok {
				return s, false
			}
			return s.WithThread(convID, t), true
		})
		logger.Log.Warn("send failed",
			zap.String("conversation_id", convID),
			zap.String("local_id", localID),
			zap.Error(err),
		)
		return err
	}

	e.apply(func(s domain.State) (domain.State, bool) {
		s = s.WithThread(convID, s.Thread(convID).Confirm(localID, *msg))
		return s.WithPreview(convID, msg.Text, msg.CreatedAt), true
	})
	return nil
}

// Retry re-send a failed entry with the same local id
func (e *Engine) Retry(ctx context.Context, localID string) error {
	var convID, text string
	e.apply(func(s domain.State) (domain.State, bool) {
		id, entry, ok := s.FindLocal(localID)
		if !ok || entry.Kind != domain.EntryFailed {
			return s, false
		}
		t, _ := s.Thread(id).SetLocalKind(localID, domain.EntryPending)
		convID, text = id, entry.Message.Text
		return s.WithThread(id, t), true
	})
	if convID == "" {
		return errprocess.Validation("no failed message " + localID)
	}
	return e.deliver(ctx, convID, localID, text)
}

// Discard drop a failed entry locally, no server call
func (e *Engine) Discard(localID string) error {
	found := false
	e.apply(func(s domain.State) (domain.State, bool) {
		id, entry, ok := s.FindLocal(localID)
		if !ok || entry.Kind != domain.EntryFailed {
			return s, false
		}
		t, _ := s.Thread(id).RemoveLocal(localID)
		found = true
		return s.WithThread(id, t), true
	})
	if !found {
		return errprocess.Validation("no failed message " + localID)
	}
	return nil
}
