package domain

import (
	"time"

	chat "social_chat_service/internal/chat/domain"
)

// Selection the open conversation and its other participant
type Selection struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// IsZero nothing selected
func (s Selection) IsZero() bool {
	return s.UserID == "" && s.ConversationID == ""
}

// State immutable snapshot of the sync engine. Use the With* transforms,
// never mutate a State obtained from Snapshot.
type State struct {
	Inbox           []chat.InboxRow
	Threads         map[string]Thread
	LoadingOlder    map[string]bool
	Selection       Selection
	DeepLinkHandled bool
}

// NewState empty state
func NewState() State {
	return State{
		Inbox:        []chat.InboxRow{},
		Threads:      map[string]Thread{},
		LoadingOlder: map[string]bool{},
	}
}

// Thread cached thread of a conversation, empty thread when unknown
func (s State) Thread(conversationID string) Thread {
	if t, ok := s.Threads[conversationID]; ok {
		return t
	}
	return NewThread()
}

// SelectedThread thread of the current selection
func (s State) SelectedThread() Thread {
	return s.Thread(s.Selection.ConversationID)
}

// WithThread replace one thread
func (s State) WithThread(conversationID string, t Thread) State {
	threads := make(map[string]Thread, len(s.Threads)+1)
	for k, v := range s.Threads {
		threads[k] = v
	}
	threads[conversationID] = t
	s.Threads = threads
	return s
}

// WithLoadingOlder set the single-flight flag of a conversation
func (s State) WithLoadingOlder(conversationID string, loading bool) State {
	flags := make(map[string]bool, len(s.LoadingOlder)+1)
	for k, v := range s.LoadingOlder {
		if v {
			flags[k] = v
		}
	}
	if loading {
		flags[conversationID] = true
	} else {
		delete(flags, conversationID)
	}
	s.LoadingOlder = flags
	return s
}

// WithInbox replace the inbox rows
func (s State) WithInbox(rows []chat.InboxRow) State {
	out := make([]chat.InboxRow, len(rows))
	copy(out, rows)
	s.Inbox = out
	return s
}

// WithSelection change selection
func (s State) WithSelection(sel Selection) State {
	s.Selection = sel
	return s
}

// RowByConversation inbox row of a conversation
func (s State) RowByConversation(conversationID string) (chat.InboxRow, bool) {
	if conversationID == "" {
		return chat.InboxRow{}, false
	}
	for _, r := range s.Inbox {
		if r.ConversationID == conversationID {
			return r, true
		}
	}
	return chat.InboxRow{}, false
}

// RowByUser inbox row whose other participant is userID
func (s State) RowByUser(userID string) (chat.InboxRow, bool) {
	for _, r := range s.Inbox {
		if r.User.MemberID == userID {
			return r, true
		}
	}
	return chat.InboxRow{}, false
}

// WithRow upsert a row matched by conversation id, or by user when the row
// has no conversation yet. toTop moves it to the first position.
func (s State) WithRow(row chat.InboxRow, toTop bool) State {
	rows := make([]chat.InboxRow, 0, len(s.Inbox)+1)
	found := false
	for _, r := range s.Inbox {
		same := (row.ConversationID != "" && r.ConversationID == row.ConversationID) ||
			(r.ConversationID == "" && r.User.MemberID == row.User.MemberID)
		if same && !found {
			found = true
			if toTop {
				continue
			}
			rows = append(rows, row)
			continue
		}
		rows = append(rows, r)
	}
	if toTop || !found {
		rows = append([]chat.InboxRow{row}, rows...)
	}
	s.Inbox = rows
	return s
}

// ZeroUnread local read: unread of the conversation row becomes 0
func (s State) ZeroUnread(conversationID string) (State, bool) {
	row, ok := s.RowByConversation(conversationID)
	if !ok || row.UnreadCount == 0 {
		return s, false
	}
	row.UnreadCount = 0
	return s.WithRow(row, false), true
}

// WithPreview optimistic inbox preview for a message sent by the local user
func (s State) WithPreview(conversationID, text string, at time.Time) State {
	row, ok := s.RowByConversation(conversationID)
	if !ok {
		return s
	}
	at = at.UTC()
	row.LastMessageAt = &at
	row.LastMessageText = chat.YouPrefix + text
	row.UnreadCount = 0
	return s.WithRow(row, true)
}

// RestorePreview put prev back when the row still shows the optimistic
// preview. A refresh that already replaced the row wins.
func (s State) RestorePreview(optimistic, prev chat.InboxRow) (State, bool) {
	cur, ok := s.RowByConversation(prev.ConversationID)
	if !ok || cur.LastMessageText != optimistic.LastMessageText || !sameTime(cur.LastMessageAt, optimistic.LastMessageAt) {
		return s, false
	}
	prev.UnreadCount = cur.UnreadCount
	return s.WithRow(prev, false), true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// FindLocal locate a local entry across all threads
func (s State) FindLocal(localID string) (string, Entry, bool) {
	for id, t := range s.Threads {
		if e, ok := t.FindLocal(localID); ok {
			return id, e, true
		}
	}
	return "", Entry{}, false
}
