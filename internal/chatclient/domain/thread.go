package domain

import (
	"sort"
	"time"

	chat "social_chat_service/internal/chat/domain"
)

// Thread cached messages of one conversation.
// Confirmed entries come first in ascending createdAt, local entries trail.
// Every method returns a new Thread and leaves the receiver untouched.
type Thread struct {
	Entries      []Entry
	HasMoreOlder bool
}

// NewThread empty thread, older pages assumed until a short page is seen
func NewThread() Thread {
	return Thread{HasMoreOlder: true}
}

func (t Thread) split() (confirmed, local []Entry) {
	confirmed = make([]Entry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.IsLocal() {
			local = append(local, e)
			continue
		}
		confirmed = append(confirmed, e)
	}
	return confirmed, local
}

// Messages confirmed messages in cache order
func (t Thread) Messages() []chat.Message {
	out := make([]chat.Message, 0, len(t.Entries))
	for _, e := range t.Entries {
		if !e.IsLocal() {
			out = append(out, e.Message)
		}
	}
	return out
}

// Oldest createdAt of the first confirmed entry
func (t Thread) Oldest() (time.Time, bool) {
	for _, e := range t.Entries {
		if !e.IsLocal() {
			return e.Message.CreatedAt, true
		}
	}
	return time.Time{}, false
}

// Newest createdAt of the last confirmed entry
func (t Thread) Newest() (time.Time, bool) {
	for i := len(t.Entries) - 1; i >= 0; i-- {
		if !t.Entries[i].IsLocal() {
			return t.Entries[i].Message.CreatedAt, true
		}
	}
	return time.Time{}, false
}

// Has reports whether a confirmed message id is cached
func (t Thread) Has(id string) bool {
	for _, e := range t.Entries {
		if !e.IsLocal() && e.Message.ID == id {
			return true
		}
	}
	return false
}

// FindLocal pending or failed entry by local id
func (t Thread) FindLocal(localID string) (Entry, bool) {
	for _, e := range t.Entries {
		if e.IsLocal() && e.LocalID == localID {
			return e, true
		}
	}
	return Entry{}, false
}

// MergeTail merge a newer batch (ascending). Known ids are skipped and a
// confirmed message replaces the local entry whose id it carries as clientId.
func (t Thread) MergeTail(batch []chat.Message) Thread {
	confirmed, local := t.split()
	seen := idSet(confirmed)

	for _, m := range batch {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		confirmed = insertConfirmed(confirmed, m)
		local = dropLocal(local, m.ClientID)
	}
	return Thread{Entries: append(confirmed, local...), HasMoreOlder: t.HasMoreOlder}
}

// MergeHead merge an older batch (ascending) in front of the cache
func (t Thread) MergeHead(batch []chat.Message) Thread {
	confirmed, local := t.split()
	seen := idSet(confirmed)

	head := make([]Entry, 0, len(batch)+len(confirmed))
	var late []chat.Message
	for _, m := range batch {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		local = dropLocal(local, m.ClientID)
		if len(confirmed) > 0 && m.CreatedAt.After(confirmed[0].Message.CreatedAt) {
			late = append(late, m)
			continue
		}
		head = append(head, Confirmed(m))
	}

	out := append(head, confirmed...)
	for _, m := range late {
		out = insertConfirmed(out, m)
	}
	return Thread{Entries: append(out, local...), HasMoreOlder: t.HasMoreOlder}
}

// ReplaceConfirmed initial load: the batch becomes the confirmed window.
// Local entries and cached messages newer than the batch survive.
func (t Thread) ReplaceConfirmed(batch []chat.Message) Thread {
	cached, local := t.split()

	out := make([]Entry, 0, len(batch)+len(local))
	seen := make(map[string]bool, len(batch))
	for _, m := range batch {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = insertConfirmed(out, m)
		local = dropLocal(local, m.ClientID)
	}

	for _, e := range cached {
		if seen[e.Message.ID] {
			continue
		}
		if len(out) == 0 || e.Message.CreatedAt.After(out[len(out)-1].Message.CreatedAt) {
			seen[e.Message.ID] = true
			out = append(out, e)
		}
	}

	return Thread{
		Entries:      append(out, local...),
		HasMoreOlder: len(batch) >= chat.PageSize,
	}
}

// AppendLocal add an optimistic entry at the tail
func (t Thread) AppendLocal(e Entry) Thread {
	entries := make([]Entry, 0, len(t.Entries)+1)
	entries = append(entries, t.Entries...)
	return Thread{Entries: append(entries, e), HasMoreOlder: t.HasMoreOlder}
}

// SetLocalKind retag a local entry
func (t Thread) SetLocalKind(localID string, kind EntryKind) (Thread, bool) {
	entries := make([]Entry, len(t.Entries))
	copy(entries, t.Entries)
	for i, e := range entries {
		if e.IsLocal() && e.LocalID == localID {
			entries[i] = e.WithKind(kind)
			return Thread{Entries: entries, HasMoreOlder: t.HasMoreOlder}, true
		}
	}
	return t, false
}

// RemoveLocal drop a local entry, confirmed entries are never removed
func (t Thread) RemoveLocal(localID string) (Thread, bool) {
	entries := make([]Entry, 0, len(t.Entries))
	found := false
	for _, e := range t.Entries {
		if e.IsLocal() && e.LocalID == localID {
			found = true
			continue
		}
		entries = append(entries, e)
	}
	if !found {
		return t, false
	}
	return Thread{Entries: entries, HasMoreOlder: t.HasMoreOlder}, true
}

// Confirm swap the local entry for its server copy
func (t Thread) Confirm(localID string, m chat.Message) Thread {
	next, _ := t.RemoveLocal(localID)
	return next.MergeTail([]chat.Message{m})
}

func idSet(entries []Entry) map[string]bool {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[e.Message.ID] = true
	}
	return seen
}

func dropLocal(local []Entry, clientID string) []Entry {
	if clientID == "" || len(local) == 0 {
		return local
	}
	out := make([]Entry, 0, len(local))
	for _, e := range local {
		if e.LocalID != clientID {
			out = append(out, e)
		}
	}
	return out
}

// insertConfirmed appends when m is not older than the tail, otherwise places
// it after every entry with createdAt <= m.createdAt
func insertConfirmed(entries []Entry, m chat.Message) []Entry {
	n := len(entries)
	if n == 0 || !m.CreatedAt.Before(entries[n-1].Message.CreatedAt) {
		return append(entries, Confirmed(m))
	}
	idx := sort.Search(n, func(i int) bool {
		return entries[i].Message.CreatedAt.After(m.CreatedAt)
	})
	entries = append(entries, Entry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = Confirmed(m)
	return entries
}
