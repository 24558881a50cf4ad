package domain

import (
	chat "social_chat_service/internal/chat/domain"
)

// EntryKind tag of a thread entry
type EntryKind int

const (
	// EntryConfirmed persisted by the server
	EntryConfirmed EntryKind = iota
	// EntryPending optimistic, send in flight
	EntryPending
	// EntryFailed optimistic, send failed, waits for retry or discard
	EntryFailed
)

// Status display status of an entry
type Status string

const (
	StatusConfirmed Status = ""
	StatusSending   Status = "sending"
	StatusFailed    Status = "failed"
)

// Entry one row of a conversation thread.
// Local entries (pending, failed) are keyed by LocalID, which is also sent to
// the server as the message clientId.
type Entry struct {
	Kind    EntryKind
	LocalID string
	Message chat.Message
}

// Confirmed wrap a server message
func Confirmed(m chat.Message) Entry {
	return Entry{Kind: EntryConfirmed, Message: m}
}

// Pending optimistic entry for a send in flight
func Pending(localID string, m chat.Message) Entry {
	m.ClientID = localID
	return Entry{Kind: EntryPending, LocalID: localID, Message: m}
}

// Key stable identity: message id for confirmed, local id otherwise
func (e Entry) Key() string {
	if e.Kind == EntryConfirmed {
		return e.Message.ID
	}
	return e.LocalID
}

// IsLocal pending or failed
func (e Entry) IsLocal() bool {
	return e.Kind != EntryConfirmed
}

// Status sending / failed / "" (confirmed)
func (e Entry) Status() Status {
	switch e.Kind {
	case EntryPending:
		return StatusSending
	case EntryFailed:
		return StatusFailed
	default:
		return StatusConfirmed
	}
}

// WithKind copy with a different tag
func (e Entry) WithKind(k EntryKind) Entry {
	e.Kind = k
	return e
}
