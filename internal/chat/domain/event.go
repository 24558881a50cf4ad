package domain

import "time"

// EventType kafka event name
type EventType string

const (
	// EventMessageSent after a send commits
	EventMessageSent EventType = "message.sent"
	// EventConversationRead after a read-mark commits
	EventConversationRead EventType = "conversation.read"
)

// Event published for downstream consumers (notification mail etc.)
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId"`
	MemberID       string    `json:"memberId"`
	Message        *Message  `json:"message,omitempty"`
	At             time.Time `json:"at"`
}
