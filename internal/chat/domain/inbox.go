package domain

import "time"

// YouPrefix preview prefix when the caller sent the last message
const YouPrefix = "You: "

// Profile 對方公開資料
type Profile struct {
	MemberID  string `json:"id"`
	Username  string `json:"username"`
	AvatarKey string `json:"avatarKey,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// InboxRow per-caller projection of a conversation
type InboxRow struct {
	User            Profile    `json:"user"`
	ConversationID  string     `json:"conversationId"`
	LastMessageAt   *time.Time `json:"lastMessageAt"`
	LastMessageText string     `json:"lastMessageText"`
	UnreadCount     int        `json:"unreadCount"`
}

// NewInboxRow project conv for caller with the other side profile
func NewInboxRow(conv Conversation, caller string, other Profile) InboxRow {
	text := conv.LastMessageText
	if conv.LastMessageAt != nil && conv.LastMessageSenderID == caller {
		text = YouPrefix + text
	}
	return InboxRow{
		User:            other,
		ConversationID:  conv.ID,
		LastMessageAt:   conv.LastMessageAt,
		LastMessageText: text,
		UnreadCount:     conv.UnreadFor(caller),
	}
}
