package domain

import "time"

// Conversation 兩人對話, member_a < member_b 保證一對成員只有一筆
type Conversation struct {
	ID      string `bson:"_id" json:"id"`
	MemberA string `bson:"member_a" json:"memberA"`
	MemberB string `bson:"member_b" json:"memberB"`

	LastMessageAt       *time.Time `bson:"last_message_at,omitempty" json:"lastMessageAt,omitempty"`
	LastMessageText     string     `bson:"last_message_text" json:"lastMessageText"`
	LastMessageSenderID string     `bson:"last_message_sender_id" json:"lastMessageSenderId"`

	LastReadAtA *time.Time `bson:"last_read_at_a,omitempty" json:"lastReadAtA,omitempty"`
	LastReadAtB *time.Time `bson:"last_read_at_b,omitempty" json:"lastReadAtB,omitempty"`
	UnreadA     int        `bson:"unread_a" json:"unreadA"`
	UnreadB     int        `bson:"unread_b" json:"unreadB"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// CanonicalPair sort two member ids
func CanonicalPair(x, y string) (string, string) {
	if y < x {
		return y, x
	}
	return x, y
}

// HasMember check memberID is one of the two participants
func (c *Conversation) HasMember(memberID string) bool {
	return memberID != "" && (c.MemberA == memberID || c.MemberB == memberID)
}

// Other return the participant that is not memberID
func (c *Conversation) Other(memberID string) string {
	if c.MemberA == memberID {
		return c.MemberB
	}
	return c.MemberA
}

// UnreadFor side-dependent unread counter
func (c *Conversation) UnreadFor(memberID string) int {
	if c.MemberA == memberID {
		return c.UnreadA
	}
	return c.UnreadB
}

// LastReadAtFor side-dependent read mark
func (c *Conversation) LastReadAtFor(memberID string) *time.Time {
	if c.MemberA == memberID {
		return c.LastReadAtA
	}
	return c.LastReadAtB
}

// NextMessageTime strictly after the previous message so cursors never tie
func (c *Conversation) NextMessageTime(now time.Time, tick time.Duration) time.Time {
	now = now.UTC().Truncate(tick)
	if c.LastMessageAt != nil {
		if floor := c.LastMessageAt.UTC().Add(tick); now.Before(floor) {
			return floor
		}
	}
	return now
}

// ApplyMessage update preview and receiver unread after msg is stored
func (c *Conversation) ApplyMessage(msg Message) {
	at := msg.CreatedAt
	c.LastMessageAt = &at
	c.LastMessageText = msg.Text
	c.LastMessageSenderID = msg.SenderID
	if msg.ReceiverID == c.MemberA {
		c.UnreadA++
	} else {
		c.UnreadB++
	}
}

// ApplyRead reset memberID side
func (c *Conversation) ApplyRead(memberID string, at time.Time) {
	if c.MemberA == memberID {
		c.LastReadAtA = &at
		c.UnreadA = 0
		return
	}
	c.LastReadAtB = &at
	c.UnreadB = 0
}
