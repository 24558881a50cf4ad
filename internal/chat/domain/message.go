package domain

import "time"

// PageSize max messages per list call
const PageSize = 50

// Message 單則訊息, append-only. CreatedAt 由 store 指派
type Message struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"conversationId"`
	SenderID       string    `bson:"sender_id" json:"senderId"`
	ReceiverID     string    `bson:"receiver_id" json:"receiverId"`
	Text           string    `bson:"text" json:"text"`
	ClientID       string    `bson:"client_id,omitempty" json:"clientId,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
}

// QueryMode list messages mode
type QueryMode int

const (
	// QueryLatest newest PageSize
	QueryLatest QueryMode = iota
	// QuerySince strictly newer than At
	QuerySince
	// QueryBefore strictly older than At
	QueryBefore
)

func (m QueryMode) String() string {
	switch m {
	case QuerySince:
		return "since"
	case QueryBefore:
		return "before"
	default:
		return "latest"
	}
}

// MessageQuery one of the three list modes
type MessageQuery struct {
	Mode QueryMode
	At   time.Time
}

// Latest query
func Latest() MessageQuery { return MessageQuery{Mode: QueryLatest} }

// Since query
func Since(t time.Time) MessageQuery { return MessageQuery{Mode: QuerySince, At: t} }

// Before query
func Before(t time.Time) MessageQuery { return MessageQuery{Mode: QueryBefore, At: t} }
