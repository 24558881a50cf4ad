package transport

import (
	"context"
	"time"

	chatapp "social_chat_service/internal/chat/app"
	chat "social_chat_service/internal/chat/domain"
)

// LocalAPI in-process ChatAPI bound to one caller, used by tests and the
// embedded demo client
type LocalAPI struct {
	caller string
	conv   chatapp.ConversationUseCase
	msgs   chatapp.MessageUseCase
}

// NewLocalAPI 建立 LocalAPI
func NewLocalAPI(caller string, conv chatapp.ConversationUseCase, msgs chatapp.MessageUseCase) *LocalAPI {
	return &LocalAPI{caller: caller, conv: conv, msgs: msgs}
}

func (l *LocalAPI) ListInbox(ctx context.Context) ([]chat.InboxRow, error) {
	return l.conv.Inbox(ctx, l.caller)
}

func (l *LocalAPI) Resolve(ctx context.Context, userID string) (string, error) {
	return l.conv.Resolve(ctx, l.caller, userID)
}

func (l *LocalAPI) MarkRead(ctx context.Context, conversationID string) error {
	return l.conv.MarkRead(ctx, l.caller, conversationID)
}

func (l *LocalAPI) FetchLatest(ctx context.Context, conversationID string) ([]chat.Message, error) {
	return l.msgs.FetchLatest(ctx, l.caller, conversationID)
}

func (l *LocalAPI) FetchSince(ctx context.Context, conversationID string, cursor time.Time) ([]chat.Message, error) {
	return l.msgs.FetchSince(ctx, l.caller, conversationID, cursor)
}

func (l *LocalAPI) FetchBefore(ctx context.Context, conversationID string, before time.Time) ([]chat.Message, error) {
	return l.msgs.FetchBefore(ctx, l.caller, conversationID, before)
}

func (l *LocalAPI) Send(ctx context.Context, conversationID, text, clientID string) (*chat.Message, error) {
	return l.msgs.Send(ctx, l.caller, conversationID, text, clientID)
}
