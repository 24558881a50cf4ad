package app

import (
	"context"
	"time"

	chat "social_chat_service/internal/chat/domain"
	"social_chat_service/internal/chatclient/domain"
)

// ChatAPI server operations used by the engine, one call per intent.
// Implementations return errprocess errors; transport failures carry CodeNetwork.
type ChatAPI interface {
	ListInbox(ctx context.Context) ([]chat.InboxRow, error)
	Resolve(ctx context.Context, userID string) (string, error)
	MarkRead(ctx context.Context, conversationID string) error
	FetchLatest(ctx context.Context, conversationID string) ([]chat.Message, error)
	FetchSince(ctx context.Context, conversationID string, cursor time.Time) ([]chat.Message, error)
	FetchBefore(ctx context.Context, conversationID string, before time.Time) ([]chat.Message, error)
	Send(ctx context.Context, conversationID, text, clientID string) (*chat.Message, error)
}

// PreferenceRepository persisted "last used" selection
type PreferenceRepository interface {
	LastSelection(ctx context.Context) (domain.Selection, bool, error)
	SaveSelection(ctx context.Context, sel domain.Selection) error
}

// Navigator one-shot deep-link target from the surrounding context
type Navigator interface {
	DeepLinkTarget() (string, bool)
	ClearDeepLink()
}
