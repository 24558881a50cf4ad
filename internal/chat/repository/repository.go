package repository

import (
	"context"
	"time"

	"social_chat_service/internal/chat/domain"

	"github.com/pkg/errors"
)

// ErrNotFound conversation or profile absent
var ErrNotFound = errors.New("not found")

// ConversationRepository definition conversation store
type ConversationRepository interface {
	// FindOrCreate memberA < memberB, unique per pair
	FindOrCreate(ctx context.Context, memberA, memberB string) (*domain.Conversation, error)
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	// ListByMember ordered by lastMessageAt desc, empty conversations last
	ListByMember(ctx context.Context, memberID string) ([]domain.Conversation, error)
	MarkRead(ctx context.Context, conversationID, memberID string, at time.Time) (*domain.Conversation, error)
}

// MessageRepository definition message store. All lists are ascending by createdAt
type MessageRepository interface {
	Latest(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	Since(ctx context.Context, conversationID string, after time.Time, limit int) ([]domain.Message, error)
	Before(ctx context.Context, conversationID string, before time.Time, limit int) ([]domain.Message, error)
	// Append store msg, update preview and receiver unread in one unit.
	// Same (senderID, clientID) returns the stored message and created=false
	Append(ctx context.Context, msg domain.Message) (stored *domain.Message, created bool, err error)
}

// ChatStore both repositories over one backend
type ChatStore interface {
	ConversationRepository
	MessageRepository
}

// ProfileRepository definition profile lookup
type ProfileRepository interface {
	// FindByIDs missing ids are absent from the map
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error)
	Upsert(ctx context.Context, p domain.Profile) error
}

// AvatarSigner turn an avatar object key into a URL
type AvatarSigner interface {
	SignAvatar(ctx context.Context, key string) (string, error)
}

// EventPublisher domain event sink
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// NopAvatarSigner returns no URL
type NopAvatarSigner struct{}

// SignAvatar nop
func (NopAvatarSigner) SignAvatar(context.Context, string) (string, error) { return "", nil }

// NopEventPublisher drops events
type NopEventPublisher struct{}

// Publish nop
func (NopEventPublisher) Publish(context.Context, domain.Event) error { return nil }

func reverse(msgs []domain.Message) []domain.Message {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}
