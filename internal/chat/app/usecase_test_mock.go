package app

import (
	"context"
	"time"

	"social_chat_service/internal/chat/domain"

	"github.com/stretchr/testify/mock"
)

// MockConversationRepository Mock ConversationRepository
type MockConversationRepository struct {
	mock.Mock
}

// FindOrCreate moke find or create conversation
func (m *MockConversationRepository) FindOrCreate(ctx context.Context, memberA, memberB string) (*domain.Conversation, error) {
	args := m.Called(ctx, memberA, memberB)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// FindByID moke find conversation by id
func (m *MockConversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// ListByMember moke list conversations of member
func (m *MockConversationRepository) ListByMember(ctx context.Context, memberID string) ([]domain.Conversation, error) {
	args := m.Called(ctx, memberID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// MarkRead moke mark read
func (m *MockConversationRepository) MarkRead(ctx context.Context, conversationID, memberID string, at time.Time) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID, memberID, at)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageRepository Mock MessageRepository
type MockMessageRepository struct {
	mock.Mock
}

// Latest moke latest page
func (m *MockMessageRepository) Latest(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Since moke newer page
func (m *MockMessageRepository) Since(ctx context.Context, conversationID string, after time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, after, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Before moke older page
func (m *MockMessageRepository) Before(ctx context.Context, conversationID string, before time.Time, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, before, limit)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// Append moke append message
func (m *MockMessageRepository) Append(ctx context.Context, msg domain.Message) (*domain.Message, bool, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

// MockProfileRepository Mock ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

// FindByIDs moke batch profile lookup
func (m *MockProfileRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) != nil {
		return args.Get(0).(map[string]domain.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// Upsert moke profile upsert
func (m *MockProfileRepository) Upsert(ctx context.Context, p domain.Profile) error {
	return m.Called(ctx, p).Error(0)
}

// MockAvatarSigner Mock AvatarSigner
type MockAvatarSigner struct {
	mock.Mock
}

// SignAvatar moke sign
func (m *MockAvatarSigner) SignAvatar(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

// MockEventPublisher Mock EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

// Publish moke publish
func (m *MockEventPublisher) Publish(ctx context.Context, evt domain.Event) error {
	return m.Called(ctx, evt).Error(0)
}
