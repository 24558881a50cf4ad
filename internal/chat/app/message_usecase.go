package app

import (
	"context"
	"strings"
	"time"

	"social_chat_service/internal/chat/domain"
	"social_chat_service/internal/chat/repository"
	errprocess "social_chat_service/pkg/err"
	"social_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// MessageUseCase pagination and send
type MessageUseCase interface {
	FetchLatest(ctx context.Context, callerID, conversationID string) ([]domain.Message, error)
	FetchSince(ctx context.Context, callerID, conversationID string, cursor time.Time) ([]domain.Message, error)
	FetchBefore(ctx context.Context, callerID, conversationID string, before time.Time) ([]domain.Message, error)
	List(ctx context.Context, callerID, conversationID string, q domain.MessageQuery) ([]domain.Message, error)
	Send(ctx context.Context, callerID, conversationID, text, clientID string) (*domain.Message, error)
}

type messageUseCase struct {
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	publisher repository.EventPublisher
}

// NewMessageUseCase 建立 MessageUseCase
func NewMessageUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	publisher repository.EventPublisher,
) MessageUseCase {
	if publisher == nil {
		publisher = repository.NopEventPublisher{}
	}
	return &messageUseCase{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		publisher: publisher,
	}
}

func (uc *messageUseCase) FetchLatest(ctx context.Context, callerID, conversationID string) ([]domain.Message, error) {
	return uc.List(ctx, callerID, conversationID, domain.Latest())
}

func (uc *messageUseCase) FetchSince(ctx context.Context, callerID, conversationID string, cursor time.Time) ([]domain.Message, error) {
	return uc.List(ctx, callerID, conversationID, domain.Since(cursor))
}

func (uc *messageUseCase) FetchBefore(ctx context.Context, callerID, conversationID string, before time.Time) ([]domain.Message, error) {
	return uc.List(ctx, callerID, conversationID, domain.Before(before))
}

// List at most PageSize messages ascending
func (uc *messageUseCase) List(ctx context.Context, callerID, conversationID string, q domain.MessageQuery) ([]domain.Message, error) {
	if _, err := authorize(ctx, uc.convRepo, callerID, conversationID); err != nil {
		return nil, err
	}

	var (
		msgs []domain.Message
		err  error
	)
	switch q.Mode {
	case domain.QuerySince:
		msgs, err = uc.msgRepo.Since(ctx, conversationID, q.At, domain.PageSize)
	case domain.QueryBefore:
		msgs, err = uc.msgRepo.Before(ctx, conversationID, q.At, domain.PageSize)
	default:
		msgs, err = uc.msgRepo.Latest(ctx, conversationID, domain.PageSize)
	}
	if err != nil {
		return nil, errprocess.Internal("list messages", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// Send persist a message. Retrying with the same clientID returns the first stored copy
func (uc *messageUseCase) Send(ctx context.Context, callerID, conversationID, text, clientID string) (*domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errprocess.Validation("text is empty")
	}
	conv, err := authorize(ctx, uc.convRepo, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	stored, created, err := uc.msgRepo.Append(ctx, domain.Message{
		ConversationID: conversationID,
		SenderID:       callerID,
		ReceiverID:     conv.Other(callerID),
		Text:           text,
		ClientID:       clientID,
	})
	if err != nil {
		return nil, storeErr("send message", err)
	}

	if !created {
		logger.Log.Info("duplicate send collapsed",
			zap.String("conversation_id", conversationID),
			zap.String("client_id", clientID),
			zap.String("message_id", stored.ID),
		)
		return stored, nil
	}

	publish(ctx, uc.publisher, domain.Event{
		Type:           domain.EventMessageSent,
		ConversationID: conversationID,
		MemberID:       callerID,
		Message:        stored,
		At:             stored.CreatedAt,
	})
	return stored, nil
}

// ParseMessageQuery cursor (append) xor before (prepend), RFC3339 timestamps
func ParseMessageQuery(cursor, before string) (domain.MessageQuery, error) {
	switch {
	case cursor != "" && before != "":
		return domain.MessageQuery{}, errprocess.Validation("cursor and before are mutually exclusive")
	case cursor != "":
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return domain.MessageQuery{}, errprocess.Validation("malformed cursor timestamp")
		}
		return domain.Since(t), nil
	case before != "":
		t, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return domain.MessageQuery{}, errprocess.Validation("malformed before timestamp")
		}
		return domain.Before(t), nil
	default:
		return domain.Latest(), nil
	}
}
