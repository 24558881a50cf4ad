package app

import (
	"context"
	"strings"
	"time"

	"social_chat_service/internal/chat/domain"
	"social_chat_service/internal/chat/repository"
	errprocess "social_chat_service/pkg/err"
	"social_chat_service/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// publishTimeout bound for best-effort event publishing
const publishTimeout = 2 * time.Second

// ConversationUseCase resolution, inbox and read-receipt
type ConversationUseCase interface {
	Resolve(ctx context.Context, callerID, otherID string) (string, error)
	Inbox(ctx context.Context, callerID string) ([]domain.InboxRow, error)
	MarkRead(ctx context.Context, callerID, conversationID string) error
}

type conversationUseCase struct {
	convRepo  repository.ConversationRepository
	profiles  repository.ProfileRepository
	signer    repository.AvatarSigner
	publisher repository.EventPublisher
	now       func() time.Time
}

// NewConversationUseCase 建立 ConversationUseCase
func NewConversationUseCase(
	convRepo repository.ConversationRepository,
	profiles repository.ProfileRepository,
	signer repository.AvatarSigner,
	publisher repository.EventPublisher,
) ConversationUseCase {
	if signer == nil {
		signer = repository.NopAvatarSigner{}
	}
	if publisher == nil {
		publisher = repository.NopEventPublisher{}
	}
	return &conversationUseCase{
		convRepo:  convRepo,
		profiles:  profiles,
		signer:    signer,
		publisher: publisher,
		now:       time.Now,
	}
}

// Resolve find or create the conversation of the unordered pair
func (uc *conversationUseCase) Resolve(ctx context.Context, callerID, otherID string) (string, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return "", errprocess.Validation("userId is required")
	}
	if otherID == callerID {
		return "", errprocess.Validation("cannot start a conversation with yourself")
	}

	a, b := domain.CanonicalPair(callerID, otherID)
	conv, err := uc.convRepo.FindOrCreate(ctx, a, b)
	if err != nil {
		return "", errprocess.Internal("resolve conversation", err)
	}
	logger.Log.Debug("conversation resolved", zap.String("conversation_id", conv.ID), zap.String("caller", callerID))
	return conv.ID, nil
}

// Inbox one row per conversation of caller, lastMessageAt desc. Profile failures degrade to the member id
func (uc *conversationUseCase) Inbox(ctx context.Context, callerID string) ([]domain.InboxRow, error) {
	convs, err := uc.convRepo.ListByMember(ctx, callerID)
	if err != nil {
		return nil, errprocess.Internal("list conversations", err)
	}
	rows := make([]domain.InboxRow, 0, len(convs))
	if len(convs) == 0 {
		return rows, nil
	}

	ids := make([]string, 0, len(convs))
	for i := range convs {
		ids = append(ids, convs[i].Other(callerID))
	}
	profiles, err := uc.profiles.FindByIDs(ctx, ids)
	if err != nil {
		logger.Log.Warn("profile lookup failed", zap.String("caller", callerID), zap.Error(err))
		profiles = map[string]domain.Profile{}
	}

	for _, conv := range convs {
		otherID := conv.Other(callerID)
		p, ok := profiles[otherID]
		if !ok {
			p = domain.Profile{MemberID: otherID, Username: otherID}
		}
		if p.AvatarKey != "" {
			url, err := uc.signer.SignAvatar(ctx, p.AvatarKey)
			if err != nil {
				logger.Log.Warn("avatar sign failed", zap.String("member_id", otherID), zap.Error(err))
			}
			p.AvatarURL = url
		}
		rows = append(rows, domain.NewInboxRow(conv, callerID, p))
	}
	return rows, nil
}

// MarkRead reset caller unread, idempotent
func (uc *conversationUseCase) MarkRead(ctx context.Context, callerID, conversationID string) error {
	if _, err := authorize(ctx, uc.convRepo, callerID, conversationID); err != nil {
		return err
	}

	at := uc.now()
	if _, err := uc.convRepo.MarkRead(ctx, conversationID, callerID, at); err != nil {
		return storeErr("mark read", err)
	}

	publish(ctx, uc.publisher, domain.Event{
		Type:           domain.EventConversationRead,
		ConversationID: conversationID,
		MemberID:       callerID,
		At:             at.UTC(),
	})
	return nil
}

// authorize load the conversation and check caller is a participant
func authorize(ctx context.Context, convRepo repository.ConversationRepository, callerID, conversationID string) (*domain.Conversation, error) {
	if conversationID == "" {
		return nil, errprocess.Validation("conversation id is required")
	}
	conv, err := convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeErr("find conversation", err)
	}
	if !conv.HasMember(callerID) {
		return nil, errprocess.Authorization("not a participant of this conversation")
	}
	return conv, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errprocess.NotFound("conversation not found")
	}
	return errprocess.Internal(op, err)
}

func publish(ctx context.Context, p repository.EventPublisher, evt domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, evt); err != nil {
		logger.Log.Warn("publish event failed",
			zap.String("type", string(evt.Type)),
			zap.String("conversation_id", evt.ConversationID),
			zap.Error(err),
		)
	}
}
