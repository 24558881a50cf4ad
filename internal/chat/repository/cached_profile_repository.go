package repository

import (
	"context"
	"time"

	"social_chat_service/internal/chat/domain"
	"social_chat_service/pkg/database"
	"social_chat_service/pkg/logger"

	"go.uber.org/zap"
)

// CachedProfileRepository read-through redis cache in front of another ProfileRepository
type CachedProfileRepository struct {
	cache database.RedisRepository[domain.Profile]
	next  ProfileRepository
	ttl   time.Duration
}

// NewCachedProfileRepository create CachedProfileRepository
func NewCachedProfileRepository(cache database.RedisRepository[domain.Profile], next ProfileRepository, ttl time.Duration) *CachedProfileRepository {
	return &CachedProfileRepository{cache: cache, next: next, ttl: ttl}
}

// FindByIDs cache errors fall through to the backing repository
func (r *CachedProfileRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	missing := make([]string, 0, len(ids))

	for _, id := range ids {
		p, err := r.cache.Get(ctx, id)
		if err == nil {
			out[id] = p
			continue
		}
		if err != database.ErrRedisNil {
			logger.Log.Warn("profile cache get failed", zap.String("member_id", id), zap.Error(err))
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	found, err := r.next.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, p := range found {
		out[id] = p
		if err := r.cache.Set(ctx, id, p, r.ttl); err != nil {
			logger.Log.Warn("profile cache set failed", zap.String("member_id", id), zap.Error(err))
		}
	}
	return out, nil
}

// Upsert write through and drop the cached copy
func (r *CachedProfileRepository) Upsert(ctx context.Context, p domain.Profile) error {
	if err := r.next.Upsert(ctx, p); err != nil {
		return err
	}
	if err := r.cache.Del(ctx, p.MemberID); err != nil {
		logger.Log.Warn("profile cache del failed", zap.String("member_id", p.MemberID), zap.Error(err))
	}
	return nil
}
