package repository

import (
	"context"
	"sync"
	"time"

	"social_chat_service/internal/chatclient/domain"
	"social_chat_service/pkg/database"

	"github.com/pkg/errors"
)

// SelectionTTL how long the last used selection is remembered
const SelectionTTL = 30 * 24 * time.Hour

// RedisPreferenceRepository last used selection per member in redis
type RedisPreferenceRepository struct {
	store    database.RedisRepository[domain.Selection]
	memberID string
}

// NewRedisPreferenceRepository 建立 RedisPreferenceRepository
func NewRedisPreferenceRepository(store database.RedisRepository[domain.Selection], memberID string) *RedisPreferenceRepository {
	return &RedisPreferenceRepository{store: store, memberID: memberID}
}

func (r *RedisPreferenceRepository) key() string {
	return "last_selection:" + r.memberID
}

// LastSelection false when nothing was saved yet
func (r *RedisPreferenceRepository) LastSelection(ctx context.Context) (domain.Selection, bool, error) {
	sel, err := r.store.Get(ctx, r.key())
	if errors.Is(err, database.ErrRedisNil) {
		return domain.Selection{}, false, nil
	}
	if err != nil {
		return domain.Selection{}, false, errors.Wrap(err, "load last selection")
	}
	return sel, !sel.IsZero(), nil
}

// SaveSelection overwrite and refresh the TTL
func (r *RedisPreferenceRepository) SaveSelection(ctx context.Context, sel domain.Selection) error {
	return errors.Wrap(r.store.Set(ctx, r.key(), sel, SelectionTTL), "save last selection")
}

// MemoryPreferenceRepository process-local preference store
type MemoryPreferenceRepository struct {
	mu  sync.Mutex
	sel domain.Selection
}

// NewMemoryPreferenceRepository seed may be zero
func NewMemoryPreferenceRepository(seed domain.Selection) *MemoryPreferenceRepository {
	return &MemoryPreferenceRepository{sel: seed}
}

func (r *MemoryPreferenceRepository) LastSelection(context.Context) (domain.Selection, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sel, !r.sel.IsZero(), nil
}

func (r *MemoryPreferenceRepository) SaveSelection(_ context.Context, sel domain.Selection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sel = sel
	return nil
}
