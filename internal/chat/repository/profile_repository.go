package repository

import (
	"context"
	"sync"
	"time"

	"social_chat_service/internal/chat/domain"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profileModel gorm table profiles
type profileModel struct {
	MemberID  string `gorm:"primaryKey;column:member_id"`
	Username  string `gorm:"column:username;not null"`
	AvatarKey string `gorm:"column:avatar_key"`
	UpdatedAt time.Time
}

func (profileModel) TableName() string { return "profiles" }

// GormProfileRepository profiles on gorm
type GormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository create GormProfileRepository
func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

// AutoMigrate create/update profiles table
func (r *GormProfileRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&profileModel{})
}

func (r *GormProfileRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []profileModel
	if err := r.db.WithContext(ctx).Where("member_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "gormProfile.FindByIDs: ")
	}
	for _, row := range rows {
		out[row.MemberID] = domain.Profile{MemberID: row.MemberID, Username: row.Username, AvatarKey: row.AvatarKey}
	}
	return out, nil
}

func (r *GormProfileRepository) Upsert(ctx context.Context, p domain.Profile) error {
	row := profileModel{MemberID: p.MemberID, Username: p.Username, AvatarKey: p.AvatarKey}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "avatar_key", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrap(err, "gormProfile.Upsert: ")
}

// MemoryProfileRepository map backed profiles
type MemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

// NewMemoryProfileRepository create MemoryProfileRepository
func NewMemoryProfileRepository(seed ...domain.Profile) *MemoryProfileRepository {
	r := &MemoryProfileRepository{profiles: make(map[string]domain.Profile)}
	for _, p := range seed {
		r.profiles[p.MemberID] = p
	}
	return r
}

func (r *MemoryProfileRepository) FindByIDs(_ context.Context, ids []string) (map[string]domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.Profile, len(ids))
	for _, id := range ids {
		if p, ok := r.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *MemoryProfileRepository) Upsert(_ context.Context, p domain.Profile) error {
	r.mu.Lock()
	r.profiles[p.MemberID] = p
	r.mu.Unlock()
	return nil
}
