package repository

import (
	"context"
	"errors"
	"time"

	"uapoints/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTierNotFound        = errors.New("等级不存在")
	ErrDefaultTierNotFound = errors.New("系统默认等级未配置")
)

type TierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) Create(ctx context.Context, tier *model.Tier) error {
	return r.db.WithContext(ctx).Create(tier).Error
}

func (r *TierRepository) Update(ctx context.Context, tier *model.Tier) error {
	return r.db.WithContext(ctx).Save(tier).Error
}

func (r *TierRepository) GetByID(ctx context.Context, id int64) (*model.Tier, error) {
	var tier model.Tier
	err := r.db.WithContext(ctx).First(&tier, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	return &tier, nil
}

func (r *TierRepository) GetBySlug(ctx context.Context, slug string) (*model.Tier, error) {
	var tier model.Tier
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, err
	}
	return &tier, nil
}

// GetDefault 系统默认等级（trial），无任何授予时的回退
func (r *TierRepository) GetDefault(ctx context.Context) (*model.Tier, error) {
	var tier model.Tier
	err := r.db.WithContext(ctx).
		Where("is_default = ? AND is_active = ?", true, true).
		First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDefaultTierNotFound
		}
		return nil, err
	}
	return &tier, nil
}

func (r *TierRepository) ListAll(ctx context.Context) ([]*model.Tier, error) {
	var tiers []*model.Tier
	err := r.db.WithContext(ctx).Order("priority ASC").Find(&tiers).Error
	return tiers, err
}

// MapByID 等级配置按ID索引，供纯函数解析使用
func (r *TierRepository) MapByID(ctx context.Context, tx *gorm.DB) (map[int64]*model.Tier, error) {
	if tx == nil {
		tx = r.db
	}
	var tiers []*model.Tier
	if err := tx.WithContext(ctx).Find(&tiers).Error; err != nil {
		return nil, err
	}
	m := make(map[int64]*model.Tier, len(tiers))
	for _, t := range tiers {
		m[t.ID] = t
	}
	return m, nil
}

// ============================================================
// 等级授予
// ============================================================

func (r *TierRepository) CreateGrant(ctx context.Context, tx *gorm.DB, grant *model.TierGrant) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(grant).Error
}

func (r *TierRepository) DeleteGrant(ctx context.Context, tx *gorm.DB, grantID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Delete(&model.TierGrant{}, grantID).Error
}

func (r *TierRepository) ListGrantsByUserID(ctx context.Context, tx *gorm.DB, userID int64) ([]*model.TierGrant, error) {
	if tx == nil {
		tx = r.db
	}
	var grants []*model.TierGrant
	err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&grants).Error
	return grants, err
}

// GetGrant 查账户对某等级的授予（自动续期商品用）
func (r *TierRepository) GetGrant(ctx context.Context, tx *gorm.DB, userID, tierID int64) (*model.TierGrant, error) {
	if tx == nil {
		tx = r.db
	}
	var grant model.TierGrant
	err := tx.WithContext(ctx).
		Where("user_id = ? AND tier_id = ?", userID, tierID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (r *TierRepository) UpdateGrantExpiry(ctx context.Context, tx *gorm.DB, grantID int64, expiresAt *time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.TierGrant{}).
		Where("id = ?", grantID).
		Update("expires_at", expiresAt).Error
}

// ListExpiredGrantUserIDs 查出持有已过期授予的用户（后台清理任务）
func (r *TierRepository) ListExpiredGrantUserIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var userIDs []int64
	err := r.db.WithContext(ctx).
		Model(&model.TierGrant{}).
		Distinct("user_id").
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Limit(limit).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}

// DeleteExpiredGrants 删除某用户的全部已过期授予
func (r *TierRepository) DeleteExpiredGrants(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Where("user_id = ? AND expires_at IS NOT NULL AND expires_at < ?", userID, now).
		Delete(&model.TierGrant{}).Error
}
