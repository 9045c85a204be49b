package service

import (
	"context"
	"fmt"
	"time"

	"uapoints/internal/config"
	"uapoints/internal/model"
	"uapoints/internal/repository"

	"gorm.io/gorm"
)

// TierService 等级解析与授予管理
// 解析本身是纯函数（model.ResolvePrimaryTier），本服务负责取数、
// 回退默认等级，以及在授予变更时重算账户缓存的主等级
type TierService struct {
	db          *gorm.DB
	cfg         *config.Config
	tierRepo    *repository.TierRepository
	accountRepo *repository.AccountRepository
}

func NewTierService(db *gorm.DB, cfg *config.Config) *TierService {
	return &TierService{
		db:          db,
		cfg:         cfg,
		tierRepo:    repository.NewTierRepository(db),
		accountRepo: repository.NewAccountRepository(db),
	}
}

// ResolvePrimary 解析账户当前主等级
// tx 可为 nil；事务内调用时传入 tx 保证读到同事务的授予变更
func (s *TierService) ResolvePrimary(ctx context.Context, tx *gorm.DB, userID int64) (*model.Tier, error) {
	grants, err := s.tierRepo.ListGrantsByUserID(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询等级授予失败: %w", err)
	}

	tiersByID, err := s.tierRepo.MapByID(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("查询等级配置失败: %w", err)
	}

	if tier := model.ResolvePrimaryTier(grants, tiersByID, time.Now()); tier != nil {
		return tier, nil
	}

	// 无可用授予时回退系统默认等级
	return s.tierRepo.GetDefault(ctx)
}

// RecomputePrimary 重算并回写账户缓存的主等级
// 授予发生增删或过期清理后必须调用，禁止用过期缓存做权限判断
func (s *TierService) RecomputePrimary(ctx context.Context, tx *gorm.DB, userID int64) (*model.Tier, error) {
	tier, err := s.ResolvePrimary(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.accountRepo.SetPrimaryTier(ctx, tx, userID, tier.ID); err != nil {
		return nil, fmt.Errorf("更新主等级缓存失败: %w", err)
	}
	return tier, nil
}

// Grant 授予等级
// durationDays <= 0 时使用等级配置：永久等级不设到期，否则用默认时长
func (s *TierService) Grant(ctx context.Context, userID, tierID int64, durationDays int) error {
	tier, err := s.tierRepo.GetByID(ctx, tierID)
	if err != nil {
		return err
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	now := time.Now()
	var expiresAt *time.Time
	switch {
	case durationDays > 0:
		t := now.AddDate(0, 0, durationDays)
		expiresAt = &t
	case tier.IsPermanent:
		expiresAt = nil
	case tier.DefaultDurationDays > 0:
		t := now.AddDate(0, 0, tier.DefaultDurationDays)
		expiresAt = &t
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		grant := &model.TierGrant{
			UserID:    userID,
			TierID:    tierID,
			GrantedAt: now,
			ExpiresAt: expiresAt,
		}
		if err := s.tierRepo.CreateGrant(ctx, tx, grant); err != nil {
			return fmt.Errorf("创建等级授予失败: %w", err)
		}
		_, err := s.RecomputePrimary(ctx, tx, userID)
		return err
	})
}

// Revoke 撤销等级授予
func (s *TierService) Revoke(ctx context.Context, userID, grantID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.tierRepo.DeleteGrant(ctx, tx, grantID); err != nil {
			return fmt.Errorf("删除等级授予失败: %w", err)
		}
		_, err := s.RecomputePrimary(ctx, tx, userID)
		return err
	})
}

// ExtendGrant 延长账户对某等级的持有时长（虚拟商品自动动作）
// 已有授予：在 max(当前到期, 现在) 基础上顺延；无授予：新建
// 必须在调用方事务内执行
func (s *TierService) ExtendGrant(ctx context.Context, tx *gorm.DB, userID, tierID int64, days int) error {
	now := time.Now()
	grant, err := s.tierRepo.GetGrant(ctx, tx, userID, tierID)
	if err != nil {
		return err
	}

	if grant == nil {
		expiresAt := now.AddDate(0, 0, days)
		grant = &model.TierGrant{
			UserID:    userID,
			TierID:    tierID,
			GrantedAt: now,
			ExpiresAt: &expiresAt,
		}
		if err := s.tierRepo.CreateGrant(ctx, tx, grant); err != nil {
			return fmt.Errorf("创建等级授予失败: %w", err)
		}
	} else {
		base := now
		if grant.ExpiresAt != nil && grant.ExpiresAt.After(now) {
			base = *grant.ExpiresAt
		}
		if grant.ExpiresAt == nil {
			// 永久授予无需延长
			return nil
		}
		newExpiry := base.AddDate(0, 0, days)
		if err := s.tierRepo.UpdateGrantExpiry(ctx, tx, grant.ID, &newExpiry); err != nil {
			return fmt.Errorf("延长等级授予失败: %w", err)
		}
	}

	_, err = s.RecomputePrimary(ctx, tx, userID)
	return err
}

// SweepExpiredGrants 清理某用户已过期的等级授予并重算主等级
func (s *TierService) SweepExpiredGrants(ctx context.Context, userID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.tierRepo.DeleteExpiredGrants(ctx, tx, userID, time.Now()); err != nil {
			return fmt.Errorf("清理过期授予失败: %w", err)
		}
		_, err := s.RecomputePrimary(ctx, tx, userID)
		return err
	})
}

// ListGrants 账户当前的全部等级授予
func (s *TierService) ListGrants(ctx context.Context, userID int64) ([]*model.TierGrant, error) {
	return s.tierRepo.ListGrantsByUserID(ctx, nil, userID)
}
