package repository

import (
	"context"
	"errors"
	"time"

	"uapoints/internal/model"
	"uapoints/pkg/idgen"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound     = errors.New("账户不存在")
	ErrInsufficientBalance = errors.New("积分余额不足")
	ErrOptimisticLock      = errors.New("乐观锁冲突，请重试")
	ErrAlreadyReferred     = errors.New("该账户已绑定推荐人")
	ErrReferralCodeTaken   = errors.New("推荐码已被占用")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByUserIDForUpdate 行锁读取账户
// 账户行的 FOR UPDATE 锁是同一账户所有积分操作的串行化边界
func (r *AccountRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateBalance 更新缓存余额（调用方必须已持有账户行锁）
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, userID int64, newBalance int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"points_balance": newBalance,
			"version":        gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateStreak 更新连续登录状态
func (r *AccountRepository) UpdateStreak(ctx context.Context, tx *gorm.DB, userID int64, streak int, loginDate time.Time) error {
	return tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"login_streak":    streak,
			"last_login_date": loginDate,
		}).Error
}

// SetPrimaryTier 更新缓存的主等级
func (r *AccountRepository) SetPrimaryTier(ctx context.Context, tx *gorm.DB, userID int64, tierID int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Update("primary_tier_id", tierID).Error
}

// SetReferredBy 绑定推荐人
// 条件更新保证 referred_by 只能从空写入一次，写入后不可变更
func (r *AccountRepository) SetReferredBy(ctx context.Context, tx *gorm.DB, userID int64, referrerID int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND referred_by IS NULL", userID).
		Update("referred_by", referrerID)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyReferred
	}
	return nil
}

func (r *AccountRepository) GetByReferralCode(ctx context.Context, code string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateReferralCode 更新推荐码
// 先查重再更新，唯一索引兜底并发下的重复写入
func (r *AccountRepository) UpdateReferralCode(ctx context.Context, userID int64, newCode string) error {
	existing, err := r.GetByReferralCode(ctx, newCode)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	if existing != nil {
		if existing.UserID == userID {
			return nil
		}
		return ErrReferralCodeTaken
	}

	err = r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Update("referral_code", newCode).Error
	if err != nil {
		// 并发抢占同一个码时由唯一索引拦截
		return ErrReferralCodeTaken
	}
	return nil
}

// CountReferredBy 统计该用户成功推荐的人数
func (r *AccountRepository) CountReferredBy(ctx context.Context, referrerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("referred_by = ?", referrerID).
		Count(&count).Error
	return count, err
}

// GetOrCreate 获取账户，不存在则创建（带默认推荐码）
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{
		UserID:        userID,
		PointsBalance: 0,
		ReferralCode:  idgen.GenerateReferralCode(),
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}
