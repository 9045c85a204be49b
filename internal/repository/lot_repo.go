package repository

import (
	"context"
	"time"

	"uapoints/internal/model"

	"gorm.io/gorm"
)

type LotRepository struct {
	db *gorm.DB
}

func NewLotRepository(db *gorm.DB) *LotRepository {
	return &LotRepository{db: db}
}

func (r *LotRepository) Create(ctx context.Context, tx *gorm.DB, lot *model.PointLot) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(lot).Error
}

// ListLiveByUserID 读取账户全部有剩余的批次，按获得时间升序（FIFO 消耗顺序）
// 批次只在账户行锁之下被读写，不需要额外的行锁
func (r *LotRepository) ListLiveByUserID(ctx context.Context, tx *gorm.DB, userID int64) ([]*model.PointLot, error) {
	if tx == nil {
		tx = r.db
	}
	var lots []*model.PointLot
	err := tx.WithContext(ctx).
		Where("user_id = ? AND remaining_amount > 0", userID).
		Order("created_at ASC, id ASC").
		Find(&lots).Error
	return lots, err
}

// Consume 扣减批次剩余积分
// 条件更新防御剩余量不足的非法扣减
func (r *LotRepository) Consume(ctx context.Context, tx *gorm.DB, lotID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.PointLot{}).
		Where("id = ? AND remaining_amount >= ?", lotID, amount).
		Update("remaining_amount", gorm.Expr("remaining_amount - ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// SumExpiringWithin 统计 until 之前到期的剩余积分（"30天内即将过期"展示）
func (r *LotRepository) SumExpiringWithin(ctx context.Context, userID int64, until time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.PointLot{}).
		Select("COALESCE(SUM(remaining_amount), 0)").
		Where("user_id = ? AND remaining_amount > 0 AND expires_at < ?", userID, until).
		Scan(&total).Error
	return total, err
}

// ListDueUserIDs 查出存在已到期未核销批次的用户（后台过期核销任务）
func (r *LotRepository) ListDueUserIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var userIDs []int64
	err := r.db.WithContext(ctx).
		Model(&model.PointLot{}).
		Distinct("user_id").
		Where("remaining_amount > 0 AND expires_at < ?", now).
		Limit(limit).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}
