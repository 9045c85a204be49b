package repository

import (
	"context"
	"errors"

	"uapoints/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrItemNotFound = errors.New("商品不存在")
	ErrOutOfStock   = errors.New("商品库存不足")
)

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, item *model.RedeemableItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *ItemRepository) Update(ctx context.Context, item *model.RedeemableItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*model.RedeemableItem, error) {
	var item model.RedeemableItem
	err := r.db.WithContext(ctx).First(&item, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// GetByIDForUpdate 行锁读取商品，兑换事务内使用
func (r *ItemRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.RedeemableItem, error) {
	var item model.RedeemableItem
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&item, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) ListActive(ctx context.Context, category string) ([]*model.RedeemableItem, error) {
	var items []*model.RedeemableItem
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if category != "" && category != "all" {
		query = query.Where("category = ?", category)
	}
	err := query.Order("points_cost ASC").Find(&items).Error
	return items, err
}

// IncrementStockUsed 库存占用 +1
// 条件更新是防超卖的最终防线：不限量（-1）或仍有余量时才生效，
// 两个并发请求争抢最后一件时只有一个 RowsAffected > 0
func (r *ItemRepository) IncrementStockUsed(ctx context.Context, tx *gorm.DB, itemID int64) error {
	result := tx.WithContext(ctx).
		Model(&model.RedeemableItem{}).
		Where("id = ? AND (stock = ? OR stock_used < stock)", itemID, model.StockUnlimited).
		Update("stock_used", gorm.Expr("stock_used + 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOutOfStock
	}
	return nil
}

// DecrementStockUsed 订单取消后回补库存
func (r *ItemRepository) DecrementStockUsed(ctx context.Context, tx *gorm.DB, itemID int64) error {
	return tx.WithContext(ctx).
		Model(&model.RedeemableItem{}).
		Where("id = ? AND stock_used > 0", itemID).
		Update("stock_used", gorm.Expr("stock_used - 1")).Error
}
