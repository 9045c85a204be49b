package repository

import (
	"context"
	"time"

	"uapoints/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ExistsClaim 检查幂等键是否已被消费
// 必须在持有账户行锁的事务内调用，"检查+写入"才是原子的
func (r *LedgerRepository) ExistsClaim(ctx context.Context, tx *gorm.DB, userID int64, claimKey string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ? AND claim_key = ?", userID, claimKey).
		Count(&count).Error
	return count > 0, err
}

// CountBySourceSince 统计某来源动作自 since 以来的流水条数（工具使用每日上限）
func (r *LedgerRepository) CountBySourceSince(ctx context.Context, tx *gorm.DB, userID int64, sourcePrefix string, since time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Where("user_id = ? AND source_action_id LIKE ? AND created_at >= ?", userID, sourcePrefix+"%", since).
		Count(&count).Error
	return count, err
}

func (r *LedgerRepository) GetByEntryNo(ctx context.Context, entryNo string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).Where("entry_no = ?", entryNo).First(&entry).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// TypeSums 按类型聚合的积分总量
type TypeSums struct {
	TotalEarned  int64
	TotalSpent   int64
	TotalExpired int64
}

// SumByTypes 聚合账户的累计获得/消耗/过期积分
func (r *LedgerRepository) SumByTypes(ctx context.Context, userID int64) (*TypeSums, error) {
	type row struct {
		Type  string
		Total int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := &TypeSums{}
	for _, row := range rows {
		switch row.Type {
		case model.EntryTypeEarn:
			sums.TotalEarned += row.Total
		case model.EntryTypeAdjust:
			if row.Total > 0 {
				sums.TotalEarned += row.Total
			} else {
				sums.TotalSpent += -row.Total
			}
		case model.EntryTypeSpend:
			sums.TotalSpent += -row.Total
		case model.EntryTypeExpire:
			sums.TotalExpired += -row.Total
		case model.EntryTypeRefund:
			// 退款抵减累计消耗
			sums.TotalSpent -= row.Total
		}
	}
	return sums, nil
}

// ListForExport 按时间范围流式读取流水（CSV 导出）
func (r *LedgerRepository) ListForExport(ctx context.Context, from, to time.Time, batchSize int, fn func([]*model.LedgerEntry) error) error {
	var lastID int64
	for {
		var entries []*model.LedgerEntry
		err := r.db.WithContext(ctx).
			Where("created_at >= ? AND created_at < ? AND id > ?", from, to, lastID).
			Order("id ASC").
			Limit(batchSize).
			Find(&entries).Error
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		if err := fn(entries); err != nil {
			return err
		}
		lastID = entries[len(entries)-1].ID
	}
}
