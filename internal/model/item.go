package model

import (
	"time"
)

const (
	// StockUnlimited / MaxPerUserUnlimited 约定 -1 表示不限
	StockUnlimited      = -1
	MaxPerUserUnlimited = -1
)

// RedeemableItem 积分商城商品表（管理端维护）
// 引擎侧只允许原子地累加 StockUsed，其余字段归管理端所有
type RedeemableItem struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(128);not null" json:"name"`
	PointsCost       int64     `gorm:"not null" json:"points_cost"`
	Stock            int64     `gorm:"not null;default:-1" json:"stock"`      // -1 = 不限量
	StockUsed        int64     `gorm:"not null;default:0" json:"stock_used"`  // 已兑出数量
	MaxPerUser       int64     `gorm:"not null;default:-1" json:"max_per_user"`
	RequiresShipping bool      `gorm:"not null;default:false" json:"requires_shipping"`
	Category         string    `gorm:"type:varchar(32);index" json:"category"`
	AutoActionDays   int       `gorm:"not null;default:0" json:"auto_action_days"`    // >0 表示兑换后自动延长等级天数
	AutoActionTierID int64     `gorm:"not null;default:0" json:"auto_action_tier_id"` // 自动延长的目标等级
	IsActive         bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RedeemableItem) TableName() string {
	return "redeemable_item"
}

// Remaining 剩余可兑数量，-1 表示不限量
func (i *RedeemableItem) Remaining() int64 {
	if i.Stock == StockUnlimited {
		return StockUnlimited
	}
	left := i.Stock - i.StockUsed
	if left < 0 {
		return 0
	}
	return left
}

// IsVirtual 虚拟商品：无需发货，兑换即时完成
func (i *RedeemableItem) IsVirtual() bool {
	return !i.RequiresShipping
}
