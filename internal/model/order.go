package model

import (
	"time"
)

const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

// ValidStatusTransitions 兑换订单状态机
// PENDING/PROCESSING 可取消；取消必须伴随 REFUND 流水和库存回补
var ValidStatusTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusCompleted},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// RedemptionOrder 兑换订单表
// 与扣减积分的 SPEND 流水在同一事务中创建
type RedemptionOrder struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	RequestID    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等ID，客户端生成
	UserID       int64      `gorm:"index;not null" json:"user_id"`
	ItemID       int64      `gorm:"index;not null" json:"item_id"`
	ItemName     string     `gorm:"type:varchar(128);not null" json:"item_name"` // 下单时商品名快照
	PointsCost   int64      `gorm:"not null" json:"points_cost"`
	Variant      string     `gorm:"type:varchar(64)" json:"variant"`
	Status       string     `gorm:"type:varchar(20);index;not null" json:"status"`
	ShippingInfo string     `gorm:"type:text" json:"shipping_info"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RedemptionOrder) TableName() string {
	return "redemption_order"
}
