package model

import (
	"time"
)

// AuditLog 管理操作审计表
// 手工调整积分时记录操作人和调整前后余额快照
type AuditLog struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Operator      string    `gorm:"type:varchar(64);not null" json:"operator"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Action        string    `gorm:"type:varchar(32);not null" json:"action"`
	EntryNo       string    `gorm:"type:varchar(64)" json:"entry_no"` // 关联的 ADJUST 流水号
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Reason        string    `gorm:"type:varchar(256)" json:"reason"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}
