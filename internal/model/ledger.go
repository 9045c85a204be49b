package model

import (
	"time"
)

// ============================================================================
// 积分流水类型常量
// ============================================================================

const (
	EntryTypeEarn   = "EARN"   // 获得积分（带有效期，形成批次）
	EntryTypeSpend  = "SPEND"  // 兑换扣减
	EntryTypeAdjust = "ADJUST" // 管理员手工调整（可正可负）
	EntryTypeExpire = "EXPIRE" // 批次到期核销
	EntryTypeRefund = "REFUND" // 订单取消退还（不设有效期）
)

// ============================================================================
// 积分流水实体
// ============================================================================

// LedgerEntry 积分流水表
// 记录账户的每一笔积分变动，是余额对账的唯一依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 过期通过追加 EXPIRE 流水实现，不改写 EARN 流水
// 2. 记录交易前后余额快照 —— 便于校验余额一致性
// 3. ClaimKey 唯一索引是奖励"至多发放一次"的数据库兜底
type LedgerEntry struct {
	ID                int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo           string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`           // 流水号（全局唯一）
	UserID            int64      `gorm:"index;not null;uniqueIndex:uk_user_claim,priority:1" json:"user_id"`
	Type              string     `gorm:"type:varchar(20);not null" json:"type"`                           // 流水类型
	Amount            int64      `gorm:"not null" json:"amount"`                                          // 签名金额（入账为正，出账为负）
	BalanceBefore     int64      `gorm:"not null" json:"balance_before"`                                  // 变动前余额
	BalanceAfter      int64      `gorm:"not null" json:"balance_after"`                                   // 变动后余额
	Reason            string     `gorm:"type:varchar(256)" json:"reason"`                                 // 备注
	SourceActionID    string     `gorm:"type:varchar(64);index;not null" json:"source_action_id"`         // 来源动作，如 daily_login / redeem:3
	MultiplierApplied float64    `gorm:"not null;default:1" json:"multiplier_applied"`                    // 发放时应用的等级倍率
	ClaimKey          *string    `gorm:"type:varchar(128);uniqueIndex:uk_user_claim,priority:2" json:"claim_key"` // 幂等键（仅幂等奖励设置）
	ExpiresAt         *time.Time `json:"expires_at"`                                                      // 仅 EARN 流水设置
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// IsDebit 是否为出账流水
func (e *LedgerEntry) IsDebit() bool {
	return e.Amount < 0
}
