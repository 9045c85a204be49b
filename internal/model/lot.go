package model

import (
	"time"
)

// PointLot 积分批次表
// 每条 EARN 流水对应一个批次，跟踪该批次尚未被消耗的剩余积分
//
// 流水表只追加不修改，批次表是唯一允许原地更新的记账辅助结构：
// 出账按"最早获得优先"（FIFO）消耗批次，到期核销只核销批次剩余部分，
// 这样用户已经花掉的积分不会在到期时被重复扣除
type PointLot struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64      `gorm:"index;not null" json:"user_id"`
	EntryNo         string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"` // 来源 EARN 流水号
	InitialAmount   int64      `gorm:"not null" json:"initial_amount"`                        // 批次初始积分
	RemainingAmount int64      `gorm:"not null" json:"remaining_amount"`                      // 批次剩余积分
	ExpiresAt       time.Time  `gorm:"index;not null" json:"expires_at"`                      // 批次到期时间
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PointLot) TableName() string {
	return "point_lot"
}

// LotConsumption 一次出账对单个批次的消耗量
type LotConsumption struct {
	LotID  int64
	Amount int64
}

// ConsumeLotsFIFO 计算一笔出账对批次的消耗计划
//
// lots 必须按获得时间升序排列（最早的在前）。出账优先消耗最早获得的批次，
// 超出批次总量的部分由不设有效期的积分（REFUND/正向 ADJUST）承担，
// 调用方负责保证出账总额不超过账户余额。
func ConsumeLotsFIFO(lots []*PointLot, amount int64) []LotConsumption {
	var plan []LotConsumption
	remaining := amount
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		if lot.RemainingAmount <= 0 {
			continue
		}
		take := lot.RemainingAmount
		if take > remaining {
			take = remaining
		}
		plan = append(plan, LotConsumption{LotID: lot.ID, Amount: take})
		remaining -= take
	}
	return plan
}

// ExpiredLots 过滤出截至 now 已到期且仍有剩余的批次
func ExpiredLots(lots []*PointLot, now time.Time) []*PointLot {
	var due []*PointLot
	for _, lot := range lots {
		if lot.RemainingAmount > 0 && lot.ExpiresAt.Before(now) {
			due = append(due, lot)
		}
	}
	return due
}

// SumRemaining 批次剩余积分求和
func SumRemaining(lots []*PointLot) int64 {
	var total int64
	for _, lot := range lots {
		if lot.RemainingAmount > 0 {
			total += lot.RemainingAmount
		}
	}
	return total
}
