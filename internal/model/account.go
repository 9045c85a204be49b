package model

import (
	"time"
)

// Account 用户积分账户表
// 记录用户的 UA 积分余额，是整个积分经济引擎的核心数据
//
// PointsBalance 是冗余缓存字段，必须恒等于该用户全部流水的签名求和
// （未过期 earn + adjust + refund 为正，spend + expire 为负）
type Account struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64      `gorm:"uniqueIndex;not null" json:"user_id"`                        // 用户ID，业务方传入
	PointsBalance int64      `gorm:"not null;default:0" json:"points_balance"`                   // 可用积分余额（缓存值）
	LoginStreak   int        `gorm:"not null;default:0" json:"login_streak"`                     // 连续登录天数
	LastLoginDate *time.Time `json:"last_login_date"`                                            // 最近一次领取每日登录奖励的日期
	ReferralCode  string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"referral_code"` // 推荐码，用户可自定义
	ReferredBy    *int64     `gorm:"index" json:"referred_by"`                                   // 推荐人用户ID，写入后不可变更
	PrimaryTierID int64      `gorm:"not null;default:0" json:"primary_tier_id"`                  // 主等级（派生缓存，仅用于展示）
	Version       int        `gorm:"not null;default:0" json:"version"`                          // 乐观锁版本号
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
