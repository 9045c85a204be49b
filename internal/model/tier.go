package model

import (
	"sort"
	"time"
)

// ============================================================================
// 等级权限位
// ============================================================================

const (
	PermCanUseTools       int64 = 1 << 0 // 使用计算工具
	PermCanExport         int64 = 1 << 1 // 导出数据
	PermCanAccessAI       int64 = 1 << 2 // AI 功能
	PermCanAccessVIP      int64 = 1 << 3 // VIP 专区
	PermCanEarnPoints     int64 = 1 << 4 // 获得积分
	PermCanRedeemPoints   int64 = 1 << 5 // 兑换积分
	PermCanCustomReferral int64 = 1 << 6 // 自定义推荐码
)

// Tier 会员等级配置表（管理端维护，引擎只读）
type Tier struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug                string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"slug"`
	Name                string    `gorm:"type:varchar(64);not null" json:"name"`
	Priority            int       `gorm:"not null" json:"priority"` // 数值越小等级越高
	Permissions         int64     `gorm:"not null;default:0" json:"permissions"`
	MaxClients          int       `gorm:"not null;default:0" json:"max_clients"` // -1 表示不限
	PointsMultiplier    float64   `gorm:"not null;default:1" json:"points_multiplier"`
	IsPermanent         bool      `gorm:"not null;default:false" json:"is_permanent"`
	DefaultDurationDays int       `gorm:"not null;default:0" json:"default_duration_days"`
	IsActive            bool      `gorm:"not null;default:true" json:"is_active"`
	IsDefault           bool      `gorm:"not null;default:false" json:"is_default"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Tier) TableName() string {
	return "tier"
}

// Has 判断等级是否拥有某权限位
func (t *Tier) Has(perm int64) bool {
	return t.Permissions&perm != 0
}

// TierGrant 等级授予表
// 一条记录表示账户当前持有某个等级，ExpiresAt 为空表示永久
type TierGrant struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"index;not null" json:"user_id"`
	TierID    int64      `gorm:"index;not null" json:"tier_id"`
	GrantedAt time.Time  `gorm:"not null" json:"granted_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (TierGrant) TableName() string {
	return "tier_grant"
}

// Expired 授予是否已过期
func (g *TierGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// ResolvePrimaryTier 从账户持有的全部等级授予中解析出主等级
//
// 纯函数：过滤掉已过期授予和已停用等级后，取 Priority 最小的等级；
// Priority 相同时取 GrantedAt 最早的一条。无可用授予时返回 nil，
// 由调用方回退到系统默认等级（trial）。
func ResolvePrimaryTier(grants []*TierGrant, tiersByID map[int64]*Tier, now time.Time) *Tier {
	var candidates []*TierGrant
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		tier, ok := tiersByID[g.TierID]
		if !ok || !tier.IsActive {
			continue
		}
		candidates = append(candidates, g)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ti := tiersByID[candidates[i].TierID]
		tj := tiersByID[candidates[j].TierID]
		if ti.Priority != tj.Priority {
			return ti.Priority < tj.Priority
		}
		return candidates[i].GrantedAt.Before(candidates[j].GrantedAt)
	})

	return tiersByID[candidates[0].TierID]
}

// CanAccessTool 判断某等级能否使用指定工具
//
// 纯函数，无副作用，可安全用于每个路由守卫：
// 拥有 PermCanUseTools 的付费等级可用全部工具，否则只能用免费工具集
func CanAccessTool(tier *Tier, toolID string, freeTools map[string]bool) bool {
	if tier == nil || !tier.IsActive {
		return false
	}
	if tier.Has(PermCanUseTools) {
		return true
	}
	return freeTools[toolID]
}
