package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"uapoints/internal/config"
	"uapoints/internal/infrastructure/lock"
	"uapoints/internal/model"
	"uapoints/internal/repository"
	"uapoints/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 奖励结果原因
const (
	ReasonAlreadyClaimed  = "already_claimed"
	ReasonTierRestricted  = "tier_restricted"
	ReasonDailyCapReached = "daily_cap_reached"
)

// RewardResult 奖励发放结果
// 重复领取 / 达到上限不是错误：客户端重试是常态，必须无害
type RewardResult struct {
	Success       bool   `json:"success"`
	PointsAwarded int64  `json:"points_awarded"`
	NewBalance    int64  `json:"new_balance"`
	Reason        string `json:"reason,omitempty"`
}

// RewardService 奖励发放服务
// 每种奖励一个幂等操作，幂等键 = (用户, 来源动作, 资格窗口)
//
// 【关键点】幂等检查和流水写入必须在同一个事务内完成：
// 先在事务外"查一下有没有领过"再写入，两个并发请求会同时通过检查、
// 各发一次奖励。这里的顺序是：账户级分布式锁 -> 事务内账户行锁 ->
// 幂等键检查 -> 写入，数据库 ClaimKey 唯一索引兜底
type RewardService struct {
	db            *gorm.DB
	redisClient   *redis.Client
	cfg           *config.Config
	accountRepo   *repository.AccountRepository
	ledgerRepo    *repository.LedgerRepository
	ledgerService *LedgerService
	tierService   *TierService
}

func NewRewardService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RewardService {
	return &RewardService{
		db:            db,
		redisClient:   redisClient,
		cfg:           cfg,
		accountRepo:   repository.NewAccountRepository(db),
		ledgerRepo:    repository.NewLedgerRepository(db),
		ledgerService: NewLedgerService(db, cfg),
		tierService:   NewTierService(db, cfg),
	}
}

// DayKey 资格窗口"今天"的键，固定时区
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// DailyLoginClaimKey 每日登录幂等键
func DailyLoginClaimKey(t time.Time, loc *time.Location) string {
	return "daily_login:" + DayKey(t, loc)
}

// StreakBonusClaimKey 连续登录里程碑幂等键（按里程碑天数，账户生命周期内一次）
func StreakBonusClaimKey(streak int) string {
	return fmt.Sprintf("streak_bonus:%d", streak)
}

// FirstClientClaimKey 首个客户奖励幂等键（账户生命周期内一次）
func FirstClientClaimKey() string {
	return "first_client"
}

// ReferralClaimKey 推荐奖励幂等键（每个被推荐账户对推荐人只计一次）
func ReferralClaimKey(newUserID int64) string {
	return fmt.Sprintf("referral:%d", newUserID)
}

// ApplyMultiplier 按等级倍率计算发放积分，四舍五入
func ApplyMultiplier(base int64, multiplier float64) int64 {
	if multiplier <= 0 {
		multiplier = 1
	}
	return int64(math.Round(float64(base) * multiplier))
}

// SameDay 两个时间是否落在同一资格日
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayKey(a, loc) == DayKey(b, loc)
}

// IsYesterday 判断 prev 是否是 now 的前一天（连续登录判定）
func IsYesterday(prev, now time.Time, loc *time.Location) bool {
	return DayKey(prev, loc) == DayKey(now.AddDate(0, 0, -1), loc)
}

// DailyLogin 每日登录奖励
//
// 资格窗口 = 固定时区的自然日。已领取时返回 already_claimed，无副作用。
// 成功时：昨天领过则连续天数 +1，否则重置为 1；发放 基础分 × 等级倍率；
// 连续天数命中 7 / 30 里程碑时额外发放一次性奖励（按里程碑幂等，不按天）
func (s *RewardService) DailyLogin(ctx context.Context, userID int64) (*RewardResult, error) {
	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, fmt.Errorf("获取账户失败: %w", err)
	}

	accountLock := lock.NewAccountLock(s.redisClient, userID, idgen.GenerateEntryNo())
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer accountLock.Unlock(ctx)

	loc := s.cfg.Points.Location()
	now := time.Now()
	result := &RewardResult{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		tier, err := s.tierService.ResolvePrimary(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !tier.Has(model.PermCanEarnPoints) {
			result.Reason = ReasonTierRestricted
			result.NewBalance = account.PointsBalance
			return nil
		}

		claimKey := DailyLoginClaimKey(now, loc)
		claimed, err := s.ledgerRepo.ExistsClaim(ctx, tx, userID, claimKey)
		if err != nil {
			return err
		}
		if claimed {
			result.Reason = ReasonAlreadyClaimed
			result.NewBalance = account.PointsBalance
			return nil
		}

		// 连续登录判定
		streak := 1
		if account.LastLoginDate != nil && IsYesterday(*account.LastLoginDate, now, loc) {
			streak = account.LoginStreak + 1
		}
		if err := s.accountRepo.UpdateStreak(ctx, tx, userID, streak, now); err != nil {
			return fmt.Errorf("更新连续登录状态失败: %w", err)
		}

		points := ApplyMultiplier(s.cfg.Points.DailyLoginPoints, tier.PointsMultiplier)
		drafts := []*EntryDraft{{
			Type:              model.EntryTypeEarn,
			Amount:            points,
			Reason:            "每日登录奖励",
			SourceActionID:    "daily_login",
			MultiplierApplied: tier.PointsMultiplier,
			ClaimKey:          &claimKey,
			ExpiresAt:         s.ledgerService.DefaultEarnExpiry(now),
		}}

		// 里程碑奖励：按连续天数幂等，不按日期——断签后重新攒到 7 天不会再发
		if bonus := s.streakBonus(streak); bonus > 0 {
			bonusKey := StreakBonusClaimKey(streak)
			bonusClaimed, err := s.ledgerRepo.ExistsClaim(ctx, tx, userID, bonusKey)
			if err != nil {
				return err
			}
			if !bonusClaimed {
				drafts = append(drafts, &EntryDraft{
					Type:              model.EntryTypeEarn,
					Amount:            bonus,
					Reason:            fmt.Sprintf("连续登录 %d 天奖励", streak),
					SourceActionID:    "streak_bonus",
					MultiplierApplied: 1,
					ClaimKey:          &bonusKey,
					ExpiresAt:         s.ledgerService.DefaultEarnExpiry(now),
				})
			}
		}

		var total int64
		for _, d := range drafts {
			total += d.Amount
		}

		newBalance, _, err := s.ledgerService.ApplyLocked(ctx, tx, account, drafts)
		if err != nil {
			return err
		}

		result.Success = true
		result.PointsAwarded = total
		result.NewBalance = newBalance

		return s.ledgerService.EmitPointsEvent(ctx, tx, userID, "daily_login_reward", map[string]interface{}{
			"user_id":        userID,
			"points_awarded": total,
			"login_streak":   streak,
			"new_balance":    newBalance,
		})
	})

	if err != nil {
		return nil, err
	}

	if result.Success {
		log.Printf("每日登录奖励发放: userID=%d, points=%d, balance=%d", userID, result.PointsAwarded, result.NewBalance)
	}
	return result, nil
}

func (s *RewardService) streakBonus(streak int) int64 {
	switch streak {
	case 7:
		return s.cfg.Points.StreakBonus7
	case 30:
		return s.cfg.Points.StreakBonus30
	}
	return 0
}

// ToolUse 工具使用奖励
//
// 资格窗口 = 自然日，每日有次数上限；超限后返回成功但发放 0 分，
// 不是错误——重复调用必须无害
func (s *RewardService) ToolUse(ctx context.Context, userID int64, toolName string) (*RewardResult, error) {
	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, fmt.Errorf("获取账户失败: %w", err)
	}

	accountLock := lock.NewAccountLock(s.redisClient, userID, idgen.GenerateEntryNo())
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer accountLock.Unlock(ctx)

	loc := s.cfg.Points.Location()
	now := time.Now()
	result := &RewardResult{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		tier, err := s.tierService.ResolvePrimary(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !tier.Has(model.PermCanEarnPoints) {
			result.Reason = ReasonTierRestricted
			result.NewBalance = account.PointsBalance
			return nil
		}

		// 当日计数在账户行锁之下进行，与写入原子
		localNow := now.In(loc)
		dayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
		count, err := s.ledgerRepo.CountBySourceSince(ctx, tx, userID, "tool_use:", dayStart)
		if err != nil {
			return err
		}
		if count >= s.cfg.Points.ToolUseDailyCap {
			result.Success = true
			result.Reason = ReasonDailyCapReached
			result.NewBalance = account.PointsBalance
			return nil
		}

		points := ApplyMultiplier(s.cfg.Points.ToolUsePoints, tier.PointsMultiplier)
		newBalance, _, err := s.ledgerService.ApplyLocked(ctx, tx, account, []*EntryDraft{{
			Type:              model.EntryTypeEarn,
			Amount:            points,
			Reason:            fmt.Sprintf("使用工具奖励-%s", toolName),
			SourceActionID:    "tool_use:" + toolName,
			MultiplierApplied: tier.PointsMultiplier,
			ExpiresAt:         s.ledgerService.DefaultEarnExpiry(now),
		}})
		if err != nil {
			return err
		}

		result.Success = true
		result.PointsAwarded = points
		result.NewBalance = newBalance
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// FirstClient 首次创建客户奖励，账户生命周期内仅发放一次
func (s *RewardService) FirstClient(ctx context.Context, userID int64) (*RewardResult, error) {
	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, fmt.Errorf("获取账户失败: %w", err)
	}

	accountLock := lock.NewAccountLock(s.redisClient, userID, idgen.GenerateEntryNo())
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer accountLock.Unlock(ctx)

	result := &RewardResult{}
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		tier, err := s.tierService.ResolvePrimary(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !tier.Has(model.PermCanEarnPoints) {
			result.Reason = ReasonTierRestricted
			result.NewBalance = account.PointsBalance
			return nil
		}

		claimKey := FirstClientClaimKey()
		claimed, err := s.ledgerRepo.ExistsClaim(ctx, tx, userID, claimKey)
		if err != nil {
			return err
		}
		if claimed {
			result.Reason = ReasonAlreadyClaimed
			result.NewBalance = account.PointsBalance
			return nil
		}

		points := ApplyMultiplier(s.cfg.Points.FirstClientPoints, tier.PointsMultiplier)
		newBalance, _, err := s.ledgerService.ApplyLocked(ctx, tx, account, []*EntryDraft{{
			Type:              model.EntryTypeEarn,
			Amount:            points,
			Reason:            "首次创建客户奖励",
			SourceActionID:    "first_client",
			MultiplierApplied: tier.PointsMultiplier,
			ClaimKey:          &claimKey,
			ExpiresAt:         s.ledgerService.DefaultEarnExpiry(now),
		}})
		if err != nil {
			return err
		}

		result.Success = true
		result.PointsAwarded = points
		result.NewBalance = newBalance
		return nil
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}
