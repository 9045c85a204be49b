package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"uapoints/internal/config"
	"uapoints/internal/infrastructure/lock"
	"uapoints/internal/model"
	"uapoints/internal/repository"
	"uapoints/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrInvalidReferralCode = errors.New("推荐码不存在")
	ErrSelfReferral        = errors.New("不能使用自己的推荐码")
	ErrReferralCodeFormat  = errors.New("推荐码格式不合法")
)

// ReferralService 推荐注册服务
// 每个新账户只能绑定一次推荐人，绑定后不可变更；
// 推荐人后续修改推荐码不影响已记录的推荐关系
type ReferralService struct {
	db            *gorm.DB
	redisClient   *redis.Client
	cfg           *config.Config
	accountRepo   *repository.AccountRepository
	ledgerRepo    *repository.LedgerRepository
	ledgerService *LedgerService
	tierService   *TierService
}

func NewReferralService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *ReferralService {
	return &ReferralService{
		db:            db,
		redisClient:   redisClient,
		cfg:           cfg,
		accountRepo:   repository.NewAccountRepository(db),
		ledgerRepo:    repository.NewLedgerRepository(db),
		ledgerService: NewLedgerService(db, cfg),
		tierService:   NewTierService(db, cfg),
	}
}

type ReferralResult struct {
	Success        bool  `json:"success"`
	ReferrerReward int64 `json:"referrer_reward"`
	NewUserReward  int64 `json:"new_user_reward"`
}

// ApplyReferral 应用推荐码
//
// 【关键点】双方奖励和推荐关系绑定在一个事务内完成：
// 1. referred_by 用条件更新写入（仅当前值为空时生效），绑定即永久
// 2. 推荐人奖励幂等键 referral:<新用户ID>，请求重放不会二次发放
// 3. 两个账户的行锁按用户ID升序获取，避免互相推荐场景下的死锁
func (s *ReferralService) ApplyReferral(ctx context.Context, newUserID int64, code string) (*ReferralResult, error) {
	newAccount, err := s.accountRepo.GetOrCreate(ctx, newUserID)
	if err != nil {
		return nil, fmt.Errorf("获取账户失败: %w", err)
	}

	referrer, err := s.accountRepo.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidReferralCode
		}
		return nil, err
	}

	if referrer.UserID == newUserID {
		return nil, ErrSelfReferral
	}
	if newAccount.ReferredBy != nil {
		return nil, repository.ErrAlreadyReferred
	}

	// 账户锁按用户ID升序获取
	lockIDs := []int64{newUserID, referrer.UserID}
	if lockIDs[0] > lockIDs[1] {
		lockIDs[0], lockIDs[1] = lockIDs[1], lockIDs[0]
	}
	lockValue := idgen.GenerateEntryNo()
	for _, id := range lockIDs {
		accountLock := lock.NewAccountLock(s.redisClient, id, lockValue)
		if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer accountLock.Unlock(ctx)
	}

	result := &ReferralResult{}
	now := time.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// 行锁同样按用户ID升序获取
		accounts := make(map[int64]*model.Account, 2)
		for _, id := range lockIDs {
			account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			accounts[id] = account
		}

		// 条件更新保证绑定只发生一次
		if err := s.accountRepo.SetReferredBy(ctx, tx, newUserID, referrer.UserID); err != nil {
			return err
		}

		// 推荐人奖励（幂等键按被推荐人）
		referralKey := ReferralClaimKey(newUserID)
		claimed, err := s.ledgerRepo.ExistsClaim(ctx, tx, referrer.UserID, referralKey)
		if err != nil {
			return err
		}
		if !claimed {
			referrerPoints := s.cfg.Points.ReferralReferrerPoints
			if _, _, err := s.ledgerService.ApplyLocked(ctx, tx, accounts[referrer.UserID], []*EntryDraft{{
				Type:           model.EntryTypeEarn,
				Amount:         referrerPoints,
				Reason:         fmt.Sprintf("推荐新用户奖励（用户 %d）", newUserID),
				SourceActionID: "referral_bonus",
				ClaimKey:       &referralKey,
				ExpiresAt:      s.ledgerService.DefaultEarnExpiry(now),
			}}); err != nil {
				return err
			}
			result.ReferrerReward = referrerPoints
		}

		// 新用户欢迎奖励
		welcomeKey := "referral_welcome"
		claimed, err = s.ledgerRepo.ExistsClaim(ctx, tx, newUserID, welcomeKey)
		if err != nil {
			return err
		}
		if !claimed {
			welcomePoints := s.cfg.Points.ReferralWelcomePoints
			if _, _, err := s.ledgerService.ApplyLocked(ctx, tx, accounts[newUserID], []*EntryDraft{{
				Type:           model.EntryTypeEarn,
				Amount:         welcomePoints,
				Reason:         "受邀注册奖励",
				SourceActionID: "referral_welcome",
				ClaimKey:       &welcomeKey,
				ExpiresAt:      s.ledgerService.DefaultEarnExpiry(now),
			}}); err != nil {
				return err
			}
			result.NewUserReward = welcomePoints
		}

		result.Success = true
		return s.ledgerService.EmitPointsEvent(ctx, tx, newUserID, "referral_applied", map[string]interface{}{
			"new_user_id":     newUserID,
			"referrer_id":     referrer.UserID,
			"referrer_reward": result.ReferrerReward,
			"new_user_reward": result.NewUserReward,
		})
	})

	if err != nil {
		return nil, err
	}

	log.Printf("推荐关系生效: newUserID=%d, referrerID=%d", newUserID, referrer.UserID)
	return result, nil
}

// ValidateReferralCode 推荐码格式校验：长度范围内的字母和数字
func ValidateReferralCode(code string, minLen, maxLen int) error {
	if len(code) < minLen || len(code) > maxLen {
		return ErrReferralCodeFormat
	}
	for _, r := range code {
		isDigit := r >= '0' && r <= '9'
		isUpper := r >= 'A' && r <= 'Z'
		isLower := r >= 'a' && r <= 'z'
		if !isDigit && !isUpper && !isLower {
			return ErrReferralCodeFormat
		}
	}
	return nil
}

// UpdateReferralCode 用户自定义推荐码
// 需要等级权限；修改不影响已记录的 referred_by 关系
func (s *ReferralService) UpdateReferralCode(ctx context.Context, userID int64, newCode string) (string, error) {
	newCode = strings.ToUpper(strings.TrimSpace(newCode))
	if err := ValidateReferralCode(newCode, s.cfg.Points.ReferralCodeMinLen, s.cfg.Points.ReferralCodeMaxLen); err != nil {
		return "", err
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return "", fmt.Errorf("获取账户失败: %w", err)
	}

	tier, err := s.tierService.ResolvePrimary(ctx, nil, userID)
	if err != nil {
		return "", err
	}
	if !tier.Has(model.PermCanCustomReferral) {
		return "", ErrTierRestricted
	}

	if err := s.accountRepo.UpdateReferralCode(ctx, userID, newCode); err != nil {
		return "", err
	}
	return newCode, nil
}
