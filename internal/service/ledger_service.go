package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"uapoints/internal/config"
	"uapoints/internal/model"
	"uapoints/internal/repository"
	"uapoints/pkg/idgen"

	"gorm.io/gorm"
)

// EntryDraft 一笔待入账的流水
// Amount 带符号：入账为正，出账为负
type EntryDraft struct {
	Type              string
	Amount            int64
	Reason            string
	SourceActionID    string
	MultiplierApplied float64
	ClaimKey          *string    // 幂等奖励设置，其余为 nil
	ExpiresAt         *time.Time // 仅 EARN 设置
}

// LedgerService 积分账本服务
// 所有积分变动的唯一入口：过期核销、余额校验、流水落库、批次维护、
// 缓存余额更新在同一个数据库事务内完成
type LedgerService struct {
	db          *gorm.DB
	cfg         *config.Config
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	lotRepo     *repository.LotRepository
	outboxRepo  *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:          db,
		cfg:         cfg,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		lotRepo:     repository.NewLotRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// ApplyLocked 在已持有账户行锁的事务内应用一批流水
//
// 【关键点】整批原子：
// 1. 先核销已到期批次（追加 EXPIRE 流水），保证后续余额校验基于未过期积分
// 2. 逐笔应用，任何一笔会把余额打成负数则整批失败回滚
// 3. EARN 建批次；出账按 FIFO 消耗批次剩余
// 4. 最后一次性回写缓存余额
//
// 返回新余额和本批流水号（不含过期核销产生的流水）
func (s *LedgerService) ApplyLocked(ctx context.Context, tx *gorm.DB, account *model.Account, drafts []*EntryDraft) (int64, []string, error) {
	now := time.Now()
	balance := account.PointsBalance

	lots, err := s.lotRepo.ListLiveByUserID(ctx, tx, account.UserID)
	if err != nil {
		return 0, nil, fmt.Errorf("读取积分批次失败: %w", err)
	}

	// 过期核销
	expired, err := s.expireDueLots(ctx, tx, account.UserID, lots, &balance, now)
	if err != nil {
		return 0, nil, err
	}
	if expired > 0 {
		// 剔除已核销批次
		live := lots[:0]
		for _, lot := range lots {
			if lot.RemainingAmount > 0 {
				live = append(live, lot)
			}
		}
		lots = live
	}

	entryNos := make([]string, 0, len(drafts))
	for _, draft := range drafts {
		after := balance + draft.Amount
		if after < 0 {
			return 0, nil, repository.ErrInsufficientBalance
		}

		entry := &model.LedgerEntry{
			EntryNo:           idgen.GenerateEntryNo(),
			UserID:            account.UserID,
			Type:              draft.Type,
			Amount:            draft.Amount,
			BalanceBefore:     balance,
			BalanceAfter:      after,
			Reason:            draft.Reason,
			SourceActionID:    draft.SourceActionID,
			MultiplierApplied: draft.MultiplierApplied,
			ClaimKey:          draft.ClaimKey,
			ExpiresAt:         draft.ExpiresAt,
		}
		if entry.MultiplierApplied == 0 {
			entry.MultiplierApplied = 1
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return 0, nil, fmt.Errorf("记录流水失败: %w", err)
		}

		switch {
		case draft.Type == model.EntryTypeEarn && draft.ExpiresAt != nil:
			lot := &model.PointLot{
				UserID:          account.UserID,
				EntryNo:         entry.EntryNo,
				InitialAmount:   draft.Amount,
				RemainingAmount: draft.Amount,
				ExpiresAt:       *draft.ExpiresAt,
			}
			if err := s.lotRepo.Create(ctx, tx, lot); err != nil {
				return 0, nil, fmt.Errorf("创建积分批次失败: %w", err)
			}
			lots = append(lots, lot)

		case draft.Amount < 0:
			// 出账优先消耗最早获得的批次，超出部分由不设有效期的积分承担
			plan := model.ConsumeLotsFIFO(lots, -draft.Amount)
			for _, c := range plan {
				if err := s.lotRepo.Consume(ctx, tx, c.LotID, c.Amount); err != nil {
					return 0, nil, fmt.Errorf("消耗积分批次失败: %w", err)
				}
			}
			consumed := make(map[int64]int64, len(plan))
			for _, c := range plan {
				consumed[c.LotID] = c.Amount
			}
			for _, lot := range lots {
				lot.RemainingAmount -= consumed[lot.ID]
			}
		}

		balance = after
		entryNos = append(entryNos, entry.EntryNo)
	}

	if err := s.accountRepo.UpdateBalance(ctx, tx, account.UserID, balance); err != nil {
		return 0, nil, fmt.Errorf("更新余额失败: %w", err)
	}
	account.PointsBalance = balance

	return balance, entryNos, nil
}

// expireDueLots 核销已到期批次，每个批次追加一条 EXPIRE 流水
// 只核销批次剩余部分：用户已花掉的积分不会被重复扣除
func (s *LedgerService) expireDueLots(ctx context.Context, tx *gorm.DB, userID int64, lots []*model.PointLot, balance *int64, now time.Time) (int64, error) {
	var expiredTotal int64
	for _, lot := range model.ExpiredLots(lots, now) {
		remaining := lot.RemainingAmount
		entry := &model.LedgerEntry{
			EntryNo:           idgen.GenerateEntryNo(),
			UserID:            userID,
			Type:              model.EntryTypeExpire,
			Amount:            -remaining,
			BalanceBefore:     *balance,
			BalanceAfter:      *balance - remaining,
			Reason:            fmt.Sprintf("积分批次到期核销（来源流水 %s）", lot.EntryNo),
			SourceActionID:    "lot_expiry",
			MultiplierApplied: 1,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return 0, fmt.Errorf("记录过期流水失败: %w", err)
		}
		if err := s.lotRepo.Consume(ctx, tx, lot.ID, remaining); err != nil {
			return 0, fmt.Errorf("核销积分批次失败: %w", err)
		}
		lot.RemainingAmount = 0
		*balance -= remaining
		expiredTotal += remaining
	}
	return expiredTotal, nil
}

// Apply 在独立事务中应用一批流水（自动加账户行锁）
// drafts 为空时等价于一次"读时核销"：只做过期批次清理
func (s *LedgerService) Apply(ctx context.Context, userID int64, drafts []*EntryDraft) (int64, []string, error) {
	var newBalance int64
	var entryNos []string

	err := s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		before := account.PointsBalance
		newBalance, entryNos, err = s.ApplyLocked(ctx, tx, account, drafts)
		if err != nil {
			return err
		}

		// 有过期核销时同事务写入事件
		if len(drafts) == 0 && newBalance != before {
			return s.EmitPointsEvent(ctx, tx, userID, "points_expired", map[string]interface{}{
				"user_id":        userID,
				"expired_amount": before - newBalance,
				"new_balance":    newBalance,
			})
		}
		return nil
	})

	if err != nil {
		return 0, nil, err
	}
	return newBalance, entryNos, nil
}

// EmitPointsEvent 积分事件写入发件箱（与业务写入同事务）
func (s *LedgerService) EmitPointsEvent(ctx context.Context, tx *gorm.DB, key int64, eventType string, payload map[string]interface{}) error {
	payload["event_type"] = eventType
	payload["occurred_at"] = time.Now().Format(time.RFC3339)
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: fmt.Sprintf("%d", key),
		Topic:      s.cfg.Kafka.Topic.PointsEvent,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	return s.outboxRepo.Create(ctx, tx, msg)
}

// PointsSummary 积分概览
type PointsSummary struct {
	CurrentPoints      int64                `json:"current_points"`
	TotalEarned        int64                `json:"total_earned"`
	TotalSpent         int64                `json:"total_spent"`
	TotalExpired       int64                `json:"total_expired"`
	LoginStreak        int                  `json:"login_streak"`
	ReferralCode       string               `json:"referral_code"`
	ReferralCount      int64                `json:"referral_count"`
	ExpiringIn30Days   int64                `json:"expiring_in_30_days"`
	RecentTransactions []*model.LedgerEntry `json:"recent_transactions"`
}

// GetSummary 积分概览
// 先做一次读时核销，保证返回的余额不含已过期积分
func (s *LedgerService) GetSummary(ctx context.Context, userID int64) (*PointsSummary, error) {
	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, fmt.Errorf("获取账户失败: %w", err)
	}

	if _, _, err := s.Apply(ctx, userID, nil); err != nil {
		return nil, fmt.Errorf("过期核销失败: %w", err)
	}

	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sums, err := s.ledgerRepo.SumByTypes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("聚合流水失败: %w", err)
	}

	expiring, err := s.lotRepo.SumExpiringWithin(ctx, userID, time.Now().AddDate(0, 0, 30))
	if err != nil {
		return nil, fmt.Errorf("统计即将过期积分失败: %w", err)
	}

	referralCount, err := s.accountRepo.CountReferredBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("统计推荐人数失败: %w", err)
	}

	recent, _, err := s.ledgerRepo.ListByUserID(ctx, userID, 1, 20)
	if err != nil {
		return nil, fmt.Errorf("查询最近流水失败: %w", err)
	}

	return &PointsSummary{
		CurrentPoints:      account.PointsBalance,
		TotalEarned:        sums.TotalEarned,
		TotalSpent:         sums.TotalSpent,
		TotalExpired:       sums.TotalExpired,
		LoginStreak:        account.LoginStreak,
		ReferralCode:       account.ReferralCode,
		ReferralCount:      referralCount,
		ExpiringIn30Days:   expiring,
		RecentTransactions: recent,
	}, nil
}

// ListTransactions 流水分页查询
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
}

// DefaultEarnExpiry 按配置计算新 EARN 批次的到期时间
func (s *LedgerService) DefaultEarnExpiry(now time.Time) *time.Time {
	expiry := now.AddDate(0, 0, s.cfg.Points.EarnExpireDays)
	return &expiry
}
