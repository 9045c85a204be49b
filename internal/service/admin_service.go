package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"uapoints/internal/config"
	"uapoints/internal/infrastructure/lock"
	"uapoints/internal/model"
	"uapoints/internal/repository"
	"uapoints/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var ErrAdjustAmountZero = errors.New("调整金额不能为0")

// AdminService 管理端操作：等级/商品配置 CRUD、手工调整积分、流水导出
// 配置表归管理端所有，引擎侧只读（商品的 stock_used 除外）
type AdminService struct {
	db            *gorm.DB
	redisClient   *redis.Client
	cfg           *config.Config
	accountRepo   *repository.AccountRepository
	tierRepo      *repository.TierRepository
	itemRepo      *repository.ItemRepository
	ledgerRepo    *repository.LedgerRepository
	auditRepo     *repository.AuditRepository
	ledgerService *LedgerService
	tierService   *TierService
}

func NewAdminService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *AdminService {
	return &AdminService{
		db:            db,
		redisClient:   redisClient,
		cfg:           cfg,
		accountRepo:   repository.NewAccountRepository(db),
		tierRepo:      repository.NewTierRepository(db),
		itemRepo:      repository.NewItemRepository(db),
		ledgerRepo:    repository.NewLedgerRepository(db),
		auditRepo:     repository.NewAuditRepository(db),
		ledgerService: NewLedgerService(db, cfg),
		tierService:   NewTierService(db, cfg),
	}
}

// ============================================================
// 等级配置
// ============================================================

func (s *AdminService) CreateTier(ctx context.Context, tier *model.Tier) error {
	return s.tierRepo.Create(ctx, tier)
}

func (s *AdminService) UpdateTier(ctx context.Context, tier *model.Tier) error {
	if _, err := s.tierRepo.GetByID(ctx, tier.ID); err != nil {
		return err
	}
	return s.tierRepo.Update(ctx, tier)
}

// DeactivateTier 停用等级（软删除：保留历史授予记录的可追溯性）
func (s *AdminService) DeactivateTier(ctx context.Context, tierID int64) error {
	tier, err := s.tierRepo.GetByID(ctx, tierID)
	if err != nil {
		return err
	}
	tier.IsActive = false
	return s.tierRepo.Update(ctx, tier)
}

func (s *AdminService) ListTiers(ctx context.Context) ([]*model.Tier, error) {
	return s.tierRepo.ListAll(ctx)
}

// ============================================================
// 商品配置
// ============================================================

func (s *AdminService) CreateItem(ctx context.Context, item *model.RedeemableItem) error {
	return s.itemRepo.Create(ctx, item)
}

func (s *AdminService) UpdateItem(ctx context.Context, item *model.RedeemableItem) error {
	existing, err := s.itemRepo.GetByID(ctx, item.ID)
	if err != nil {
		return err
	}
	// stock_used 归兑换引擎所有，管理端不得改写
	item.StockUsed = existing.StockUsed
	return s.itemRepo.Update(ctx, item)
}

func (s *AdminService) GetItem(ctx context.Context, itemID int64) (*model.RedeemableItem, error) {
	return s.itemRepo.GetByID(ctx, itemID)
}

// ============================================================
// 手工调整
// ============================================================

// ManualAdjust 管理员手工调整积分
// 写一条 ADJUST 流水，同事务记一条带前后余额快照的审计日志
func (s *AdminService) ManualAdjust(ctx context.Context, operator string, userID int64, amount int64, reason string) (int64, error) {
	if amount == 0 {
		return 0, ErrAdjustAmountZero
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return 0, fmt.Errorf("获取账户失败: %w", err)
	}

	adjustNo := idgen.GenerateAdjustNo()
	accountLock := lock.NewAccountLock(s.redisClient, userID, adjustNo)
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return 0, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer accountLock.Unlock(ctx)

	var newBalance int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		balanceBefore := account.PointsBalance

		balance, entryNos, err := s.ledgerService.ApplyLocked(ctx, tx, account, []*EntryDraft{{
			Type:           model.EntryTypeAdjust,
			Amount:         amount,
			Reason:         reason,
			SourceActionID: "manual_adjust:" + adjustNo,
		}})
		if err != nil {
			return err
		}
		newBalance = balance

		audit := &model.AuditLog{
			Operator:      operator,
			UserID:        userID,
			Action:        "manual_adjust",
			EntryNo:       entryNos[0],
			BalanceBefore: balanceBefore,
			BalanceAfter:  balance,
			Reason:        reason,
		}
		if err := s.auditRepo.Create(ctx, tx, audit); err != nil {
			return fmt.Errorf("记录审计日志失败: %w", err)
		}

		return s.ledgerService.EmitPointsEvent(ctx, tx, userID, "manual_adjust", map[string]interface{}{
			"user_id":     userID,
			"operator":    operator,
			"amount":      amount,
			"new_balance": balance,
		})
	})

	if err != nil {
		return 0, err
	}

	log.Printf("手工调整积分: operator=%s, userID=%d, amount=%d, balance=%d", operator, userID, amount, newBalance)
	return newBalance, nil
}

// ============================================================
// 流水导出
// ============================================================

var csvHeader = []string{"timestamp", "user", "type", "amount", "balance_after", "reason", "source"}

// CSVRecord 单条流水的导出行
func CSVRecord(entry *model.LedgerEntry) []string {
	return []string{
		entry.CreatedAt.Format(time.RFC3339),
		strconv.FormatInt(entry.UserID, 10),
		entry.Type,
		strconv.FormatInt(entry.Amount, 10),
		strconv.FormatInt(entry.BalanceAfter, 10),
		entry.Reason,
		entry.SourceActionID,
	}
}

// ExportLedgerCSV 按时间范围导出全量流水
func (s *AdminService) ExportLedgerCSV(ctx context.Context, w io.Writer, from, to time.Time) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	err := s.ledgerRepo.ListForExport(ctx, from, to, 500, func(entries []*model.LedgerEntry) error {
		for _, entry := range entries {
			if err := writer.Write(CSVRecord(entry)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

// ============================================================
// 等级授予管理
// ============================================================

func (s *AdminService) GrantTier(ctx context.Context, userID, tierID int64, durationDays int) error {
	return s.tierService.Grant(ctx, userID, tierID, durationDays)
}

func (s *AdminService) RevokeTierGrant(ctx context.Context, userID, grantID int64) error {
	return s.tierService.Revoke(ctx, userID, grantID)
}

func (s *AdminService) ListTierGrants(ctx context.Context, userID int64) ([]*model.TierGrant, error) {
	return s.tierService.ListGrants(ctx, userID)
}
