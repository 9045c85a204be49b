package job

import (
	"context"
	"log"
	"time"

	"uapoints/internal/config"
	"uapoints/internal/repository"
	"uapoints/internal/service"

	"gorm.io/gorm"
)

// ExpirySweeper 过期核销任务
// 周期性找出持有已到期积分批次的账户，在账户事务内核销（追加 EXPIRE 流水）；
// 同时清理已过期的等级授予并重算主等级
//
// 读路径（概览/兑换）也会在账户事务内做核销，本任务只是兜底，
// 保证长期不活跃的账户也能及时核销
type ExpirySweeper struct {
	db            *gorm.DB
	lotRepo       *repository.LotRepository
	tierRepo      *repository.TierRepository
	ledgerService *service.LedgerService
	tierService   *service.TierService
	cfg           *config.Config
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
}

func NewExpirySweeper(db *gorm.DB, cfg *config.Config) *ExpirySweeper {
	return &ExpirySweeper{
		db:            db,
		lotRepo:       repository.NewLotRepository(db),
		tierRepo:      repository.NewTierRepository(db),
		ledgerService: service.NewLedgerService(db, cfg),
		tierService:   service.NewTierService(db, cfg),
		cfg:           cfg,
		stopCh:        make(chan struct{}),
		interval:      time.Minute,
		batchSize:     100,
	}
}

func (j *ExpirySweeper) Start(ctx context.Context) {
	log.Println("[ExpirySweeper] 过期核销任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ExpirySweeper] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ExpirySweeper] 任务停止")
			return
		case <-ticker.C:
			j.sweepLots(ctx)
			j.sweepTierGrants(ctx)
		}
	}
}

func (j *ExpirySweeper) Stop() {
	close(j.stopCh)
}

func (j *ExpirySweeper) sweepLots(ctx context.Context) {
	userIDs, err := j.lotRepo.ListDueUserIDs(ctx, time.Now(), j.batchSize)
	if err != nil {
		log.Printf("[ExpirySweeper] 查询待核销账户失败: %v", err)
		return
	}

	if len(userIDs) == 0 {
		return
	}

	log.Printf("[ExpirySweeper] 发现 %d 个账户存在到期批次", len(userIDs))

	sweptCount := 0
	for _, userID := range userIDs {
		// 空批次应用 = 只做核销
		if _, _, err := j.ledgerService.Apply(ctx, userID, nil); err != nil {
			log.Printf("[ExpirySweeper] 核销失败: userID=%d, err=%v", userID, err)
			continue
		}
		sweptCount++
	}

	log.Printf("[ExpirySweeper] 本次核销 %d 个账户", sweptCount)
}

func (j *ExpirySweeper) sweepTierGrants(ctx context.Context) {
	userIDs, err := j.tierRepo.ListExpiredGrantUserIDs(ctx, time.Now(), j.batchSize)
	if err != nil {
		log.Printf("[ExpirySweeper] 查询过期等级授予失败: %v", err)
		return
	}

	for _, userID := range userIDs {
		if err := j.tierService.SweepExpiredGrants(ctx, userID); err != nil {
			log.Printf("[ExpirySweeper] 清理过期授予失败: userID=%d, err=%v", userID, err)
			continue
		}
		log.Printf("[ExpirySweeper] 已清理过期等级授予并重算主等级: userID=%d", userID)
	}
}
