package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
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
	ErrItemInactive         = errors.New("商品已下架")
	ErrShippingInfoRequired = errors.New("该商品需要填写收货信息")
	ErrPerUserLimitReached  = errors.New("已达到该商品每人限兑次数")
	ErrTierRestricted       = errors.New("当前等级不允许兑换积分")
)

// RedeemService 积分兑换引擎
// 库存校验、每人限兑、余额扣减、订单创建在一个事务内完成
type RedeemService struct {
	db            *gorm.DB
	redisClient   *redis.Client
	cfg           *config.Config
	accountRepo   *repository.AccountRepository
	itemRepo      *repository.ItemRepository
	orderRepo     *repository.OrderRepository
	outboxRepo    *repository.OutboxRepository
	ledgerService *LedgerService
	tierService   *TierService
}

func NewRedeemService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RedeemService {
	return &RedeemService{
		db:            db,
		redisClient:   redisClient,
		cfg:           cfg,
		accountRepo:   repository.NewAccountRepository(db),
		itemRepo:      repository.NewItemRepository(db),
		orderRepo:     repository.NewOrderRepository(db),
		outboxRepo:    repository.NewOutboxRepository(db),
		ledgerService: NewLedgerService(db, cfg),
		tierService:   NewTierService(db, cfg),
	}
}

type RedeemRequest struct {
	RequestID    string `json:"request_id" binding:"required"` // 幂等ID，客户端生成
	UserID       int64  `json:"user_id" binding:"required"`
	ItemID       int64  `json:"item_id" binding:"required"`
	Variant      string `json:"variant"`
	ShippingInfo string `json:"shipping_info"`
}

type RedeemResponse struct {
	Success    bool   `json:"success"`
	OrderNo    string `json:"order_no"`
	IsVirtual  bool   `json:"is_virtual"`
	NewBalance int64  `json:"new_balance"`
	Message    string `json:"message,omitempty"`
}

// Redeem 兑换商品
//
// 【关键点】兑换是引擎里唯一同时动两个共享资源（账户余额、商品库存）的操作：
// 1. 幂等性：相同 request_id 直接返回已有订单
// 2. 锁顺序：先账户锁后商品锁，全局固定，避免死锁
// 3. 原子性：库存占用、SPEND 流水、订单创建同事务；
//    虚拟商品的自动动作（延长等级天数）也在同一事务内生效
// 4. 防超卖：库存占用走条件更新，并发抢最后一件只有一个成功
func (s *RedeemService) Redeem(ctx context.Context, req *RedeemRequest) (*RedeemResponse, error) {
	// 幂等校验
	existingOrder, err := s.orderRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existingOrder != nil {
		return s.existingOrderResponse(ctx, existingOrder)
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("获取账户失败: %w", err)
	}

	// 先账户锁后商品锁
	accountLock := lock.NewAccountLock(s.redisClient, req.UserID, req.RequestID)
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer accountLock.Unlock(ctx)

	itemLock := lock.NewItemLock(s.redisClient, req.ItemID, req.RequestID)
	if err := itemLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer itemLock.Unlock(ctx)

	// 获取锁后再次检查幂等
	existingOrder, err = s.orderRepo.GetByRequestID(ctx, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if existingOrder != nil {
		return s.existingOrderResponse(ctx, existingOrder)
	}

	resp := &RedeemResponse{}
	orderNo := idgen.GenerateOrderNo()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		item, err := s.itemRepo.GetByIDForUpdate(ctx, tx, req.ItemID)
		if err != nil {
			return err
		}

		if !item.IsActive {
			return ErrItemInactive
		}
		if item.Stock != model.StockUnlimited && item.StockUsed >= item.Stock {
			return repository.ErrOutOfStock
		}

		if item.MaxPerUser != model.MaxPerUserUnlimited {
			count, err := s.orderRepo.CountByUserAndItem(ctx, tx, req.UserID, req.ItemID)
			if err != nil {
				return err
			}
			if count >= item.MaxPerUser {
				return ErrPerUserLimitReached
			}
		}

		if account.PointsBalance < item.PointsCost {
			return repository.ErrInsufficientBalance
		}

		tier, err := s.tierService.ResolvePrimary(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !tier.Has(model.PermCanRedeemPoints) {
			return ErrTierRestricted
		}

		// 收货信息必须在下单前备齐，不创建半成品订单
		if item.RequiresShipping && req.ShippingInfo == "" {
			return ErrShippingInfoRequired
		}

		if err := s.itemRepo.IncrementStockUsed(ctx, tx, req.ItemID); err != nil {
			return err
		}

		newBalance, _, err := s.ledgerService.ApplyLocked(ctx, tx, account, []*EntryDraft{{
			Type:           model.EntryTypeSpend,
			Amount:         -item.PointsCost,
			Reason:         fmt.Sprintf("兑换-%s", item.Name),
			SourceActionID: fmt.Sprintf("redeem:%d", item.ID),
		}})
		if err != nil {
			return err
		}

		order := &model.RedemptionOrder{
			OrderNo:      orderNo,
			RequestID:    req.RequestID,
			UserID:       req.UserID,
			ItemID:       item.ID,
			ItemName:     item.Name,
			PointsCost:   item.PointsCost,
			Variant:      req.Variant,
			Status:       model.OrderStatusPending,
			ShippingInfo: req.ShippingInfo,
		}

		// 虚拟商品即时完成，自动动作同事务生效
		if item.IsVirtual() && item.AutoActionDays > 0 {
			order.Status = model.OrderStatusCompleted
			now := time.Now()
			order.CompletedAt = &now
			if err := s.tierService.ExtendGrant(ctx, tx, req.UserID, item.AutoActionTierID, item.AutoActionDays); err != nil {
				return err
			}
		}

		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}

		resp.Success = true
		resp.OrderNo = orderNo
		resp.IsVirtual = item.IsVirtual()
		resp.NewBalance = newBalance
		resp.Message = "兑换成功"

		return s.emitRedemptionEvent(ctx, tx, orderNo, "order_created", map[string]interface{}{
			"order_no":    orderNo,
			"user_id":     req.UserID,
			"item_id":     item.ID,
			"points_cost": item.PointsCost,
			"status":      order.Status,
		})
	})

	if err != nil {
		return nil, err
	}

	log.Printf("兑换成功: orderNo=%s, userID=%d, itemID=%d", orderNo, req.UserID, req.ItemID)
	return resp, nil
}

func (s *RedeemService) existingOrderResponse(ctx context.Context, order *model.RedemptionOrder) (*RedeemResponse, error) {
	account, err := s.accountRepo.GetByUserID(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	return &RedeemResponse{
		Success:    true,
		OrderNo:    order.OrderNo,
		NewBalance: account.PointsBalance,
		Message:    "订单已存在",
	}, nil
}

// CancelOrder 取消兑换订单
// 退还积分（REFUND 流水）和回补库存必须与状态变更同事务
func (s *RedeemService) CancelOrder(ctx context.Context, orderNo string, reason string) error {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}

	if order.Status == model.OrderStatusCancelled {
		// 已取消，幂等返回
		return nil
	}
	if !model.CanTransitionTo(order.Status, model.OrderStatusCancelled) {
		return repository.ErrOrderStatusInvalid
	}

	accountLock := lock.NewAccountLock(s.redisClient, order.UserID, orderNo)
	if err := accountLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer accountLock.Unlock(ctx)

	itemLock := lock.NewItemLock(s.redisClient, order.ItemID, orderNo)
	if err := itemLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer itemLock.Unlock(ctx)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, order.UserID)
		if err != nil {
			return err
		}

		// 条件更新，被并发抢先时失败回滚
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, order.Status, model.OrderStatusCancelled); err != nil {
			return err
		}

		if _, _, err := s.ledgerService.ApplyLocked(ctx, tx, account, []*EntryDraft{{
			Type:           model.EntryTypeRefund,
			Amount:         order.PointsCost,
			Reason:         fmt.Sprintf("订单取消退还-%s", reason),
			SourceActionID: fmt.Sprintf("refund:%s", orderNo),
		}}); err != nil {
			return err
		}

		if err := s.itemRepo.DecrementStockUsed(ctx, tx, order.ItemID); err != nil {
			return fmt.Errorf("回补库存失败: %w", err)
		}

		return s.emitRedemptionEvent(ctx, tx, orderNo, "order_cancelled", map[string]interface{}{
			"order_no":        orderNo,
			"user_id":         order.UserID,
			"item_id":         order.ItemID,
			"points_refunded": order.PointsCost,
			"reason":          reason,
		})
	})

	if err != nil {
		return err
	}

	log.Printf("订单已取消并退还积分: orderNo=%s, userID=%d, points=%d", orderNo, order.UserID, order.PointsCost)
	return nil
}

// UpdateOrderStatus 履约侧状态流转（processing/shipped/completed）
// 取消必须走 CancelOrder，保证退积分和回补库存
func (s *RedeemService) UpdateOrderStatus(ctx context.Context, orderNo string, toStatus string) error {
	if toStatus == model.OrderStatusCancelled {
		return s.CancelOrder(ctx, orderNo, "管理员取消")
	}

	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	return s.orderRepo.UpdateStatus(ctx, nil, orderNo, order.Status, toStatus)
}

// ListItems 商城商品列表（含计算出的剩余量）
func (s *RedeemService) ListItems(ctx context.Context, category string) ([]*model.RedeemableItem, error) {
	return s.itemRepo.ListActive(ctx, category)
}

// ListUserOrders 用户兑换订单历史
func (s *RedeemService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.RedemptionOrder, int64, error) {
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *RedeemService) emitRedemptionEvent(ctx context.Context, tx *gorm.DB, key string, eventType string, payload map[string]interface{}) error {
	payload["event_type"] = eventType
	payload["occurred_at"] = time.Now().Format(time.RFC3339)
	payloadBytes, _ := json.Marshal(payload)

	msg := &model.OutboxMessage{
		MessageKey: key,
		Topic:      s.cfg.Kafka.Topic.RedemptionEvent,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	}
	return s.outboxRepo.Create(ctx, tx, msg)
}
