package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func makeLot(id, remaining int64, expiresAt time.Time) *PointLot {
	return &PointLot{
		ID:              id,
		InitialAmount:   remaining,
		RemainingAmount: remaining,
		ExpiresAt:       expiresAt,
	}
}

func TestConsumeLotsFIFO(t *testing.T) {
	now := time.Now()
	d10 := now.AddDate(0, 0, 10)
	d20 := now.AddDate(0, 0, 20)

	t.Run("消耗单个批次", func(t *testing.T) {
		lots := []*PointLot{makeLot(1, 100, d10)}
		plan := ConsumeLotsFIFO(lots, 30)

		assert.Len(t, plan, 1)
		assert.Equal(t, int64(1), plan[0].LotID)
		assert.Equal(t, int64(30), plan[0].Amount)
	})

	t.Run("跨批次消耗_最早的先扣", func(t *testing.T) {
		lots := []*PointLot{
			makeLot(1, 100, d10),
			makeLot(2, 50, d20),
		}
		plan := ConsumeLotsFIFO(lots, 120)

		assert.Len(t, plan, 2)
		assert.Equal(t, LotConsumption{LotID: 1, Amount: 100}, plan[0])
		assert.Equal(t, LotConsumption{LotID: 2, Amount: 20}, plan[1])
	})

	t.Run("超出批次总量的部分由不设期限的积分承担", func(t *testing.T) {
		lots := []*PointLot{makeLot(1, 100, d10)}
		plan := ConsumeLotsFIFO(lots, 150)

		// 计划只覆盖 100，剩余 50 不产生批次消耗
		assert.Len(t, plan, 1)
		assert.Equal(t, int64(100), plan[0].Amount)
	})

	t.Run("跳过已耗尽的批次", func(t *testing.T) {
		lots := []*PointLot{
			makeLot(1, 0, d10),
			makeLot(2, 50, d20),
		}
		plan := ConsumeLotsFIFO(lots, 30)

		assert.Len(t, plan, 1)
		assert.Equal(t, int64(2), plan[0].LotID)
	})

	t.Run("零出账无计划", func(t *testing.T) {
		lots := []*PointLot{makeLot(1, 100, d10)}
		assert.Empty(t, ConsumeLotsFIFO(lots, 0))
	})

	t.Run("无批次无计划", func(t *testing.T) {
		assert.Empty(t, ConsumeLotsFIFO(nil, 100))
	})
}

// 先花后过期：花掉的部分不会在到期时被重复扣除
func TestPartialSpendThenExpiry(t *testing.T) {
	now := time.Now()
	lots := []*PointLot{
		makeLot(1, 100, now.AddDate(0, 0, 10)),
		makeLot(2, 50, now.AddDate(0, 0, 20)),
	}

	// 花 30 分，应全部从最早批次扣
	plan := ConsumeLotsFIFO(lots, 30)
	assert.Len(t, plan, 1)
	for _, c := range plan {
		for _, lot := range lots {
			if lot.ID == c.LotID {
				lot.RemainingAmount -= c.Amount
			}
		}
	}
	assert.Equal(t, int64(70), lots[0].RemainingAmount)
	assert.Equal(t, int64(120), SumRemaining(lots))

	// 11 天后第一批到期，只核销剩余 70
	future := now.AddDate(0, 0, 11)
	due := ExpiredLots(lots, future)
	assert.Len(t, due, 1)
	assert.Equal(t, int64(1), due[0].ID)
	assert.Equal(t, int64(70), due[0].RemainingAmount)

	// 21 天后第二批也到期
	future = now.AddDate(0, 0, 21)
	due = ExpiredLots(lots, future)
	assert.Len(t, due, 2)
}

func TestExpiredLots(t *testing.T) {
	now := time.Now()

	t.Run("未到期不核销", func(t *testing.T) {
		lots := []*PointLot{makeLot(1, 100, now.Add(time.Hour))}
		assert.Empty(t, ExpiredLots(lots, now))
	})

	t.Run("已耗尽的批次不核销", func(t *testing.T) {
		lot := makeLot(1, 100, now.Add(-time.Hour))
		lot.RemainingAmount = 0
		assert.Empty(t, ExpiredLots([]*PointLot{lot}, now))
	})

	t.Run("到期且有剩余才核销", func(t *testing.T) {
		lots := []*PointLot{
			makeLot(1, 100, now.Add(-time.Hour)),
			makeLot(2, 50, now.Add(time.Hour)),
		}
		due := ExpiredLots(lots, now)
		assert.Len(t, due, 1)
		assert.Equal(t, int64(1), due[0].ID)
	})
}

func TestSumRemaining(t *testing.T) {
	now := time.Now()
	lots := []*PointLot{
		makeLot(1, 100, now),
		makeLot(2, 50, now),
	}
	lots[0].RemainingAmount = 30

	assert.Equal(t, int64(80), SumRemaining(lots))
	assert.Equal(t, int64(0), SumRemaining(nil))
}
