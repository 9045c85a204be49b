package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemRemaining(t *testing.T) {
	t.Run("不限量", func(t *testing.T) {
		item := &RedeemableItem{Stock: StockUnlimited, StockUsed: 999}
		assert.Equal(t, int64(StockUnlimited), item.Remaining())
	})

	t.Run("限量", func(t *testing.T) {
		item := &RedeemableItem{Stock: 10, StockUsed: 3}
		assert.Equal(t, int64(7), item.Remaining())
	})

	t.Run("售罄", func(t *testing.T) {
		item := &RedeemableItem{Stock: 10, StockUsed: 10}
		assert.Equal(t, int64(0), item.Remaining())
	})
}

func TestItemIsVirtual(t *testing.T) {
	assert.True(t, (&RedeemableItem{RequiresShipping: false}).IsVirtual())
	assert.False(t, (&RedeemableItem{RequiresShipping: true}).IsVirtual())
}
