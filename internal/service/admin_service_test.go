package service

import (
	"testing"
	"time"

	"uapoints/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestCSVRecord(t *testing.T) {
	createdAt := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
	entry := &model.LedgerEntry{
		UserID:         12345,
		Type:           model.EntryTypeSpend,
		Amount:         -500,
		BalanceAfter:   1500,
		Reason:         "兑换商品",
		SourceActionID: "redeem:7",
		CreatedAt:      createdAt,
	}

	record := CSVRecord(entry)

	assert.Equal(t, []string{
		"2026-09-01T10:30:00Z",
		"12345",
		"SPEND",
		"-500",
		"1500",
		"兑换商品",
		"redeem:7",
	}, record)

	// 每行列数和表头保持一致
	assert.Len(t, record, len(csvHeader))
}
