package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shanghaiLoc(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	return loc
}

func TestDayKey(t *testing.T) {
	loc := shanghaiLoc(t)

	// UTC 2026-09-01 18:00 = 上海 2026-09-02 02:00，资格日按固定时区判定
	utcEvening := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-09-02", DayKey(utcEvening, loc))

	utcMorning := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-09-01", DayKey(utcMorning, loc))
}

func TestClaimKeys(t *testing.T) {
	loc := shanghaiLoc(t)
	at := time.Date(2026, 9, 1, 10, 0, 0, 0, loc)

	assert.Equal(t, "daily_login:2026-09-01", DailyLoginClaimKey(at, loc))
	assert.Equal(t, "streak_bonus:7", StreakBonusClaimKey(7))
	assert.Equal(t, "streak_bonus:30", StreakBonusClaimKey(30))
	assert.Equal(t, "first_client", FirstClientClaimKey())
	assert.Equal(t, "referral:12345", ReferralClaimKey(12345))
}

func TestSameDay(t *testing.T) {
	loc := shanghaiLoc(t)

	a := time.Date(2026, 9, 1, 0, 30, 0, 0, loc)
	b := time.Date(2026, 9, 1, 23, 30, 0, 0, loc)
	c := time.Date(2026, 9, 2, 0, 30, 0, 0, loc)

	assert.True(t, SameDay(a, b, loc))
	assert.False(t, SameDay(b, c, loc))

	// 同一瞬间不同表示时区，资格日一致
	utc := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	local := utc.In(loc)
	assert.True(t, SameDay(utc, local, loc))
}

func TestIsYesterday(t *testing.T) {
	loc := shanghaiLoc(t)
	now := time.Date(2026, 9, 2, 9, 0, 0, 0, loc)

	assert.True(t, IsYesterday(time.Date(2026, 9, 1, 23, 59, 0, 0, loc), now, loc))
	assert.False(t, IsYesterday(time.Date(2026, 9, 2, 0, 1, 0, 0, loc), now, loc))
	assert.False(t, IsYesterday(time.Date(2026, 8, 31, 12, 0, 0, 0, loc), now, loc))

	// 跨月
	assert.True(t, IsYesterday(
		time.Date(2026, 8, 31, 12, 0, 0, 0, loc),
		time.Date(2026, 9, 1, 12, 0, 0, 0, loc),
		loc,
	))
}

func TestApplyMultiplier(t *testing.T) {
	tests := []struct {
		base       int64
		multiplier float64
		want       int64
	}{
		{10, 1.0, 10},
		{10, 1.5, 15},
		{10, 2.0, 20},
		{5, 1.5, 8},  // 7.5 四舍五入
		{3, 1.1, 3},  // 3.3 四舍五入
		{10, 0, 10},  // 非法倍率回退为 1
		{10, -1, 10}, // 非法倍率回退为 1
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ApplyMultiplier(tt.base, tt.multiplier),
			"base=%d multiplier=%v", tt.base, tt.multiplier)
	}
}
