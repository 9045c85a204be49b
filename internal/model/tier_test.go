package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testTiers() map[int64]*Tier {
	return map[int64]*Tier{
		1: {ID: 1, Slug: "trial", Name: "体验版", Priority: 100, IsActive: true, IsDefault: true,
			Permissions: PermCanEarnPoints},
		2: {ID: 2, Slug: "pro", Name: "专业版", Priority: 10, IsActive: true,
			Permissions: PermCanUseTools | PermCanEarnPoints | PermCanRedeemPoints},
		3: {ID: 3, Slug: "vip", Name: "尊享版", Priority: 1, IsActive: true,
			Permissions: PermCanUseTools | PermCanEarnPoints | PermCanRedeemPoints | PermCanCustomReferral},
		4: {ID: 4, Slug: "legacy", Name: "停用版", Priority: 5, IsActive: false},
	}
}

func TestResolvePrimaryTier(t *testing.T) {
	now := time.Now()
	tiers := testTiers()

	t.Run("取优先级最高的等级", func(t *testing.T) {
		grants := []*TierGrant{
			{UserID: 1, TierID: 2, GrantedAt: now.Add(-time.Hour)},
			{UserID: 1, TierID: 3, GrantedAt: now},
		}
		tier := ResolvePrimaryTier(grants, tiers, now)
		assert.NotNil(t, tier)
		assert.Equal(t, "vip", tier.Slug)
	})

	t.Run("过期授予被忽略", func(t *testing.T) {
		past := now.Add(-time.Minute)
		grants := []*TierGrant{
			{UserID: 1, TierID: 3, GrantedAt: now.Add(-time.Hour), ExpiresAt: &past},
			{UserID: 1, TierID: 2, GrantedAt: now},
		}
		tier := ResolvePrimaryTier(grants, tiers, now)
		assert.Equal(t, "pro", tier.Slug)
	})

	t.Run("停用等级的授予被忽略", func(t *testing.T) {
		grants := []*TierGrant{
			{UserID: 1, TierID: 4, GrantedAt: now},
			{UserID: 1, TierID: 2, GrantedAt: now},
		}
		tier := ResolvePrimaryTier(grants, tiers, now)
		assert.Equal(t, "pro", tier.Slug)
	})

	t.Run("同优先级取最早授予", func(t *testing.T) {
		tiersEqual := map[int64]*Tier{
			5: {ID: 5, Slug: "a", Priority: 10, IsActive: true},
			6: {ID: 6, Slug: "b", Priority: 10, IsActive: true},
		}
		grants := []*TierGrant{
			{UserID: 1, TierID: 6, GrantedAt: now},
			{UserID: 1, TierID: 5, GrantedAt: now.Add(-time.Hour)},
		}
		tier := ResolvePrimaryTier(grants, tiersEqual, now)
		assert.Equal(t, "a", tier.Slug)
	})

	t.Run("无可用授予返回nil", func(t *testing.T) {
		assert.Nil(t, ResolvePrimaryTier(nil, tiers, now))

		past := now.Add(-time.Minute)
		grants := []*TierGrant{{UserID: 1, TierID: 3, GrantedAt: now.Add(-time.Hour), ExpiresAt: &past}}
		assert.Nil(t, ResolvePrimaryTier(grants, tiers, now))
	})

	t.Run("解析结果稳定", func(t *testing.T) {
		grants := []*TierGrant{
			{UserID: 1, TierID: 1, GrantedAt: now},
			{UserID: 1, TierID: 2, GrantedAt: now},
			{UserID: 1, TierID: 3, GrantedAt: now},
		}
		first := ResolvePrimaryTier(grants, tiers, now)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first.ID, ResolvePrimaryTier(grants, tiers, now).ID)
		}
	})
}

func TestTierHas(t *testing.T) {
	tier := &Tier{Permissions: PermCanUseTools | PermCanExport}

	assert.True(t, tier.Has(PermCanUseTools))
	assert.True(t, tier.Has(PermCanExport))
	assert.False(t, tier.Has(PermCanAccessAI))
	assert.False(t, tier.Has(PermCanCustomReferral))
}

func TestCanAccessTool(t *testing.T) {
	freeTools := map[string]bool{"loan_calculator": true}
	paid := &Tier{Slug: "pro", IsActive: true, Permissions: PermCanUseTools}
	free := &Tier{Slug: "trial", IsActive: true}
	inactive := &Tier{Slug: "legacy", IsActive: false, Permissions: PermCanUseTools}

	assert.True(t, CanAccessTool(paid, "tax_planner", freeTools))
	assert.True(t, CanAccessTool(paid, "loan_calculator", freeTools))
	assert.True(t, CanAccessTool(free, "loan_calculator", freeTools))
	assert.False(t, CanAccessTool(free, "tax_planner", freeTools))
	assert.False(t, CanAccessTool(inactive, "loan_calculator", freeTools))
	assert.False(t, CanAccessTool(nil, "loan_calculator", freeTools))
}

func TestTierGrantExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&TierGrant{}).Expired(now))
	assert.False(t, (&TierGrant{ExpiresAt: &future}).Expired(now))
	assert.True(t, (&TierGrant{ExpiresAt: &past}).Expired(now))
}
