package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierCatalogInvariants(t *testing.T) {
	for _, name := range TierNames() {
		tier, ok := LookupTier(name)
		require.True(t, ok, "tier %s missing from catalog", name)
		assert.Equal(t, name, tier.Name)
		assert.Equal(t, tier.RequestsPerWindow, tier.DailyLimit, "daily_limit must equal requests_per_window for %s", name)
		assert.Equal(t, 24*time.Hour, tier.Window)
	}
	assert.Len(t, Tiers, len(TierNames()))
}

func TestTierLifetimeCaps(t *testing.T) {
	tests := []struct {
		name   SubscriptionTier
		cap    int
		capped bool
	}{
		{SubscriptionTierFree, 0, false},
		{SubscriptionTierGift, 999, true},
		{SubscriptionTierPremiumGift, 1499, true},
		{SubscriptionTierStarter, 0, false},
		{SubscriptionTierEnterprise, 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			tier, ok := LookupTier(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.cap, tier.LifetimeImageCap)
			assert.Equal(t, tt.capped, tier.HasLifetimeCap())
		})
	}
}

func TestLookupTierUnknown(t *testing.T) {
	_, ok := LookupTier("platinum")
	assert.False(t, ok)

	_, ok = ParseTier("")
	assert.False(t, ok)
}

func TestDefaultTierIsFree(t *testing.T) {
	assert.Equal(t, SubscriptionTierFree, DefaultTier().Name)
	assert.Equal(t, 25, DefaultTier().DailyLimit)
}

func TestOrderedTiersFollowsCatalogOrder(t *testing.T) {
	tiers := OrderedTiers()
	require.Len(t, tiers, 5)
	assert.Equal(t, SubscriptionTierFree, tiers[0].Name)
	assert.Equal(t, SubscriptionTierEnterprise, tiers[4].Name)
}

// =============================================================================
// Subscription
// =============================================================================

func TestNewSubscriptionDefaults(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	sub := NewSubscription("caller", now)

	assert.Equal(t, SubscriptionTierFree, sub.Tier)
	assert.Zero(t, sub.ImagesUsedToday)
	assert.Zero(t, sub.TotalImagesUsed)
	assert.Equal(t, now, sub.LastReset)
	assert.Equal(t, now, sub.CreatedAt)
}

func TestSubscriptionWindowBoundary(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := NewSubscription("caller", now)
	tier := DefaultTier()

	assert.False(t, sub.WindowExpired(tier, now.Add(tier.Window)), "boundary instant belongs to the old window")
	assert.True(t, sub.WindowExpired(tier, now.Add(tier.Window+time.Millisecond)))
}

func TestSubscriptionRemaining(t *testing.T) {
	sub := &Subscription{Tier: SubscriptionTierGift, ImagesUsedToday: 120, TotalImagesUsed: 1000}
	gift := Tiers[SubscriptionTierGift]

	assert.Equal(t, 0, sub.DailyRemaining(gift))
	remaining, capped := sub.LifetimeRemaining(gift)
	assert.True(t, capped)
	assert.Equal(t, 0, remaining)

	_, capped = sub.LifetimeRemaining(Tiers[SubscriptionTierStarter])
	assert.False(t, capped)
}
