// Package domain contains core business types and interfaces.
//
// This file defines the subscription tier catalog that governs per-caller
// quota: a rolling daily window plus an optional lifetime image cap.
package domain

import "time"

// SubscriptionTier identifies a quota/pricing plan.
type SubscriptionTier string

const (
	SubscriptionTierFree        SubscriptionTier = "free"
	SubscriptionTierGift        SubscriptionTier = "gift"
	SubscriptionTierPremiumGift SubscriptionTier = "premium_gift"
	SubscriptionTierStarter     SubscriptionTier = "starter"
	SubscriptionTierEnterprise  SubscriptionTier = "enterprise"
)

// DefaultWindow is the length of the rolling daily window for every catalog tier.
const DefaultWindow = 24 * time.Hour

// Tier describes the limits of a subscription tier.
type Tier struct {
	Name              SubscriptionTier
	DisplayName       string
	RequestsPerWindow int
	Window            time.Duration
	DailyLimit        int
	LifetimeImageCap  int // 0 means unlimited
	Price             float64
}

// HasLifetimeCap reports whether the tier limits total images ever generated.
func (t Tier) HasLifetimeCap() bool {
	return t.LifetimeImageCap > 0
}

// tierOrder is the catalog order used for listings.
var tierOrder = []SubscriptionTier{
	SubscriptionTierFree,
	SubscriptionTierGift,
	SubscriptionTierPremiumGift,
	SubscriptionTierStarter,
	SubscriptionTierEnterprise,
}

// Tiers maps tier names to their limits.
var Tiers = map[SubscriptionTier]Tier{
	SubscriptionTierFree: {
		Name:              SubscriptionTierFree,
		DisplayName:       "Free",
		RequestsPerWindow: 25,
		Window:            DefaultWindow,
		DailyLimit:        25,
	},
	SubscriptionTierGift: {
		Name:              SubscriptionTierGift,
		DisplayName:       "Gift (999 Images)",
		RequestsPerWindow: 100,
		Window:            DefaultWindow,
		DailyLimit:        100,
		LifetimeImageCap:  999,
	},
	SubscriptionTierPremiumGift: {
		Name:              SubscriptionTierPremiumGift,
		DisplayName:       "Premium Gift (1499 Images FREE!)",
		RequestsPerWindow: 150,
		Window:            DefaultWindow,
		DailyLimit:        150,
		LifetimeImageCap:  1499,
	},
	SubscriptionTierStarter: {
		Name:              SubscriptionTierStarter,
		DisplayName:       "Starter Plan",
		RequestsPerWindow: 500,
		Window:            DefaultWindow,
		DailyLimit:        500,
		Price:             9.99,
	},
	SubscriptionTierEnterprise: {
		Name:              SubscriptionTierEnterprise,
		DisplayName:       "Enterprise Plan",
		RequestsPerWindow: 5000,
		Window:            DefaultWindow,
		DailyLimit:        5000,
		Price:             49.99,
	},
}

// LookupTier returns the tier with the given name.
// Unknown names return false; callers must fail closed.
func LookupTier(name SubscriptionTier) (Tier, bool) {
	t, ok := Tiers[name]
	return t, ok
}

// DefaultTier is the tier assigned to callers seen for the first time.
func DefaultTier() Tier {
	return Tiers[SubscriptionTierFree]
}

// TierNames returns every tier name in catalog order.
func TierNames() []SubscriptionTier {
	names := make([]SubscriptionTier, len(tierOrder))
	copy(names, tierOrder)
	return names
}

// OrderedTiers returns every tier in catalog order.
func OrderedTiers() []Tier {
	tiers := make([]Tier, 0, len(tierOrder))
	for _, name := range tierOrder {
		tiers = append(tiers, Tiers[name])
	}
	return tiers
}

// ParseTier validates a tier name from external input.
func ParseTier(s string) (SubscriptionTier, bool) {
	name := SubscriptionTier(s)
	_, ok := Tiers[name]
	return name, ok
}
