package domain

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GiftCode is a redeemable token that moves a caller onto a target tier.
// Codes are reusable; Used is carried for reporting and never set by redemption.
type GiftCode struct {
	Code       string
	TargetTier SubscriptionTier
	Used       bool
	CreatedAt  time.Time
}

// DefaultGiftCodes are the codes seeded at process start.
var DefaultGiftCodes = map[string]SubscriptionTier{
	"WELCOME999":    SubscriptionTierGift,
	"LAUNCH2024":    SubscriptionTierGift,
	"BETA999":       SubscriptionTierGift,
	"RAPIDAPI999":   SubscriptionTierGift,
	"CLOUDFLARE999": SubscriptionTierGift,
	"PREMIUM1499":   SubscriptionTierPremiumGift,
	"FREE1499":      SubscriptionTierPremiumGift,
	"LAUNCH1499":    SubscriptionTierPremiumGift,
	"WELCOME1499":   SubscriptionTierPremiumGift,
	"SUPERUSER1499": SubscriptionTierPremiumGift,
}

// NormalizeGiftCode trims and upper-cases a caller-supplied code.
func NormalizeGiftCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

// GiftCodeRegistry resolves gift codes to tiers.
// The code set is fixed after construction; only redemption counts change.
type GiftCodeRegistry struct {
	codes []GiftCode // slice for constant-time iteration

	mu          sync.Mutex
	redemptions map[string]int
}

// NewGiftCodeRegistry builds a registry from code → tier pairs.
// Codes are normalized and deduplicated; unknown tiers are rejected.
func NewGiftCodeRegistry(seed map[string]SubscriptionTier, now time.Time) (*GiftCodeRegistry, error) {
	r := &GiftCodeRegistry{
		codes:       make([]GiftCode, 0, len(seed)),
		redemptions: make(map[string]int),
	}
	seen := make(map[string]bool)
	for raw, tier := range seed {
		code := NormalizeGiftCode(raw)
		if code == "" || seen[code] {
			continue
		}
		if _, ok := LookupTier(tier); !ok {
			return nil, fmt.Errorf("gift code %s maps to unknown tier %q", code, tier)
		}
		seen[code] = true
		r.codes = append(r.codes, GiftCode{Code: code, TargetTier: tier, CreatedAt: now})
	}
	return r, nil
}

// Resolve looks up a code case-insensitively.
//
// Every registered code is compared in constant time so lookup latency does
// not reveal how close a guess was.
func (r *GiftCodeRegistry) Resolve(code string) (GiftCode, bool) {
	normalized := []byte(NormalizeGiftCode(code))
	if len(normalized) == 0 {
		return GiftCode{}, false
	}

	match := -1
	for i, gc := range r.codes {
		candidate := []byte(gc.Code)
		if subtle.ConstantTimeEq(int32(len(normalized)), int32(len(candidate))) == 1 &&
			subtle.ConstantTimeCompare(normalized, candidate) == 1 {
			match = i
		}
	}
	if match < 0 {
		return GiftCode{}, false
	}
	return r.codes[match], true
}

// MarkRedeemed records a redemption of code. The code stays valid.
func (r *GiftCodeRegistry) MarkRedeemed(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redemptions[code]++
	return r.redemptions[code]
}

// Redemptions returns the number of redemptions across all codes.
func (r *GiftCodeRegistry) Redemptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.redemptions {
		total += n
	}
	return total
}

// Len returns the number of registered codes.
func (r *GiftCodeRegistry) Len() int {
	return len(r.codes)
}
