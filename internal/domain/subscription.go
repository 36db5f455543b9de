package domain

import "time"

// Subscription is a caller's ledger entry: current tier plus usage counters.
// Counters survive tier changes.
type Subscription struct {
	CallerID        string
	Tier            SubscriptionTier
	ImagesUsedToday int
	TotalImagesUsed int
	LastReset       time.Time
	CreatedAt       time.Time
}

// NewSubscription returns a fresh entry on the default tier.
func NewSubscription(callerID string, now time.Time) *Subscription {
	return &Subscription{
		CallerID:  callerID,
		Tier:      SubscriptionTierFree,
		LastReset: now,
		CreatedAt: now,
	}
}

// WindowResetsAt returns when the current daily window ends.
func (s *Subscription) WindowResetsAt(t Tier) time.Time {
	return s.LastReset.Add(t.Window)
}

// WindowExpired reports whether the daily window has elapsed at now.
// The boundary instant itself still belongs to the old window.
func (s *Subscription) WindowExpired(t Tier, now time.Time) bool {
	return now.After(s.WindowResetsAt(t))
}

// ResetWindow starts a new daily window at now.
func (s *Subscription) ResetWindow(now time.Time) {
	s.ImagesUsedToday = 0
	s.LastReset = now
}

// DailyRemaining returns images left in the current window, never negative.
func (s *Subscription) DailyRemaining(t Tier) int {
	return max(t.DailyLimit-s.ImagesUsedToday, 0)
}

// LifetimeRemaining returns images left under the lifetime cap.
// The second result is false when the tier has no lifetime cap.
func (s *Subscription) LifetimeRemaining(t Tier) (int, bool) {
	if !t.HasLifetimeCap() {
		return 0, false
	}
	return max(t.LifetimeImageCap-s.TotalImagesUsed, 0), true
}

// Clone returns a copy safe to hand to callers.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
