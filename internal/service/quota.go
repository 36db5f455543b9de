// Package service contains the business logic layer.
//
// This file implements the quota enforcer: the per-caller admission check
// that applies the lazy daily-window reset, the daily cap and the lifetime
// cap, and reserves an in-flight slot for each admitted request.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
	"github.com/DukeRupert/genapi/internal/metrics"
)

// Enforcer decides whether a caller may generate.
type Enforcer struct {
	ledger *ledger.Ledger
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]int
}

// NewEnforcer creates an Enforcer over l.
func NewEnforcer(l *ledger.Ledger, logger *slog.Logger) *Enforcer {
	return &Enforcer{
		ledger:   l,
		logger:   logger.With("component", "quota"),
		inflight: make(map[string]int),
	}
}

// Admission is a granted quota check holding one in-flight slot. Exactly one
// of Commit or Release should be called; extra calls are no-ops.
type Admission struct {
	enforcer  *Enforcer
	callerID  string
	tier      domain.Tier
	limit     int
	remaining int
	done      atomic.Bool
}

// Tier returns the caller's tier at admission time.
func (a *Admission) Tier() domain.Tier { return a.tier }

// Limit returns the caller's daily limit.
func (a *Admission) Limit() int { return a.limit }

// Remaining returns the images left today once this request is charged.
func (a *Admission) Remaining() int { return a.remaining }

// Commit charges one image to the caller and frees the slot.
func (a *Admission) Commit(ctx context.Context) (*domain.Subscription, error) {
	if !a.done.CompareAndSwap(false, true) {
		return nil, nil
	}
	defer a.enforcer.release(a.callerID)

	sub, err := a.enforcer.ledger.RecordConsumption(ctx, a.callerID)
	if err != nil {
		return nil, err
	}
	metrics.ImageCharged(a.tier.Name)
	return sub, nil
}

// Release frees the slot without charging.
func (a *Admission) Release() {
	if !a.done.CompareAndSwap(false, true) {
		return
	}
	a.enforcer.release(a.callerID)
}

// Check runs the admission algorithm for callerID. Rejections are
// *domain.Error values with class ERATELIMIT.
func (e *Enforcer) Check(ctx context.Context, callerID string) (*Admission, error) {
	const op = "quota.check"

	var adm *Admission
	_, err := e.ledger.Update(ctx, callerID, func(sub *domain.Subscription) error {
		tier, ok := domain.LookupTier(sub.Tier)
		if !ok {
			return domain.Errorf(domain.EINTERNAL, domain.ReasonUnknownTier, op, "Unknown subscription tier %q", sub.Tier)
		}

		now := e.ledger.Now()
		if sub.WindowExpired(tier, now) {
			sub.ResetWindow(now)
		}

		// Runs under the ledger's per-caller lock, so reading and reserving
		// the in-flight count cannot interleave with another check.
		pending := e.pending(callerID)

		if sub.ImagesUsedToday+pending >= tier.DailyLimit {
			metrics.QuotaDecision(tier.Name, metrics.OutcomeDailyLimit)
			return dailyLimitError(op, tier, sub.WindowResetsAt(tier), now)
		}

		if tier.HasLifetimeCap() && sub.TotalImagesUsed+pending >= tier.LifetimeImageCap {
			metrics.QuotaDecision(tier.Name, metrics.OutcomeLifetimeLimit)
			return lifetimeLimitError(op, tier)
		}

		e.reserve(callerID)
		metrics.QuotaDecision(tier.Name, metrics.OutcomeAdmitted)

		adm = &Admission{
			enforcer:  e,
			callerID:  callerID,
			tier:      tier,
			limit:     tier.DailyLimit,
			remaining: max(tier.DailyLimit-sub.ImagesUsedToday-pending-1, 0),
		}
		return nil
	})
	if err != nil {
		if adm != nil {
			// Reserved but the store write failed.
			adm.Release()
		}
		if domain.ErrorCode(err) == domain.ERATELIMIT {
			e.logger.Info("quota exceeded", "caller", ledger.ShortID(callerID), "reason", domain.ErrorReason(err))
		}
		return nil, err
	}

	return adm, nil
}

// Usage is a read-only view of a caller's quota.
type Usage struct {
	Tier              domain.Tier
	ImagesUsedToday   int
	TotalImagesUsed   int
	DailyRemaining    int
	LifetimeRemaining *int
	ResetsAt          time.Time
	CreatedAt         time.Time
}

// Usage reports the caller's quota as the next check would see it, without
// creating or modifying the entry.
func (e *Enforcer) Usage(ctx context.Context, callerID string) (*Usage, error) {
	const op = "quota.usage"

	sub, err := e.ledger.Peek(ctx, callerID)
	if err != nil {
		return nil, err
	}

	tier, ok := domain.LookupTier(sub.Tier)
	if !ok {
		return nil, domain.Errorf(domain.EINTERNAL, domain.ReasonUnknownTier, op, "Unknown subscription tier %q", sub.Tier)
	}

	now := e.ledger.Now()
	if sub.WindowExpired(tier, now) {
		sub.ResetWindow(now)
	}

	u := &Usage{
		Tier:            tier,
		ImagesUsedToday: sub.ImagesUsedToday,
		TotalImagesUsed: sub.TotalImagesUsed,
		DailyRemaining:  sub.DailyRemaining(tier),
		ResetsAt:        sub.WindowResetsAt(tier),
		CreatedAt:       sub.CreatedAt,
	}
	if n, capped := sub.LifetimeRemaining(tier); capped {
		u.LifetimeRemaining = &n
	}
	return u, nil
}

func (e *Enforcer) pending(callerID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight[callerID]
}

func (e *Enforcer) reserve(callerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight[callerID]++
}

func (e *Enforcer) release(callerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[callerID] <= 1 {
		delete(e.inflight, callerID)
		return
	}
	e.inflight[callerID]--
}

// RetryAfterSeconds returns whole seconds until resetsAt, rounded up and at
// least one.
func RetryAfterSeconds(resetsAt, now time.Time) int {
	d := resetsAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

func dailyLimitError(op string, tier domain.Tier, resetsAt, now time.Time) error {
	retryAfter := RetryAfterSeconds(resetsAt, now)
	hours := (retryAfter + 3599) / 3600

	return domain.RateLimit(op, domain.ReasonDailyLimitExceeded,
		fmt.Sprintf("Daily limit of %d images exceeded for %s tier", tier.DailyLimit, tier.DisplayName)).
		WithDetails("Resets in %d hours", hours).
		WithAttr("tier", string(tier.Name)).
		WithAttr("retry_after", retryAfter)
}

func lifetimeLimitError(op string, tier domain.Tier) error {
	return domain.RateLimit(op, domain.ReasonTotalLimitExceeded,
		fmt.Sprintf("You have used all %d images from your %s", tier.LifetimeImageCap, tier.DisplayName)).
		WithDetails("Please upgrade to Starter or Enterprise plan for unlimited images").
		WithAttr("tier", string(tier.Name)).
		WithAttr("images_remaining", 0)
}
