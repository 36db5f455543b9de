package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/metrics"
)

// Ledger is the subscription ledger. All mutations of one caller's entry are
// serialized; different callers proceed in parallel.
type Ledger struct {
	store  Store
	locks  *keyedMutex
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source. Used by tests to move across windows.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a Ledger backed by store.
func New(store Store, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// GetOrCreate returns the caller's entry, creating a default free-tier entry
// on first sight.
func (l *Ledger) GetOrCreate(ctx context.Context, callerID string) (*domain.Subscription, error) {
	unlock := l.locks.Lock(callerID)
	defer unlock()

	return l.getOrCreateLocked(ctx, callerID, "ledger.get_or_create")
}

// Peek returns the caller's entry without creating one. Unknown callers get
// an unsaved default entry.
func (l *Ledger) Peek(ctx context.Context, callerID string) (*domain.Subscription, error) {
	const op = "ledger.peek"

	sub, err := l.store.Get(ctx, callerID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	if sub == nil {
		return domain.NewSubscription(callerID, l.now()), nil
	}
	return sub, nil
}

// Update runs fn against the caller's entry while holding the caller's lock.
// The entry is persisted after fn returns, whether or not fn failed, so that
// window resets made before a rejection are kept. fn's error is returned as is.
func (l *Ledger) Update(ctx context.Context, callerID string, fn func(sub *domain.Subscription) error) (*domain.Subscription, error) {
	const op = "ledger.update"

	unlock := l.locks.Lock(callerID)
	defer unlock()

	sub, err := l.getOrCreateLocked(ctx, callerID, op)
	if err != nil {
		return nil, err
	}

	fnErr := fn(sub)

	if err := l.store.Put(ctx, sub); err != nil {
		return nil, domain.Internal(err, op, "failed to save subscription")
	}
	return sub.Clone(), fnErr
}

// SetTier moves the caller onto tier. Usage counters are left untouched.
func (l *Ledger) SetTier(ctx context.Context, callerID string, tier domain.SubscriptionTier) (*domain.Subscription, error) {
	return l.Update(ctx, callerID, func(sub *domain.Subscription) error {
		sub.Tier = tier
		return nil
	})
}

// RecordConsumption adds one image to both the daily and lifetime counters.
func (l *Ledger) RecordConsumption(ctx context.Context, callerID string) (*domain.Subscription, error) {
	const op = "ledger.record_consumption"

	unlock := l.locks.Lock(callerID)
	defer unlock()

	sub, err := l.store.Increment(ctx, callerID, 1)
	if errors.Is(err, ErrNotFound) {
		// Entry was pruned between admission and completion.
		if _, err := l.getOrCreateLocked(ctx, callerID, op); err != nil {
			return nil, err
		}
		sub, err = l.store.Increment(ctx, callerID, 1)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to record consumption")
	}
	return sub, nil
}

// Count returns the number of entries in the ledger.
func (l *Ledger) Count(ctx context.Context) (int, error) {
	n, err := l.store.Count(ctx)
	if err != nil {
		return 0, domain.Internal(err, "ledger.count", "failed to count subscriptions")
	}
	return n, nil
}

// Prune removes free-tier entries that never generated anything and whose
// window has lapsed. Such entries behave exactly like a freshly created one,
// so dropping them does not change any caller's quota.
func (l *Ledger) Prune(ctx context.Context) (int, error) {
	const op = "ledger.prune"

	tier := domain.DefaultTier()
	cutoff := l.now().Add(-tier.Window)

	n, err := l.store.DeleteIdle(ctx, tier.Name, cutoff)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to prune subscriptions")
	}
	return n, nil
}

// StartJanitor prunes idle entries every interval until ctx is cancelled.
// A zero or negative interval disables pruning.
func (l *Ledger) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep(ctx)
			}
		}
	}()
}

func (l *Ledger) sweep(ctx context.Context) {
	n, err := l.Prune(ctx)
	if err != nil {
		l.logger.Error("ledger prune failed", "error", err)
		return
	}
	metrics.LedgerPruned(n)

	total, err := l.Count(ctx)
	if err != nil {
		l.logger.Error("ledger count failed", "error", err)
		return
	}
	metrics.LedgerEntries.Set(float64(total))

	if n > 0 {
		l.logger.Info("pruned idle subscriptions", "removed", n, "remaining", total)
	}
}

func (l *Ledger) getOrCreateLocked(ctx context.Context, callerID, op string) (*domain.Subscription, error) {
	sub, err := l.store.Get(ctx, callerID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	if sub != nil {
		return sub, nil
	}

	sub = domain.NewSubscription(callerID, l.now())
	if err := l.store.Put(ctx, sub); err != nil {
		return nil, domain.Internal(err, op, "failed to create subscription")
	}
	l.logger.Debug("subscription created", "caller", ShortID(callerID), "tier", sub.Tier)
	return sub, nil
}

// ShortID truncates a caller ID for log output.
func ShortID(callerID string) string {
	if len(callerID) > 12 {
		return callerID[:12]
	}
	return callerID
}
