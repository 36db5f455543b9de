package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
	"github.com/DukeRupert/genapi/internal/ledger/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type quotaFixture struct {
	enforcer *Enforcer
	ledger   *ledger.Ledger
	store    *memstore.Store
	clock    *fakeClock
}

func newQuotaFixture(t *testing.T) *quotaFixture {
	t.Helper()
	c := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := memstore.New()
	l := ledger.New(store, discardLogger(), ledger.WithClock(c.Now))
	return &quotaFixture{
		enforcer: NewEnforcer(l, discardLogger()),
		ledger:   l,
		store:    store,
		clock:    c,
	}
}

func (f *quotaFixture) seed(t *testing.T, sub *domain.Subscription) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), sub))
}

func (f *quotaFixture) load(t *testing.T, id string) *domain.Subscription {
	t.Helper()
	sub, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func TestCheck_FreshCallerAdmitted(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()

	adm, err := f.enforcer.Check(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionTierFree, adm.Tier().Name)
	assert.Equal(t, 25, adm.Limit())
	assert.Equal(t, 24, adm.Remaining())

	sub := f.load(t, "caller")
	assert.Zero(t, sub.ImagesUsedToday)

	_, err = adm.Commit(ctx)
	require.NoError(t, err)

	sub = f.load(t, "caller")
	assert.Equal(t, 1, sub.ImagesUsedToday)
	assert.Equal(t, 1, sub.TotalImagesUsed)
}

func TestCheck_DailyLimitExceeded(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		adm, err := f.enforcer.Check(ctx, "caller")
		require.NoError(t, err, "request %d", i+1)
		_, err = adm.Commit(ctx)
		require.NoError(t, err)
	}

	f.clock.Advance(time.Hour)

	_, err := f.enforcer.Check(ctx, "caller")
	require.Error(t, err)
	assert.Equal(t, domain.ERATELIMIT, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonDailyLimitExceeded, domain.ErrorReason(err))
	assert.Equal(t, "Daily limit of 25 images exceeded for Free tier", domain.ErrorMessage(err))
	assert.Equal(t, "Resets in 23 hours", domain.ErrorDetails(err))

	attrs := domain.ErrorAttrs(err)
	assert.Equal(t, "free", attrs["tier"])
	assert.Equal(t, 23*3600, attrs["retry_after"])
}

func TestCheck_WindowResetAdmits(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	f.seed(t, &domain.Subscription{
		CallerID:        "caller",
		Tier:            domain.SubscriptionTierFree,
		ImagesUsedToday: 25,
		TotalImagesUsed: 40,
		LastReset:       start,
		CreatedAt:       start,
	})

	// The boundary instant still belongs to the old window.
	f.clock.Advance(24 * time.Hour)
	_, err := f.enforcer.Check(ctx, "caller")
	require.Error(t, err)

	f.clock.Advance(time.Millisecond)
	adm, err := f.enforcer.Check(ctx, "caller")
	require.NoError(t, err)
	adm.Release()

	sub := f.load(t, "caller")
	assert.Zero(t, sub.ImagesUsedToday)
	assert.Equal(t, 40, sub.TotalImagesUsed)
	assert.Equal(t, f.clock.Now(), sub.LastReset)
}

func TestCheck_LifetimeCapSurvivesWindowReset(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	f.seed(t, &domain.Subscription{
		CallerID:        "caller",
		Tier:            domain.SubscriptionTierGift,
		ImagesUsedToday: 10,
		TotalImagesUsed: 999,
		LastReset:       start,
		CreatedAt:       start,
	})

	f.clock.Advance(25 * time.Hour)

	_, err := f.enforcer.Check(ctx, "caller")
	require.Error(t, err)
	assert.Equal(t, domain.ReasonTotalLimitExceeded, domain.ErrorReason(err))
	assert.Equal(t, "You have used all 999 images from your Gift (999 Images)", domain.ErrorMessage(err))
	assert.Equal(t, "Please upgrade to Starter or Enterprise plan for unlimited images", domain.ErrorDetails(err))
	assert.Equal(t, 0, domain.ErrorAttrs(err)["images_remaining"])
	assert.NotContains(t, domain.ErrorAttrs(err), "retry_after")

	// Rejection still persists the window reset.
	assert.Zero(t, f.load(t, "caller").ImagesUsedToday)
}

func TestCheck_DailyCheckedBeforeLifetime(t *testing.T) {
	f := newQuotaFixture(t)
	now := f.clock.Now()

	f.seed(t, &domain.Subscription{
		CallerID:        "caller",
		Tier:            domain.SubscriptionTierGift,
		ImagesUsedToday: 100,
		TotalImagesUsed: 999,
		LastReset:       now,
		CreatedAt:       now,
	})

	_, err := f.enforcer.Check(context.Background(), "caller")
	assert.Equal(t, domain.ReasonDailyLimitExceeded, domain.ErrorReason(err))
}

func TestCheck_UnknownTierFailsClosed(t *testing.T) {
	f := newQuotaFixture(t)
	now := f.clock.Now()

	f.seed(t, &domain.Subscription{CallerID: "caller", Tier: "platinum", LastReset: now, CreatedAt: now})

	_, err := f.enforcer.Check(context.Background(), "caller")
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonUnknownTier, domain.ErrorReason(err))
}

func TestAdmission_ReleaseDoesNotCharge(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()

	adm, err := f.enforcer.Check(ctx, "caller")
	require.NoError(t, err)
	adm.Release()
	adm.Release()

	_, err = adm.Commit(ctx)
	require.NoError(t, err)

	sub := f.load(t, "caller")
	assert.Zero(t, sub.ImagesUsedToday)
	assert.Zero(t, sub.TotalImagesUsed)
	assert.Zero(t, f.enforcer.pending("caller"))
}

func TestCheck_InFlightReservations(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	f.seed(t, &domain.Subscription{
		CallerID:        "caller",
		Tier:            domain.SubscriptionTierFree,
		ImagesUsedToday: 24,
		LastReset:       now,
		CreatedAt:       now,
	})

	const workers = 32
	var admitted atomic.Int32
	var wg sync.WaitGroup
	admissions := make(chan *Admission, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := f.enforcer.Check(ctx, "caller")
			if err == nil {
				admitted.Add(1)
				admissions <- adm
			}
		}()
	}
	wg.Wait()
	close(admissions)

	assert.Equal(t, int32(1), admitted.Load())

	for adm := range admissions {
		assert.Zero(t, adm.Remaining())
		_, err := adm.Commit(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 25, f.load(t, "caller").ImagesUsedToday)
	_, err := f.enforcer.Check(ctx, "caller")
	assert.Equal(t, domain.ReasonDailyLimitExceeded, domain.ErrorReason(err))
}

func TestCheck_ReleasedSlotIsReusable(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	f.seed(t, &domain.Subscription{
		CallerID:        "caller",
		Tier:            domain.SubscriptionTierFree,
		ImagesUsedToday: 24,
		LastReset:       now,
		CreatedAt:       now,
	})

	first, err := f.enforcer.Check(ctx, "caller")
	require.NoError(t, err)

	_, err = f.enforcer.Check(ctx, "caller")
	require.Error(t, err)

	first.Release()

	second, err := f.enforcer.Check(ctx, "caller")
	require.NoError(t, err)
	second.Release()
}

func TestUsage_DoesNotCreateEntries(t *testing.T) {
	f := newQuotaFixture(t)
	ctx := context.Background()

	u, err := f.enforcer.Usage(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionTierFree, u.Tier.Name)
	assert.Equal(t, 25, u.DailyRemaining)
	assert.Nil(t, u.LifetimeRemaining)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUsage_ReflectsLazyReset(t *testing.T) {
	f := newQuotaFixture(t)
	start := f.clock.Now()

	f.seed(t, &domain.Subscription{
		CallerID:        "caller",
		Tier:            domain.SubscriptionTierPremiumGift,
		ImagesUsedToday: 150,
		TotalImagesUsed: 400,
		LastReset:       start,
		CreatedAt:       start,
	})
	f.clock.Advance(48 * time.Hour)

	u, err := f.enforcer.Usage(context.Background(), "caller")
	require.NoError(t, err)
	assert.Zero(t, u.ImagesUsedToday)
	assert.Equal(t, 150, u.DailyRemaining)
	require.NotNil(t, u.LifetimeRemaining)
	assert.Equal(t, 1099, *u.LifetimeRemaining)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), u.ResetsAt)

	// Stored entry is unchanged.
	assert.Equal(t, 150, f.load(t, "caller").ImagesUsedToday)
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Duration
		want int
	}{
		{"whole seconds", 90 * time.Second, 90},
		{"rounds up", 90*time.Second + time.Millisecond, 91},
		{"sub-second", 10 * time.Millisecond, 1},
		{"boundary", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RetryAfterSeconds(now.Add(tt.in), now))
		})
	}
}
