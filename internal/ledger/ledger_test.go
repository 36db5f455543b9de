package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
	"github.com/DukeRupert/genapi/internal/ledger/memstore"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *memstore.Store, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ledger.New(store, logger, ledger.WithClock(c.Now)), store, c
}

func TestGetOrCreateDefaults(t *testing.T) {
	l, store, c := newTestLedger(t)
	ctx := context.Background()

	sub, err := l.GetOrCreate(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionTierFree, sub.Tier)
	assert.Zero(t, sub.ImagesUsedToday)
	assert.Zero(t, sub.TotalImagesUsed)
	assert.Equal(t, c.Now(), sub.LastReset)

	n, _ := store.Count(ctx)
	assert.Equal(t, 1, n)

	again, err := l.GetOrCreate(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, sub.CreatedAt, again.CreatedAt)
}

func TestPeekDoesNotCreate(t *testing.T) {
	l, store, _ := newTestLedger(t)
	ctx := context.Background()

	sub, err := l.Peek(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionTierFree, sub.Tier)

	n, _ := store.Count(ctx)
	assert.Zero(t, n)
}

func TestSetTierKeepsCounters(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.RecordConsumption(ctx, "caller")
	require.NoError(t, err)
	_, err = l.RecordConsumption(ctx, "caller")
	require.NoError(t, err)

	sub, err := l.SetTier(ctx, "caller", domain.SubscriptionTierGift)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionTierGift, sub.Tier)
	assert.Equal(t, 2, sub.ImagesUsedToday)
	assert.Equal(t, 2, sub.TotalImagesUsed)
}

func TestRecordConsumptionCreatesMissingEntry(t *testing.T) {
	l, _, _ := newTestLedger(t)

	sub, err := l.RecordConsumption(context.Background(), "late")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.ImagesUsedToday)
	assert.Equal(t, 1, sub.TotalImagesUsed)
}

func TestUpdatePersistsEvenWhenFnFails(t *testing.T) {
	l, _, c := newTestLedger(t)
	ctx := context.Background()
	errReject := errors.New("rejected")

	_, err := l.GetOrCreate(ctx, "caller")
	require.NoError(t, err)
	c.Advance(25 * time.Hour)

	_, err = l.Update(ctx, "caller", func(sub *domain.Subscription) error {
		sub.ResetWindow(c.Now())
		return errReject
	})
	assert.ErrorIs(t, err, errReject)

	sub, err := l.Peek(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, c.Now(), sub.LastReset)
}

func TestConcurrentRecordConsumption(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordConsumption(ctx, "caller")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sub, err := l.Peek(ctx, "caller")
	require.NoError(t, err)
	assert.Equal(t, n, sub.TotalImagesUsed)
}

func TestPruneKeepsMeaningfulEntries(t *testing.T) {
	l, _, c := newTestLedger(t)
	ctx := context.Background()

	_, err := l.GetOrCreate(ctx, "idle")
	require.NoError(t, err)
	_, err = l.RecordConsumption(ctx, "consumer")
	require.NoError(t, err)
	_, err = l.SetTier(ctx, "gifted", domain.SubscriptionTierGift)
	require.NoError(t, err)

	n, err := l.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "entries inside their window are never pruned")

	c.Advance(24*time.Hour + time.Second)

	n, err = l.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ledger.ShortID("abc"))
	assert.Equal(t, "0123456789ab", ledger.ShortID("0123456789abcdef"))
}
