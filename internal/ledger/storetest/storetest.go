// Package storetest holds the behaviour every ledger.Store backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
)

// Run exercises a Store implementation. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		sub, err := s.Get(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Nil(t, sub)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

		want := &domain.Subscription{
			CallerID:        "caller-a",
			Tier:            domain.SubscriptionTierGift,
			ImagesUsedToday: 4,
			TotalImagesUsed: 40,
			LastReset:       now,
			CreatedAt:       now.Add(-time.Hour),
		}
		require.NoError(t, s.Put(ctx, want))

		got, err := s.Get(ctx, "caller-a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Tier, got.Tier)
		assert.Equal(t, want.ImagesUsedToday, got.ImagesUsedToday)
		assert.Equal(t, want.TotalImagesUsed, got.TotalImagesUsed)
		assert.True(t, want.LastReset.Equal(got.LastReset), "last_reset %v != %v", got.LastReset, want.LastReset)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("PutReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sub := domain.NewSubscription("caller-b", time.Now())
		require.NoError(t, s.Put(ctx, sub))

		sub.Tier = domain.SubscriptionTierStarter
		require.NoError(t, s.Put(ctx, sub))

		got, err := s.Get(ctx, "caller-b")
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionTierStarter, got.Tier)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, domain.NewSubscription("caller-c", time.Now())))

		got, err := s.Get(ctx, "caller-c")
		require.NoError(t, err)
		got.ImagesUsedToday = 99

		again, err := s.Get(ctx, "caller-c")
		require.NoError(t, err)
		assert.Zero(t, again.ImagesUsedToday)
	})

	t.Run("IncrementMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Increment(context.Background(), "nobody", 1)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})

	t.Run("IncrementBothCounters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, domain.NewSubscription("caller-d", time.Now())))

		sub, err := s.Increment(ctx, "caller-d", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, sub.ImagesUsedToday)
		assert.Equal(t, 1, sub.TotalImagesUsed)
		assert.Equal(t, domain.SubscriptionTierFree, sub.Tier)
	})

	t.Run("IncrementConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, domain.NewSubscription("caller-e", time.Now())))

		const workers = 20
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Increment(ctx, "caller-e", 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "caller-e")
		require.NoError(t, err)
		assert.Equal(t, workers, got.ImagesUsedToday)
		assert.Equal(t, workers, got.TotalImagesUsed)
	})

	t.Run("DeleteIdle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
		old := now.Add(-48 * time.Hour)

		idle := domain.NewSubscription("idle", old)
		used := domain.NewSubscription("used", old)
		used.TotalImagesUsed = 3
		gift := domain.NewSubscription("gift", old)
		gift.Tier = domain.SubscriptionTierGift
		fresh := domain.NewSubscription("fresh", now)

		for _, sub := range []*domain.Subscription{idle, used, gift, fresh} {
			require.NoError(t, s.Put(ctx, sub))
		}

		n, err := s.DeleteIdle(ctx, domain.SubscriptionTierFree, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		gone, err := s.Get(ctx, "idle")
		require.NoError(t, err)
		assert.Nil(t, gone)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})
}
