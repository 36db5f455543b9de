// Package memstore is the in-process ledger store. Entries are lost on restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
)

// Store keeps subscriptions in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	subs map[string]*domain.Subscription
}

var _ ledger.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{subs: make(map[string]*domain.Subscription)}
}

func (s *Store) Get(_ context.Context, callerID string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs[callerID].Clone(), nil
}

func (s *Store) Put(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.CallerID] = sub.Clone()
	return nil
}

func (s *Store) Increment(_ context.Context, callerID string, delta int) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[callerID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	sub.ImagesUsedToday += delta
	sub.TotalImagesUsed += delta
	return sub.Clone(), nil
}

func (s *Store) DeleteIdle(_ context.Context, tier domain.SubscriptionTier, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sub := range s.subs {
		if sub.Tier == tier && sub.TotalImagesUsed == 0 && sub.LastReset.Before(before) {
			delete(s.subs, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs), nil
}

func (s *Store) Close() error {
	return nil
}
