// Package ledger keeps per-caller subscription entries: tier plus usage
// counters. The Ledger serializes read-modify-write cycles per caller key and
// delegates persistence to a Store so the same semantics hold whether entries
// live in memory, in SQL, or in Redis.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/genapi/internal/domain"
)

// ErrNotFound is returned by Store.Increment when the caller has no entry.
var ErrNotFound = errors.New("ledger: subscription not found")

// Store persists subscription entries keyed by caller ID.
type Store interface {
	// Get returns the entry for callerID, or (nil, nil) if none exists.
	Get(ctx context.Context, callerID string) (*domain.Subscription, error)

	// Put creates or replaces the entry.
	Put(ctx context.Context, sub *domain.Subscription) error

	// Increment atomically adds delta to both usage counters and returns the
	// updated entry. Returns ErrNotFound if the entry does not exist.
	Increment(ctx context.Context, callerID string, delta int) (*domain.Subscription, error)

	// DeleteIdle removes entries on tier that never consumed anything and
	// whose window started before the cutoff. Returns the number removed.
	DeleteIdle(ctx context.Context, tier domain.SubscriptionTier, before time.Time) (int, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	Close() error
}
