// Package redisstore persists the ledger in Redis. Each caller is one hash;
// a set indexes all caller IDs for counting and pruning.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DukeRupert/genapi/internal/domain"
	"github.com/DukeRupert/genapi/internal/ledger"
)

const (
	fieldTier      = "tier"
	fieldUsedToday = "images_used_today"
	fieldTotalUsed = "total_images_used"
	fieldLastReset = "last_reset_ms"
	fieldCreatedAt = "created_at_ms"
)

// Store is a Redis-backed ledger.Store.
type Store struct {
	client *redis.Client
	prefix string
}

var _ ledger.Store = (*Store)(nil)

// Open parses a redis:// URL, verifies the connection and returns a Store.
// All keys are namespaced under prefix.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return New(client, prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "genapi"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) subKey(callerID string) string {
	return s.prefix + ":sub:" + callerID
}

func (s *Store) indexKey() string {
	return s.prefix + ":subs"
}

func (s *Store) Get(ctx context.Context, callerID string) (*domain.Subscription, error) {
	fields, err := s.client.HGetAll(ctx, s.subKey(callerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decode(callerID, fields)
}

func (s *Store) Put(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.subKey(sub.CallerID),
			fieldTier, string(sub.Tier),
			fieldUsedToday, sub.ImagesUsedToday,
			fieldTotalUsed, sub.TotalImagesUsed,
			fieldLastReset, sub.LastReset.UnixMilli(),
			fieldCreatedAt, sub.CreatedAt.UnixMilli(),
		)
		pipe.SAdd(ctx, s.indexKey(), sub.CallerID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

// incrementScript bumps both counters only if the hash already exists and
// returns the updated hash as a flat field/value list.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'images_used_today', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'total_images_used', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

func (s *Store) Increment(ctx context.Context, callerID string, delta int) (*domain.Subscription, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{s.subKey(callerID)}, delta).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment subscription: %w", err)
	}

	fields := make(map[string]string, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		k, _ := res[i].(string)
		v, _ := res[i+1].(string)
		fields[k] = v
	}
	return decode(callerID, fields)
}

// deleteIdleScript removes one caller's hash only if it still matches the
// idle condition at delete time. Hashes that vanished are dropped from the
// index. Returns 1 when the entry was deleted.
var deleteIdleScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'tier', 'total_images_used', 'last_reset_ms')
if not f[1] then
	redis.call('SREM', KEYS[2], ARGV[3])
	return 0
end
if f[1] ~= ARGV[1] or tonumber(f[2]) ~= 0 or tonumber(f[3]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[3])
return 1
`)

func (s *Store) DeleteIdle(ctx context.Context, tier domain.SubscriptionTier, before time.Time) (int, error) {
	cutoff := before.UnixMilli()
	removed := 0

	iter := s.client.SScan(ctx, s.indexKey(), 0, "", 500).Iterator()
	for iter.Next(ctx) {
		callerID := iter.Val()
		keys := []string{s.subKey(callerID), s.indexKey()}

		n, err := deleteIdleScript.Run(ctx, s.client, keys, string(tier), cutoff, callerID).Int()
		if err != nil {
			return removed, fmt.Errorf("delete idle subscription: %w", err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("scan subscriptions: %w", err)
	}
	return removed, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func decode(callerID string, fields map[string]string) (*domain.Subscription, error) {
	usedToday, err := strconv.Atoi(fields[fieldUsedToday])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldUsedToday, err)
	}
	totalUsed, err := strconv.Atoi(fields[fieldTotalUsed])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldTotalUsed, err)
	}
	lastReset, err := strconv.ParseInt(fields[fieldLastReset], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldLastReset, err)
	}
	createdAt, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fieldCreatedAt, err)
	}

	return &domain.Subscription{
		CallerID:        callerID,
		Tier:            domain.SubscriptionTier(fields[fieldTier]),
		ImagesUsedToday: usedToday,
		TotalImagesUsed: totalUsed,
		LastReset:       time.UnixMilli(lastReset).UTC(),
		CreatedAt:       time.UnixMilli(createdAt).UTC(),
	}, nil
}
