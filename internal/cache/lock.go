// Package cache implements the shared fast stores on Redis: the seat hold
// lock, the per-flight waitlist and the cluster lease.  Single-node runs
// point them at an embedded server, see NewEmbedded.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore keeps seat holds as plain string keys with a TTL.
type LockStore struct {
	rdb *redis.Client
}

func NewLockStore(rdb *redis.Client) *LockStore {
	return &LockStore{rdb: rdb}
}

// SetIfAbsent issues SET key value NX PX ttl.
func (s *LockStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *LockStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

var deleteIfValueScript = redis.NewScript(`
        if redis.call('GET', KEYS[1]) == ARGV[1] then
            return redis.call('DEL', KEYS[1])
        end
        return 0
    `)

// DeleteIfValue removes key only while it still holds value, so a caller
// whose hold already expired cannot drop the next claimant's key.
func (s *LockStore) DeleteIfValue(ctx context.Context, key, value string) (bool, error) {
	n, err := deleteIfValueScript.Run(ctx, s.rdb, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
