package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// WaitlistStore keeps each waitlist in a sorted set scored by join time.
type WaitlistStore struct {
	rdb *redis.Client
}

func NewWaitlistStore(rdb *redis.Client) *WaitlistStore {
	return &WaitlistStore{rdb: rdb}
}

// AddIfAbsent issues ZADD NX so an existing member keeps its score.
func (s *WaitlistStore) AddIfAbsent(ctx context.Context, key, member string, score float64) (bool, error) {
	n, err := s.rdb.ZAddNX(ctx, key, redis.Z{Score: score, Member: member}).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *WaitlistStore) Add(ctx context.Context, key, member string, score float64) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *WaitlistStore) Rank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.rdb.ZRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

// PopMin issues ZPOPMIN key 1.
func (s *WaitlistStore) PopMin(ctx context.Context, key string) (string, float64, bool, error) {
	zs, err := s.rdb.ZPopMin(ctx, key, 1).Result()
	if err != nil {
		return "", 0, false, err
	}
	if len(zs) == 0 {
		return "", 0, false, nil
	}
	member, ok := zs[0].Member.(string)
	if !ok {
		member = fmt.Sprint(zs[0].Member)
	}
	return member, zs[0].Score, true, nil
}
