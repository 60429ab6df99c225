package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	releaseLeaseScript = redis.NewScript(`
        if redis.call('GET', KEYS[1]) == ARGV[1] then
            return redis.call('DEL', KEYS[1])
        end
        return 0
    `)
	shortenLeaseScript = redis.NewScript(`
        if redis.call('GET', KEYS[1]) == ARGV[1] then
            return redis.call('PEXPIRE', KEYS[1], ARGV[2])
        end
        return 0
    `)
)

// Leases hands out named cluster-wide leases.  A lease is held for at most
// atMost even if its holder dies, and for at least atLeast even if the
// holder finishes early, so a fast job is not re-run by another node within
// the same period.
type Leases struct {
	rdb     *redis.Client
	prefix  string
	atLeast time.Duration
	atMost  time.Duration
	now     func() time.Time
}

func NewLeases(rdb *redis.Client, atLeast, atMost time.Duration) *Leases {
	return &Leases{rdb: rdb, prefix: "lease:", atLeast: atLeast, atMost: atMost, now: time.Now}
}

// TryAcquire takes the lease called name without waiting.  ok is false when
// another holder has it.  The returned release func must be called once.
func (l *Leases) TryAcquire(ctx context.Context, name string) (func(context.Context) error, bool, error) {
	key := l.prefix + name
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.atMost).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	acquired := l.now()
	release := func(ctx context.Context) error {
		remaining := l.atLeast - l.now().Sub(acquired)
		if remaining > 0 {
			return shortenLeaseScript.Run(ctx, l.rdb, []string{key}, token, remaining.Milliseconds()).Err()
		}
		return releaseLeaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
