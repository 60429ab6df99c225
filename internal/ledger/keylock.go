package ledger

import (
	"context"
	"sync"
)

// keyedLock is an in-process exclusive lock per key.  Waiting honours the
// caller's context.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[string]chan struct{})}
}

func (k *keyedLock) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

// acquire blocks until key is free or ctx is done.  The returned func
// releases the lock and must be called exactly once.
func (k *keyedLock) acquire(ctx context.Context, key string) (func(), error) {
	ch := k.slot(key)
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
