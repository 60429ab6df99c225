package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Embedded is an in-process Redis server for single-node runs.  The stores
// in this package work against it unchanged.
type Embedded struct {
	mr   *miniredis.Miniredis
	rdb  *redis.Client
	stop chan struct{}
	done sync.WaitGroup
}

// NewEmbedded starts the server and a client connected to it.  The server
// only ages keys when told to, so a background loop advances it by the
// elapsed wall time every tick.
func NewEmbedded(tick time.Duration) (*Embedded, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start embedded redis: %w", err)
	}
	e := &Embedded{
		mr:   mr,
		rdb:  redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		stop: make(chan struct{}),
	}
	e.done.Add(1)
	go e.age(tick)
	return e, nil
}

func (e *Embedded) age(tick time.Duration) {
	defer e.done.Done()
	t := time.NewTicker(tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-e.stop:
			return
		case now := <-t.C:
			e.mr.FastForward(now.Sub(last))
			last = now
		}
	}
}

// Client returns the client bound to the embedded server.
func (e *Embedded) Client() *redis.Client { return e.rdb }

// Close stops the ageing loop, the client and the server.
func (e *Embedded) Close() error {
	close(e.stop)
	e.done.Wait()
	err := e.rdb.Close()
	e.mr.Close()
	return err
}
