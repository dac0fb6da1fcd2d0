// Package redis provides a conversation.Locker shared by every instance of
// the service.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/puoklam/groupchat/conversation"
)

const (
	keyPrefix = "groupchat:lock:"
	// DefaultTTL bounds how long a crashed holder blocks others. Live
	// holders keep their keys through the refresh watchdog.
	DefaultTTL        = 10 * time.Second
	defaultRetryDelay = 20 * time.Millisecond
)

// release deletes the key only if it still holds our token, so an expired
// lock taken over by someone else is never released by the old holder.
var release = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refresh extends the key only while it still holds our token.
var refresh = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

func NewClient(addr, password string) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
	})
}

// Lock is a SET NX PX lock per key.
type Lock struct {
	client *goredis.Client
	log    *slog.Logger
	ttl    time.Duration
	retry  time.Duration
}

func NewLock(log *slog.Logger, client *goredis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lock{client: client, log: log, ttl: ttl, retry: defaultRetryDelay}
}

func (l *Lock) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = conversation.SortedKeys(keys)
	type held struct{ key, token string }
	acquired := make([]held, 0, len(keys))
	releaseAll := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := len(acquired) - 1; i >= 0; i-- {
			h := acquired[i]
			if err := release.Run(ctx, l.client, []string{h.key}, h.token).Err(); err != nil {
				l.log.Warn("Failed to release lock", "key", h.key, "error", err)
			}
		}
	}

	for _, k := range keys {
		key := keyPrefix + k
		token := uuid.NewString()
		if err := l.acquire(ctx, key, token); err != nil {
			releaseAll()
			return nil, fmt.Errorf("acquire %s: %w", k, err)
		}
		acquired = append(acquired, held{key: key, token: token})
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.watch(stop, func(ctx context.Context) {
			for _, h := range acquired {
				ok, err := refresh.Run(ctx, l.client, []string{h.key}, h.token, l.ttl.Milliseconds()).Int()
				if err != nil {
					l.log.Warn("Failed to refresh lock", "key", h.key, "error", err)
				} else if ok == 0 {
					l.log.Warn("Lock lost before release", "key", h.key)
				}
			}
		})
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseAll()
		})
	}, nil
}

// watch runs fn every third of the TTL until stop is closed.
func (l *Lock) watch(stop <-chan struct{}, fn func(ctx context.Context)) {
	every := max(l.ttl/3, time.Millisecond)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			fn(ctx)
			cancel()
		}
	}
}

func (l *Lock) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
