package redis

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newLock(t *testing.T, ttl time.Duration) *Lock {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := NewClient(addr, os.Getenv("TEST_REDIS_PASSWORD"))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewLock(logs.GetLoggerFromLevel(slog.LevelDebug), client, ttl)
}

func TestLock_MutualExclusion(t *testing.T) {
	req := require.New(t)
	l := newLock(t, time.Second)
	key := "group:" + uuid.NewString()

	var inside, overlap int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			unlock, err := l.Lock(ctx, key)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	req.Zero(overlap)
}

func TestLock_TimesOut(t *testing.T) {
	req := require.New(t)
	l := newLock(t, time.Second)
	name := "name:" + uuid.NewString()
	group := "group:" + uuid.NewString()

	unlock, err := l.Lock(context.Background(), name)
	req.NoError(err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, name, group)
	req.ErrorIs(err, context.DeadlineExceeded)

	// The key taken before the failure was released
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	unlockGroup, err := l.Lock(ctx2, group)
	req.NoError(err)
	unlockGroup()
}

func TestLock_ReleaseKeepsForeignToken(t *testing.T) {
	req := require.New(t)
	l := newLock(t, time.Second)
	key := "group:" + uuid.NewString()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, key)
	req.NoError(err)

	// Given the key expired and someone else took it
	req.NoError(l.client.Set(ctx, keyPrefix+key, "other-holder", time.Second).Err())

	unlock()
	val, err := l.client.Get(ctx, keyPrefix+key).Result()
	req.NoError(err)
	req.Equal("other-holder", val)
}

func TestLock_RefreshedWhileHeld(t *testing.T) {
	req := require.New(t)
	l := newLock(t, 90*time.Millisecond)
	key := "group:" + uuid.NewString()

	unlock, err := l.Lock(context.Background(), key)
	req.NoError(err)

	// Held for several TTLs, the key is still ours
	time.Sleep(300 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	req.ErrorIs(err, context.DeadlineExceeded)

	unlock()
	unlock()
	exists, err := l.client.Exists(context.Background(), keyPrefix+key).Result()
	req.NoError(err)
	req.Zero(exists)
}
