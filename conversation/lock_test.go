package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSortedKeys(t *testing.T) {
	req := require.New(t)
	in := []string{"name:b", "group:1", "name:b", "group:0"}

	out := SortedKeys(in)

	req.Equal([]string{"group:0", "group:1", "name:b"}, out)
	req.Equal("name:b", in[0], "input must not be reordered")
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	req := require.New(t)
	m := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "group:1")
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	req.Equal(int32(1), maxInside)
	req.Empty(m.entries)
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	req := require.New(t)
	m := NewKeyedMutex()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlockA, err := m.Lock(ctx, "group:a")
	req.NoError(err)
	defer unlockA()

	unlockB, err := m.Lock(ctx, "group:b")
	req.NoError(err)
	unlockB()
}

func TestKeyedMutex_ContextCancelled(t *testing.T) {
	req := require.New(t)
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "name:x")
	req.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// group:u is taken first, then released again when name:x times out
	_, err = m.Lock(ctx, "name:x", "group:u")
	req.ErrorIs(err, context.DeadlineExceeded)

	req.NotContains(m.entries, "group:u")

	unlock()
	req.Empty(m.entries)
}

func TestKeyedMutex_UnlockTwice(t *testing.T) {
	req := require.New(t)
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "group:1")
	req.NoError(err)
	unlock()
	req.NotPanics(unlock)

	unlock, err = m.Lock(context.Background(), "group:1")
	req.NoError(err)
	unlock()
}
