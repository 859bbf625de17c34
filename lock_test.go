package quizmaster

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "quiz-a")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("%d holders at once", maxInside)
	}
}

func TestKeyedMutexIndependentKeysAndCancel(t *testing.T) {
	km := NewKeyedMutex()
	unlockA, err := km.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	unlockB, err := km.Lock(context.Background(), "b")
	if err != nil {
		t.Fatalf("other key blocked: %v", err)
	}
	unlockB()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := km.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

// testRedis returns a client for REDIS_ADDR, or for an in-process
// miniredis when it is unset.
func testRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { client.Close() })
		if err := client.Ping(context.Background()).Err(); err != nil {
			t.Skipf("redis unavailable: %v", err)
		}
		return client, nil
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisLocker(t *testing.T) {
	client, _ := testRedis(t)
	ctx := context.Background()

	l := NewRedisLocker(client, time.Second)
	unlock, err := l.Lock(ctx, "test-quiz")
	if err != nil {
		t.Fatal(err)
	}

	wctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(wctx, "test-quiz"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("second lock: err = %v", err)
	}

	unlock()
	unlock2, err := l.Lock(ctx, "test-quiz")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	unlock2()
	if n := client.Exists(ctx, redisLockPrefix+"test-quiz").Val(); n != 0 {
		t.Fatalf("lock key still present after unlock")
	}
}

func TestRedisLockerStaleUnlockKeepsNewHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	l := NewRedisLocker(client, time.Second)
	stale, err := l.Lock(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Second)

	current, err := l.Lock(ctx, "q1")
	if err != nil {
		t.Fatalf("lock after expiry: %v", err)
	}
	holder, err := mr.Get(redisLockPrefix + "q1")
	if err != nil {
		t.Fatal(err)
	}

	stale()
	if got, err := mr.Get(redisLockPrefix + "q1"); err != nil || got != holder {
		t.Fatalf("stale unlock removed the new holder: %q, %v", got, err)
	}
	current()
	if mr.Exists(redisLockPrefix + "q1") {
		t.Fatal("lock key still present after unlock")
	}
}
