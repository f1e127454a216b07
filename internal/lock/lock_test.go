package lock

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			unlock, err := m.Lock(ctx, "cart:1")
			if err != nil {
				return err
			}
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d holders", maxInside)
	}
	if len(m.entries) != 0 {
		t.Fatalf("expected entries to be dropped, got %d", len(m.entries))
	}
}

func TestKeyedMutexContextCancel(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Lock(ctx, "k"); !errors.Is(err, ErrNotAcquired) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrNotAcquired and deadline, got %v", err)
	}

	other, err := m.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("different keys must not block: %v", err)
	}
	other()
}

func TestLockAllReleasesOnFailure(t *testing.T) {
	m := NewKeyedMutex()
	hold, _ := m.Lock(context.Background(), "b")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := LockAll(ctx, m, []string{"a", "b"}); err == nil {
		t.Fatalf("expected LockAll to fail while b is held")
	}
	hold()

	unlock, err := m.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("a should have been released: %v", err)
	}
	unlock()
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("NEPSHOP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NEPSHOP_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLocker(client, "nepshop-test:", time.Second)
	key := "owner:" + time.Now().Format(time.RFC3339Nano)

	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, key); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired while held, got %v", err)
	}

	unlock()
	again, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("Lock after release: %v", err)
	}
	again()
}
