package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestWithLockRunsAndReleases(t *testing.T) {
	l := Locker{R: testClient(t)}
	ctx := context.Background()

	var ran int
	err := l.WithLock(ctx, "scan", time.Second, func(context.Context) error {
		ran++
		return nil
	})
	if err != nil {
		t.Fatalf("with lock: %v", err)
	}
	// Released: the second acquisition must not wait.
	err = l.TryLock(ctx, "scan", time.Second, func(context.Context) error {
		ran++
		return nil
	})
	if err != nil {
		t.Fatalf("second lock: %v", err)
	}
	if ran != 2 {
		t.Fatalf("expected both callbacks to run, got %d", ran)
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	l := Locker{R: testClient(t)}
	ctx := context.Background()
	boom := errors.New("boom")

	if err := l.WithLock(ctx, "scan", time.Second, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := l.TryLock(ctx, "scan", time.Second, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected lock free after error, got %v", err)
	}
}

func TestTryLockSkipsWhenHeld(t *testing.T) {
	client := testClient(t)
	l := Locker{R: client}
	ctx := context.Background()

	if err := client.Set(ctx, "scan", "other-holder", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	err := l.TryLock(ctx, "scan", time.Second, func(context.Context) error {
		t.Fatal("callback must not run while the lock is held")
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}
}
